// Package events announces session lifecycle changes over NATS.
//
// Publishing is strictly best-effort: the import and clear paths must
// succeed even when the broker is down, so callers log publish failures
// and move on. The imported event carries the auto-generated flag that
// downstream answer generation workers subscribe on.
package events

import (
	"context"
	"time"

	"github.com/hinteval/sessiond/internal/session"
)

// DefaultSubjectPrefix prefixes the published subjects when config leaves
// it unset.
const DefaultSubjectPrefix = "sessiond"

const (
	importedSuffix = "session.imported"
	clearedSuffix  = "session.cleared"
)

// ImportedEvent announces that a session's contents were replaced by an
// import.
type ImportedEvent struct {
	SessionID     string         `json:"session_id"`
	Format        string         `json:"format"`
	Counts        session.Counts `json:"counts"`
	AutoGenerated bool           `json:"auto_generated"`
	At            time.Time      `json:"at"`
}

// ClearedEvent announces that a session was wiped.
type ClearedEvent struct {
	SessionID string         `json:"session_id"`
	Removed   session.Counts `json:"removed"`
	At        time.Time      `json:"at"`
}

// Publisher emits session lifecycle events. Implementations stamp At when
// the caller leaves it zero.
type Publisher interface {
	SessionImported(ctx context.Context, evt ImportedEvent) error
	SessionCleared(ctx context.Context, evt ClearedEvent) error
	Close() error
}
