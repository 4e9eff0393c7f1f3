package sessionstore

import (
	"context"
	"errors"

	"github.com/hinteval/sessiond/internal/session"
)

var (
	// ErrUnavailable indicates the backing store cannot be reached. The
	// session contents were not modified; retrying is safe.
	ErrUnavailable = errors.New("session store unavailable")

	// ErrClosed indicates the store has been shut down.
	ErrClosed = errors.New("session store is closed")
)

// Store persists the working contents of sessions, keyed by an opaque
// session key. Implementations must serialize writers per key: a reader
// never observes a half-applied Replace.
type Store interface {
	// Counts reports per-kind totals for the session. An unknown key is an
	// empty session, not an error.
	Counts(ctx context.Context, key string) (session.Counts, error)

	// Snapshot returns an isolated copy of the session. Mutating the
	// returned value never affects stored state.
	Snapshot(ctx context.Context, key string) (*session.Session, error)

	// Replace atomically discards the session's contents and installs the
	// batch, returning the counts removed. On error the prior contents
	// survive.
	Replace(ctx context.Context, key string, batch *session.ImportBatch) (session.Counts, error)

	// Clear removes all contents of the session and returns the counts
	// removed. Clearing an empty or unknown session is a zero-count no-op.
	Clear(ctx context.Context, key string) (session.Counts, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources. Further calls fail with
	// ErrClosed.
	Close() error
}
