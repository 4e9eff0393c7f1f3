package sessionstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/session"
)

// MemoryStore implements Store with an in-process map. Each session key
// owns its own lock, so operations on different keys never contend.
type MemoryStore struct {
	logger *zap.Logger

	// mu guards the sessions map and the closed flag, never the entries
	// themselves.
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	closed   bool
}

// memoryEntry holds one session's contents. Cleared entries stay in the
// map with nil instances; an empty entry reads the same as an unknown key.
type memoryEntry struct {
	mu        sync.RWMutex
	instances []*session.Instance
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		logger:   logger.Named("sessionstore.memory"),
		sessions: make(map[string]*memoryEntry),
	}
}

// lookup returns the entry for key, or nil if the key is unknown.
func (m *MemoryStore) lookup(key string) (*memoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.sessions[key], nil
}

// ensure returns the entry for key, creating it if absent.
func (m *MemoryStore) ensure(key string) (*memoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.sessions[key]
	if !ok {
		e = &memoryEntry{}
		m.sessions[key] = e
	}
	return e, nil
}

// Counts implements Store.
func (m *MemoryStore) Counts(_ context.Context, key string) (session.Counts, error) {
	e, err := m.lookup(key)
	if err != nil {
		return session.Counts{}, err
	}
	if e == nil {
		return session.Counts{}, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return (&session.Session{Instances: e.instances}).Counts(), nil
}

// Snapshot implements Store.
func (m *MemoryStore) Snapshot(_ context.Context, key string) (*session.Session, error) {
	e, err := m.lookup(key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return &session.Session{Key: key}, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return (&session.Session{Key: key, Instances: e.instances}).Clone(), nil
}

// Replace implements Store.
func (m *MemoryStore) Replace(_ context.Context, key string, batch *session.ImportBatch) (session.Counts, error) {
	if batch == nil {
		return session.Counts{}, fmt.Errorf("batch is required")
	}
	e, err := m.ensure(key)
	if err != nil {
		return session.Counts{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prior := (&session.Session{Instances: e.instances}).Counts()
	e.instances = batch.Instances
	RecordReplace("memory", prior, len(batch.Instances), nil)
	m.logger.Debug("session replaced",
		zap.String("session.key", key),
		zap.Int("instances", len(batch.Instances)),
	)
	return prior, nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, key string) (session.Counts, error) {
	e, err := m.lookup(key)
	if err != nil {
		return session.Counts{}, err
	}
	if e == nil {
		return session.Counts{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prior := (&session.Session{Instances: e.instances}).Counts()
	e.instances = nil
	RecordClear("memory", prior, nil)
	m.logger.Debug("session cleared", zap.String("session.key", key))
	return prior, nil
}

// Ping implements Store. The in-memory store is reachable unless closed.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		RecordPing("memory", ErrClosed)
		return ErrClosed
	}
	RecordPing("memory", nil)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.sessions = nil
	return nil
}
