package interchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hinteval/sessiond/internal/events"
	"github.com/hinteval/sessiond/internal/logging"
	"github.com/hinteval/sessiond/internal/session"
	"github.com/hinteval/sessiond/internal/sessionstore"
)

// Mock store for testing

type mockStore struct {
	sessions     map[string]*session.Session
	failWith     error
	replaceCalls int
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*session.Session)}
}

func (m *mockStore) Counts(ctx context.Context, key string) (session.Counts, error) {
	if m.failWith != nil {
		return session.Counts{}, m.failWith
	}
	if sess, ok := m.sessions[key]; ok {
		return sess.Counts(), nil
	}
	return session.Counts{}, nil
}

func (m *mockStore) Snapshot(ctx context.Context, key string) (*session.Session, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	if sess, ok := m.sessions[key]; ok {
		return sess.Clone(), nil
	}
	return &session.Session{Key: key}, nil
}

func (m *mockStore) Replace(ctx context.Context, key string, batch *session.ImportBatch) (session.Counts, error) {
	if m.failWith != nil {
		return session.Counts{}, m.failWith
	}
	m.replaceCalls++
	var prior session.Counts
	if sess, ok := m.sessions[key]; ok {
		prior = sess.Counts()
	}
	m.sessions[key] = &session.Session{Key: key, Instances: batch.Instances}
	return prior, nil
}

func (m *mockStore) Clear(ctx context.Context, key string) (session.Counts, error) {
	if m.failWith != nil {
		return session.Counts{}, m.failWith
	}
	var prior session.Counts
	if sess, ok := m.sessions[key]; ok {
		prior = sess.Counts()
	}
	delete(m.sessions, key)
	return prior, nil
}

func (m *mockStore) Ping(ctx context.Context) error { return m.failWith }

func (m *mockStore) Close() error { return nil }

// Mock publisher for testing

type mockPublisher struct {
	imported []events.ImportedEvent
	cleared  []events.ClearedEvent
	failWith error
}

func (m *mockPublisher) SessionImported(ctx context.Context, evt events.ImportedEvent) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.imported = append(m.imported, evt)
	return nil
}

func (m *mockPublisher) SessionCleared(ctx context.Context, evt events.ClearedEvent) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.cleared = append(m.cleared, evt)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

const fullBackupDoc = `{
	"name": "nightly",
	"subsets": {
		"train": {
			"instances": {
				"0": {
					"question": {"question": "What is the capital of France?"},
					"answers": [{"answer": "Paris"}],
					"hints": ["hint one", "hint two"],
					"candidates_full": [
						{"text": "Paris", "is_groundtruth": true},
						{"text": "Lyon", "is_eliminated": true}
					],
					"candidates": ["Paris", "Lyon"]
				}
			}
		}
	}
}`

func newTestService(t *testing.T, store *mockStore, pub events.Publisher) Service {
	t.Helper()
	tl := logging.NewTestLogger()
	svc, err := NewService(nil, store, pub, tl.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestDefaultServiceConfig(t *testing.T) {
	cfg := DefaultServiceConfig()
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestNewService_NilConfigAndLogger(t *testing.T) {
	svc, err := NewService(nil, newMockStore(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.NoError(t, svc.Close())
}

func TestService_ImportFullBackup(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	res, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err)

	assert.Equal(t, "sess_1", res.SessionID)
	assert.Equal(t, FormatFullBackup, res.Format)
	assert.Equal(t, "Restored 1 Questions, 2 Hints, 2 Candidates", res.Info)
	assert.Equal(t, session.Counts{Questions: 1, Answers: 1, Hints: 2, Candidates: 2}, res.Counts)
	assert.False(t, res.AutoGenerated)
	assert.Nil(t, res.Cleared, "no cleared report when the session was empty")

	stored := store.sessions["sess_1"]
	require.NotNil(t, stored)
	require.Len(t, stored.Instances, 1)
	assert.Equal(t, "Paris", stored.Instances[0].Answer.Text)
}

func TestService_ImportReplacesAndReportsCleared(t *testing.T) {
	store := newMockStore()
	store.sessions["sess_1"] = &session.Session{
		Key: "sess_1",
		Instances: []*session.Instance{
			{ID: "0", Question: session.Question{Text: "old"}, Hints: []*session.Hint{{Text: "old hint"}}},
		},
	}
	svc := newTestService(t, store, nil)

	res, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err)

	require.NotNil(t, res.Cleared)
	assert.True(t, res.Cleared.Cleared)
	assert.Equal(t, "Session wiped.", res.Cleared.Message)
	assert.Equal(t, session.Counts{Questions: 1, Hints: 1}, res.Cleared.Counts)

	// Replacement is wholesale, not a merge.
	assert.Equal(t, "What is the capital of France?", store.sessions["sess_1"].Instances[0].Question.Text)
}

func TestService_ImportSimpleJSON(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	doc := `{"question": "Unanswered?", "hints": ["h1", "h2", "h3"]}`
	res, err := svc.Import(context.Background(), "sess_1", "session.json", strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, FormatSimpleJSON, res.Format)
	assert.Equal(t, "Imported: 1 Question, 3 Hints", res.Info)
	assert.True(t, res.AutoGenerated, "missing answer requests generation")
}

func TestService_ImportCSV(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	doc := "type,content\nquestion,q\nanswer,a\nhint,h\n"
	res, err := svc.Import(context.Background(), "sess_1", "upload.csv", strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, res.Format)
	assert.Equal(t, "Imported: 1 Question, 1 Hints", res.Info)
	assert.False(t, res.AutoGenerated)
}

func TestService_ImportRejectsInvalidKey(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	_, err := svc.Import(context.Background(), "bad key!", "x.json", strings.NewReader(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session key")
	assert.Zero(t, store.replaceCalls)
}

func TestService_ImportRejectsOversize(t *testing.T) {
	store := newMockStore()
	tl := logging.NewTestLogger()
	svc, err := NewService(&ServiceConfig{MaxUploadBytes: 16}, store, nil, tl.Logger)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Import(context.Background(), "sess_1", "big.json", strings.NewReader(strings.Repeat("x", 64)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, store.replaceCalls)
}

func TestService_ImportRejectsUnknownExtension(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	_, err := svc.Import(context.Background(), "sess_1", "notes.txt", strings.NewReader("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, store.replaceCalls)
}

func TestService_ImportRejectsSchemaViolation(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	doc := `{"subsets": {"s": {"instances": {"0": {"hints": ["h"]}}}}}`
	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	assert.Zero(t, store.replaceCalls, "nothing may reach the store on a parse failure")
}

func TestService_ImportStoreUnavailable(t *testing.T) {
	store := newMockStore()
	store.failWith = errors.New("dial tcp: connection refused")
	svc := newTestService(t, store, nil)

	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.Error(t, err)
	// Unrecognized store errors pass through unmapped.
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestService_ImportMapsStoreUnavailable(t *testing.T) {
	store := newMockStore()
	store.failWith = fmt.Errorf("replace: %w", sessionstore.ErrUnavailable)
	svc := newTestService(t, store, nil)

	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestService_ImportPublishesEvent(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	svc := newTestService(t, store, pub)

	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err)

	require.Len(t, pub.imported, 1)
	evt := pub.imported[0]
	assert.Equal(t, "sess_1", evt.SessionID)
	assert.Equal(t, "full_json", evt.Format)
	assert.Equal(t, 1, evt.Counts.Questions)
	assert.False(t, evt.AutoGenerated)
}

func TestService_ImportSurvivesPublishFailure(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{failWith: errors.New("broker down")}
	tl := logging.NewTestLogger()
	svc, err := NewService(nil, store, pub, tl.Logger)
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err, "a committed import never fails on a publish error")
	require.NotNil(t, res)

	tl.AssertLogged(t, zapcore.WarnLevel, "failed to publish import event")
}

func TestService_Export(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err)

	res, err := svc.Export(context.Background(), "sess_1", FormatFullBackup)
	require.NoError(t, err)

	assert.Equal(t, FormatFullBackup, res.Format)
	assert.Equal(t, "hinteval_backup_full.json", res.Filename)
	assert.Equal(t, "application/json", res.ContentType)

	// The export is itself a valid import.
	batch, err := NewFullBackupParser().Parse(res.Data)
	require.NoError(t, err)
	require.Len(t, batch.Instances, 1)
	assert.Equal(t, "What is the capital of France?", batch.Instances[0].Question.Text)
}

func TestService_ExportCSV(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err)

	res, err := svc.Export(context.Background(), "sess_1", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "hinteval_session.csv", res.Filename)
	assert.Equal(t, "text/csv", res.ContentType)
	assert.True(t, strings.HasPrefix(string(res.Data), "type,content\n"))
}

func TestService_ExportEmptySession(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	res, err := svc.Export(context.Background(), "sess_unknown", FormatSimpleJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(res.Data))
}

func TestService_ExportDoesNotMutate(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err)
	before := store.sessions["sess_1"].Counts()

	_, err = svc.Export(context.Background(), "sess_1", FormatFullBackup)
	require.NoError(t, err)
	assert.Equal(t, before, store.sessions["sess_1"].Counts())
}

func TestService_ExportUnsupportedFormat(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	_, err := svc.Export(context.Background(), "sess_1", Format("xml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestService_Clear(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	svc := newTestService(t, store, pub)

	_, err := svc.Import(context.Background(), "sess_1", "backup.json", strings.NewReader(fullBackupDoc))
	require.NoError(t, err)

	res, err := svc.Clear(context.Background(), "sess_1")
	require.NoError(t, err)

	assert.True(t, res.Cleared)
	assert.Equal(t, "Session wiped.", res.Message)
	assert.Equal(t, 1, res.Removed.Questions)
	assert.Equal(t, 2, res.Removed.Hints)
	assert.NotContains(t, store.sessions, "sess_1")

	require.Len(t, pub.cleared, 1)
	assert.Equal(t, "sess_1", pub.cleared[0].SessionID)
	assert.Equal(t, 1, pub.cleared[0].Removed.Questions)
}

func TestService_ClearEmptySession(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	res, err := svc.Clear(context.Background(), "sess_unknown")
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Equal(t, "Session wiped.", res.Message)
	assert.True(t, res.Removed.IsZero())
}

func TestService_Close(t *testing.T) {
	store := newMockStore()
	svc := newTestService(t, store, nil)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close(), "close is idempotent")

	_, err := svc.Import(context.Background(), "sess_1", "x.json", strings.NewReader(`{}`))
	assert.ErrorIs(t, err, ErrServiceClosed)

	_, err = svc.Export(context.Background(), "sess_1", FormatSimpleJSON)
	assert.ErrorIs(t, err, ErrServiceClosed)

	_, err = svc.Clear(context.Background(), "sess_1")
	assert.ErrorIs(t, err, ErrServiceClosed)
}
