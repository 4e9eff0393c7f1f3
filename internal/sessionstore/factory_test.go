package sessionstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/config"
	"github.com/hinteval/sessiond/internal/sessionstore"
)

func TestNewStore_Memory(t *testing.T) {
	store, err := sessionstore.NewStore(context.Background(), config.StoreConfig{
		Provider: config.StoreProviderMemory,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.IsType(t, &sessionstore.MemoryStore{}, store)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestNewStore_EmptyProviderDefaultsToMemory(t *testing.T) {
	store, err := sessionstore.NewStore(context.Background(), config.StoreConfig{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.IsType(t, &sessionstore.MemoryStore{}, store)
}

func TestNewStore_PostgresRequiresDSN(t *testing.T) {
	_, err := sessionstore.NewStore(context.Background(), config.StoreConfig{
		Provider: config.StoreProviderPostgres,
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres dsn is required")
}

func TestNewStore_UnsupportedProvider(t *testing.T) {
	_, err := sessionstore.NewStore(context.Background(), config.StoreConfig{
		Provider: "cassandra",
	}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store provider: cassandra")
}
