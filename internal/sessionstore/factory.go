package sessionstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/config"
)

// NewStore creates a Store based on the configuration.
//
// The factory examines StoreConfig.Provider and creates the matching
// implementation:
//   - "memory" (default): in-process store, no external dependencies
//   - "postgres": durable store, requires a reachable PostgreSQL server
//
// The postgres provider connects and creates its schema before returning,
// so a misconfigured DSN fails here rather than on the first request.
func NewStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case config.StoreProviderMemory, "":
		return NewMemoryStore(logger), nil

	case config.StoreProviderPostgres:
		pgCfg := PostgresConfig{
			DSN:            cfg.PostgresDSN.Value(),
			MaxConns:       cfg.PostgresMaxConns,
			ConnectTimeout: cfg.PostgresConnectTimeout.Duration(),
		}
		return NewPostgresStore(ctx, pgCfg, logger)

	default:
		return nil, fmt.Errorf("unsupported store provider: %s (supported: memory, postgres)", cfg.Provider)
	}
}
