// Package sessionstore persists session contents behind a provider-neutral
// Store interface.
//
// Two providers are available:
//   - memory (default): an in-process map, suitable for single-node
//     deployments and tests. Contents do not survive a restart.
//   - postgres: durable storage on PostgreSQL via pgx, one row set per
//     session key. The schema is created on startup.
//
// All providers guarantee that Replace and Clear are atomic per session
// key and that Snapshot returns an isolated copy. Use NewStore to select
// a provider from configuration:
//
//	store, err := sessionstore.NewStore(ctx, cfg.Store, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package sessionstore
