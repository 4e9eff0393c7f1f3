package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/session"
)

var pgTracer = otel.Tracer("sessiond.sessionstore.postgres")

// PostgresConfig holds configuration for the PostgreSQL store.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns caps the connection pool size.
	// Default: 8
	MaxConns int32

	// ConnectTimeout bounds the startup connectivity check.
	// Default: 5 seconds
	ConnectTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *PostgresConfig) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 8
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c PostgresConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("postgres dsn is required")
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("max conns must be at least 1, got %d", c.MaxConns)
	}
	return nil
}

// schemaStatements creates the session tables. Executed one statement at a
// time on startup; IF NOT EXISTS keeps restarts and concurrent instances
// safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS questions (
		session_id  TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		position    INTEGER NOT NULL,
		text        TEXT NOT NULL,
		PRIMARY KEY (session_id, instance_id)
	)`,
	`CREATE TABLE IF NOT EXISTS answers (
		session_id     TEXT NOT NULL,
		instance_id    TEXT NOT NULL,
		text           TEXT NOT NULL DEFAULT '',
		auto_generated BOOLEAN NOT NULL DEFAULT FALSE,
		model          TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, instance_id)
	)`,
	`CREATE TABLE IF NOT EXISTS hints (
		session_id  TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		position    INTEGER NOT NULL,
		text        TEXT NOT NULL,
		db_id       BIGINT,
		PRIMARY KEY (session_id, instance_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		session_id    TEXT NOT NULL,
		instance_id   TEXT NOT NULL,
		hint_position INTEGER NOT NULL,
		position      INTEGER NOT NULL,
		name          TEXT NOT NULL,
		value         DOUBLE PRECISION NOT NULL,
		metadata      JSONB,
		PRIMARY KEY (session_id, instance_id, hint_position, position)
	)`,
	`CREATE TABLE IF NOT EXISTS entities (
		session_id    TEXT NOT NULL,
		instance_id   TEXT NOT NULL,
		hint_position INTEGER NOT NULL,
		position      INTEGER NOT NULL,
		text          TEXT NOT NULL,
		type          TEXT NOT NULL DEFAULT '',
		start_offset  INTEGER NOT NULL,
		end_offset    INTEGER NOT NULL,
		metadata      JSONB,
		PRIMARY KEY (session_id, instance_id, hint_position, position)
	)`,
	`CREATE TABLE IF NOT EXISTS candidate_answers (
		session_id      TEXT NOT NULL,
		instance_id     TEXT NOT NULL,
		position        INTEGER NOT NULL,
		text            TEXT NOT NULL,
		is_eliminated   BOOLEAN NOT NULL DEFAULT FALSE,
		is_ground_truth BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ,
		PRIMARY KEY (session_id, instance_id, position)
	)`,
}

var sessionTables = []string{
	"questions", "answers", "hints", "metrics", "entities", "candidate_answers",
}

// countsQuery tallies one session in a single round trip. Placeholder
// answers (empty text) are not counted.
const countsQuery = `SELECT
	(SELECT count(*) FROM questions WHERE session_id = $1),
	(SELECT count(*) FROM answers WHERE session_id = $1 AND text <> ''),
	(SELECT count(*) FROM hints WHERE session_id = $1),
	(SELECT count(*) FROM metrics WHERE session_id = $1),
	(SELECT count(*) FROM entities WHERE session_id = $1),
	(SELECT count(*) FROM candidate_answers WHERE session_id = $1)`

// PostgresStore implements Store on PostgreSQL via pgx. All contents of a
// session live in six tables keyed by session_id; Replace and Clear run in
// a single transaction so readers never observe partial sessions.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPostgresStore connects to PostgreSQL and ensures the session schema
// exists. Connection failures are reported as ErrUnavailable.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating pool: %v", ErrUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.Named("sessionstore.postgres"),
	}
	s.logger.Info("PostgresStore initialized", zap.Int32("max_conns", cfg.MaxConns))
	return s, nil
}

func (p *PostgresStore) checkOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// Counts implements Store.
func (p *PostgresStore) Counts(ctx context.Context, key string) (session.Counts, error) {
	if err := p.checkOpen(); err != nil {
		return session.Counts{}, err
	}
	ctx, span := pgTracer.Start(ctx, "PostgresStore.Counts")
	defer span.End()
	span.SetAttributes(attribute.String("session.key", key))

	var c session.Counts
	row := p.pool.QueryRow(ctx, countsQuery, key)
	if err := row.Scan(&c.Questions, &c.Answers, &c.Hints, &c.Metrics, &c.Entities, &c.Candidates); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return session.Counts{}, fmt.Errorf("%w: counting session: %v", ErrUnavailable, err)
	}
	return c, nil
}

// Snapshot implements Store. The six tables are read inside a repeatable
// read transaction so the assembled session is a consistent point-in-time
// copy even while imports run concurrently.
func (p *PostgresStore) Snapshot(ctx context.Context, key string) (*session.Session, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	ctx, span := pgTracer.Start(ctx, "PostgresStore.Snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("session.key", key))

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: beginning snapshot: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	instances, byID, err := loadQuestions(ctx, tx, key)
	if err == nil {
		err = loadAnswers(ctx, tx, key, byID)
	}
	if err == nil {
		err = loadHints(ctx, tx, key, byID)
	}
	if err == nil {
		err = loadMetrics(ctx, tx, key, byID)
	}
	if err == nil {
		err = loadEntities(ctx, tx, key, byID)
	}
	if err == nil {
		err = loadCandidates(ctx, tx, key, byID)
	}
	if err == nil {
		err = tx.Commit(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("instances", len(instances)))
	return &session.Session{Key: key, Instances: instances}, nil
}

// Replace implements Store. Prior counts, deletes, and inserts all run in
// one transaction; on any failure the prior contents survive.
func (p *PostgresStore) Replace(ctx context.Context, key string, batch *session.ImportBatch) (session.Counts, error) {
	if err := p.checkOpen(); err != nil {
		return session.Counts{}, err
	}
	if batch == nil {
		return session.Counts{}, fmt.Errorf("batch is required")
	}
	ctx, span := pgTracer.Start(ctx, "PostgresStore.Replace")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.key", key),
		attribute.Int("instances", len(batch.Instances)),
	)

	prior, err := p.replaceTx(ctx, key, batch.Instances)
	RecordReplace("postgres", prior, len(batch.Instances), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return session.Counts{}, err
	}

	p.logger.Debug("session replaced",
		zap.String("session.key", key),
		zap.Int("instances", len(batch.Instances)),
	)
	span.SetStatus(codes.Ok, "replaced")
	return prior, nil
}

// Clear implements Store.
func (p *PostgresStore) Clear(ctx context.Context, key string) (session.Counts, error) {
	if err := p.checkOpen(); err != nil {
		return session.Counts{}, err
	}
	ctx, span := pgTracer.Start(ctx, "PostgresStore.Clear")
	defer span.End()
	span.SetAttributes(attribute.String("session.key", key))

	prior, err := p.replaceTx(ctx, key, nil)
	RecordClear("postgres", prior, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return session.Counts{}, err
	}

	p.logger.Debug("session cleared", zap.String("session.key", key))
	span.SetStatus(codes.Ok, "cleared")
	return prior, nil
}

// replaceTx swaps the session's contents for instances inside a single
// transaction and returns the counts that were removed. A nil instances
// slice clears the session.
func (p *PostgresStore) replaceTx(ctx context.Context, key string, instances []*session.Instance) (session.Counts, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return session.Counts{}, fmt.Errorf("%w: beginning transaction: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	var prior session.Counts
	row := tx.QueryRow(ctx, countsQuery, key)
	if err := row.Scan(&prior.Questions, &prior.Answers, &prior.Hints, &prior.Metrics, &prior.Entities, &prior.Candidates); err != nil {
		return session.Counts{}, fmt.Errorf("%w: counting prior session: %v", ErrUnavailable, err)
	}

	b := &pgx.Batch{}
	for _, table := range sessionTables {
		b.Queue("DELETE FROM "+table+" WHERE session_id = $1", key)
	}
	queueInserts(b, key, instances)
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return session.Counts{}, fmt.Errorf("%w: writing session: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return session.Counts{}, fmt.Errorf("%w: committing: %v", ErrUnavailable, err)
	}
	return prior, nil
}

func queueInserts(b *pgx.Batch, key string, instances []*session.Instance) {
	for pos, inst := range instances {
		b.Queue(`INSERT INTO questions (session_id, instance_id, position, text) VALUES ($1, $2, $3, $4)`,
			key, inst.ID, pos, inst.Question.Text)
		if inst.Answer != nil {
			b.Queue(`INSERT INTO answers (session_id, instance_id, text, auto_generated, model) VALUES ($1, $2, $3, $4, $5)`,
				key, inst.ID, inst.Answer.Text, inst.Answer.AutoGenerated, inst.Answer.Model)
		}
		for hpos, h := range inst.Hints {
			b.Queue(`INSERT INTO hints (session_id, instance_id, position, text, db_id) VALUES ($1, $2, $3, $4, $5)`,
				key, inst.ID, hpos, h.Text, h.DBID)
			for mpos, m := range h.Metrics {
				b.Queue(`INSERT INTO metrics (session_id, instance_id, hint_position, position, name, value, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					key, inst.ID, hpos, mpos, m.Name, m.Value, m.Metadata)
			}
			for epos, e := range h.Entities {
				b.Queue(`INSERT INTO entities (session_id, instance_id, hint_position, position, text, type, start_offset, end_offset, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					key, inst.ID, hpos, epos, e.Text, e.Type, e.Start, e.End, e.Metadata)
			}
		}
		for cpos, c := range inst.Candidates {
			b.Queue(`INSERT INTO candidate_answers (session_id, instance_id, position, text, is_eliminated, is_ground_truth, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				key, inst.ID, cpos, c.Text, c.IsEliminated, c.IsGroundTruth, c.CreatedAt, c.UpdatedAt)
		}
	}
}

func loadQuestions(ctx context.Context, tx pgx.Tx, key string) ([]*session.Instance, map[string]*session.Instance, error) {
	rows, err := tx.Query(ctx, `SELECT instance_id, text FROM questions WHERE session_id = $1 ORDER BY position`, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: loading questions: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var instances []*session.Instance
	byID := make(map[string]*session.Instance)
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, nil, fmt.Errorf("scanning question: %w", err)
		}
		inst := &session.Instance{ID: id, Question: session.Question{Text: text}}
		instances = append(instances, inst)
		byID[id] = inst
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: loading questions: %v", ErrUnavailable, err)
	}
	return instances, byID, nil
}

func loadAnswers(ctx context.Context, tx pgx.Tx, key string, byID map[string]*session.Instance) error {
	rows, err := tx.Query(ctx, `SELECT instance_id, text, auto_generated, model FROM answers WHERE session_id = $1`, key)
	if err != nil {
		return fmt.Errorf("%w: loading answers: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		a := &session.Answer{}
		if err := rows.Scan(&id, &a.Text, &a.AutoGenerated, &a.Model); err != nil {
			return fmt.Errorf("scanning answer: %w", err)
		}
		inst, ok := byID[id]
		if !ok {
			return fmt.Errorf("answer references unknown instance %q", id)
		}
		inst.Answer = a
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: loading answers: %v", ErrUnavailable, err)
	}
	return nil
}

func loadHints(ctx context.Context, tx pgx.Tx, key string, byID map[string]*session.Instance) error {
	rows, err := tx.Query(ctx, `SELECT instance_id, text, db_id FROM hints WHERE session_id = $1 ORDER BY instance_id, position`, key)
	if err != nil {
		return fmt.Errorf("%w: loading hints: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		h := &session.Hint{}
		if err := rows.Scan(&id, &h.Text, &h.DBID); err != nil {
			return fmt.Errorf("scanning hint: %w", err)
		}
		inst, ok := byID[id]
		if !ok {
			return fmt.Errorf("hint references unknown instance %q", id)
		}
		inst.Hints = append(inst.Hints, h)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: loading hints: %v", ErrUnavailable, err)
	}
	return nil
}

// hintAt resolves a (instance, hint position) reference from a child table.
func hintAt(byID map[string]*session.Instance, id string, hpos int) (*session.Hint, error) {
	inst, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("row references unknown instance %q", id)
	}
	if hpos < 0 || hpos >= len(inst.Hints) {
		return nil, fmt.Errorf("row references unknown hint %d of instance %q", hpos, id)
	}
	return inst.Hints[hpos], nil
}

func loadMetrics(ctx context.Context, tx pgx.Tx, key string, byID map[string]*session.Instance) error {
	rows, err := tx.Query(ctx, `SELECT instance_id, hint_position, name, value, metadata FROM metrics WHERE session_id = $1 ORDER BY instance_id, hint_position, position`, key)
	if err != nil {
		return fmt.Errorf("%w: loading metrics: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			hpos int
			m    session.Metric
		)
		if err := rows.Scan(&id, &hpos, &m.Name, &m.Value, &m.Metadata); err != nil {
			return fmt.Errorf("scanning metric: %w", err)
		}
		h, err := hintAt(byID, id, hpos)
		if err != nil {
			return fmt.Errorf("metric: %w", err)
		}
		h.Metrics = append(h.Metrics, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: loading metrics: %v", ErrUnavailable, err)
	}
	return nil
}

func loadEntities(ctx context.Context, tx pgx.Tx, key string, byID map[string]*session.Instance) error {
	rows, err := tx.Query(ctx, `SELECT instance_id, hint_position, text, type, start_offset, end_offset, metadata FROM entities WHERE session_id = $1 ORDER BY instance_id, hint_position, position`, key)
	if err != nil {
		return fmt.Errorf("%w: loading entities: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			hpos int
			e    session.Entity
		)
		if err := rows.Scan(&id, &hpos, &e.Text, &e.Type, &e.Start, &e.End, &e.Metadata); err != nil {
			return fmt.Errorf("scanning entity: %w", err)
		}
		h, err := hintAt(byID, id, hpos)
		if err != nil {
			return fmt.Errorf("entity: %w", err)
		}
		h.Entities = append(h.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: loading entities: %v", ErrUnavailable, err)
	}
	return nil
}

func loadCandidates(ctx context.Context, tx pgx.Tx, key string, byID map[string]*session.Instance) error {
	rows, err := tx.Query(ctx, `SELECT instance_id, text, is_eliminated, is_ground_truth, created_at, updated_at FROM candidate_answers WHERE session_id = $1 ORDER BY instance_id, position`, key)
	if err != nil {
		return fmt.Errorf("%w: loading candidates: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		c := &session.Candidate{}
		if err := rows.Scan(&id, &c.Text, &c.IsEliminated, &c.IsGroundTruth, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("scanning candidate: %w", err)
		}
		inst, ok := byID[id]
		if !ok {
			return fmt.Errorf("candidate references unknown instance %q", id)
		}
		inst.Candidates = append(inst.Candidates, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: loading candidates: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping implements Store.
func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	err := p.pool.Ping(ctx)
	RecordPing("postgres", err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (p *PostgresStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	p.pool.Close()
	return nil
}
