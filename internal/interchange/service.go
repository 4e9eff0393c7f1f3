package interchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/events"
	"github.com/hinteval/sessiond/internal/logging"
	"github.com/hinteval/sessiond/internal/session"
	"github.com/hinteval/sessiond/internal/sessionstore"
)

const instrumentationName = "github.com/hinteval/sessiond/internal/interchange"

// DefaultMaxUploadBytes bounds uploads when config leaves the limit unset.
const DefaultMaxUploadBytes = 10 << 20

// clearedMessage is returned whenever a session's contents are wiped.
const clearedMessage = "Session wiped."

// ServiceConfig holds interchange service settings.
type ServiceConfig struct {
	// MaxUploadBytes caps the size of an uploaded document.
	MaxUploadBytes int64
}

// DefaultServiceConfig returns the default service configuration.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{MaxUploadBytes: DefaultMaxUploadBytes}
}

// ImportResult reports a completed import.
type ImportResult struct {
	SessionID string
	Format    Format
	// Info is the human-readable summary shown to the uploader.
	Info   string
	Counts session.Counts
	// AutoGenerated is set when at least one imported answer awaits
	// downstream generation.
	AutoGenerated bool
	// Cleared describes the contents replaced by this import. Nil when the
	// session was already empty.
	Cleared *ClearedReport
}

// ClearedReport describes contents removed from a session.
type ClearedReport struct {
	Cleared bool
	Message string
	Counts  session.Counts
}

// ExportResult carries a rendered session document.
type ExportResult struct {
	SessionID   string
	Format      Format
	Filename    string
	ContentType string
	Data        []byte
}

// ClearResult reports a completed clear.
type ClearResult struct {
	SessionID string
	Cleared   bool
	Message   string
	Removed   session.Counts
}

// Service moves session data across the interchange boundary: uploads
// replace the session's contents as one unit, exports render read-only
// snapshots, clears wipe the session.
type Service interface {
	// Import detects the upload's format, parses and validates it, then
	// atomically replaces the session's contents. On any error the prior
	// contents survive untouched.
	Import(ctx context.Context, sessionKey, filename string, r io.Reader) (*ImportResult, error)

	// Export renders a snapshot of the session in the requested format.
	// It never mutates; an empty session renders an empty document.
	Export(ctx context.Context, sessionKey string, format Format) (*ExportResult, error)

	// Clear wipes the session's contents. Clearing an empty session
	// succeeds with zero counts.
	Clear(ctx context.Context, sessionKey string) (*ClearResult, error)

	// Close marks the service closed. Subsequent operations fail.
	Close() error
}

type service struct {
	config *ServiceConfig
	store  sessionstore.Store
	events events.Publisher
	logger *logging.Logger

	fullParser   *FullBackupParser
	simpleParser *SimpleJsonParser
	csvParser    *CsvParser
	validator    *Validator
	fullOut      *FullJsonSerializer
	simpleOut    *SimpleJsonSerializer
	csvOut       *CsvSerializer

	tracer trace.Tracer
	meter  metric.Meter

	importCounter metric.Int64Counter
	exportCounter metric.Int64Counter
	clearCounter  metric.Int64Counter
	importSize    metric.Int64Histogram

	mu     sync.RWMutex
	closed bool
}

// NewService creates an interchange service. The publisher may be nil to
// disable events.
func NewService(cfg *ServiceConfig, store sessionstore.Store, publisher events.Publisher, logger *logging.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	s := &service{
		config:       cfg,
		store:        store,
		events:       publisher,
		logger:       logger,
		fullParser:   NewFullBackupParser(),
		simpleParser: NewSimpleJsonParser(),
		csvParser:    NewCsvParser(),
		validator:    NewValidator(),
		fullOut:      NewFullJsonSerializer(),
		simpleOut:    NewSimpleJsonSerializer(),
		csvOut:       NewCsvSerializer(),
		tracer:       otel.Tracer(instrumentationName),
		meter:        otel.Meter(instrumentationName),
	}
	s.initMetrics()

	return s, nil
}

func (s *service) initMetrics() {
	var err error

	s.importCounter, err = s.meter.Int64Counter(
		"sessiond.interchange.imports_total",
		metric.WithDescription("Total session imports by format and outcome"),
		metric.WithUnit("{import}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create import counter", zap.Error(err))
	}

	s.exportCounter, err = s.meter.Int64Counter(
		"sessiond.interchange.exports_total",
		metric.WithDescription("Total session exports by format and outcome"),
		metric.WithUnit("{export}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create export counter", zap.Error(err))
	}

	s.clearCounter, err = s.meter.Int64Counter(
		"sessiond.interchange.clears_total",
		metric.WithDescription("Total session clears by outcome"),
		metric.WithUnit("{clear}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create clear counter", zap.Error(err))
	}

	s.importSize, err = s.meter.Int64Histogram(
		"sessiond.interchange.import_size_bytes",
		metric.WithDescription("Size of uploaded documents"),
		metric.WithUnit("By"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create import size histogram", zap.Error(err))
	}
}

func (s *service) Import(ctx context.Context, sessionKey, filename string, r io.Reader) (*ImportResult, error) {
	ctx, span := s.tracer.Start(ctx, "interchange.import",
		trace.WithAttributes(attribute.String("session.key", sessionKey)))
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := session.ValidateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("invalid session key: %w", err)
	}

	data, err := readLimited(r, s.config.MaxUploadBytes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countImport(ctx, "", "rejected")
		return nil, err
	}
	span.SetAttributes(attribute.Int("upload.bytes", len(data)))
	if s.importSize != nil {
		s.importSize.Record(ctx, int64(len(data)))
	}

	format, err := Detect(filename, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countImport(ctx, "", "unsupported")
		return nil, err
	}
	span.SetAttributes(attribute.String("format", string(format)))

	batch, err := s.parse(format, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countImport(ctx, format, "invalid")
		return nil, err
	}
	if err := s.validator.Validate(batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countImport(ctx, format, "invalid")
		return nil, err
	}

	prior, err := s.store.Replace(ctx, sessionKey, batch)
	if err != nil {
		err = mapStoreErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countImport(ctx, format, "store_error")
		return nil, err
	}

	counts := batch.Counts()
	result := &ImportResult{
		SessionID:     sessionKey,
		Format:        format,
		Info:          importInfo(format, counts),
		Counts:        counts,
		AutoGenerated: batch.NeedsGeneration(),
	}
	if !prior.IsZero() {
		result.Cleared = &ClearedReport{Cleared: true, Message: clearedMessage, Counts: prior}
	}

	span.SetAttributes(
		attribute.Int("counts.questions", counts.Questions),
		attribute.Int("counts.hints", counts.Hints),
		attribute.Int("counts.candidates", counts.Candidates),
	)
	s.countImport(ctx, format, "success")

	s.publishImported(ctx, result)

	s.logger.Info(ctx, "imported session data",
		zap.String("session.key", sessionKey),
		zap.String("format", string(format)),
		zap.Int("questions", counts.Questions),
		zap.Int("hints", counts.Hints),
		zap.Int("candidates", counts.Candidates),
		zap.Bool("auto_generated", result.AutoGenerated),
	)

	return result, nil
}

func (s *service) Export(ctx context.Context, sessionKey string, format Format) (*ExportResult, error) {
	ctx, span := s.tracer.Start(ctx, "interchange.export",
		trace.WithAttributes(
			attribute.String("session.key", sessionKey),
			attribute.String("format", string(format)),
		))
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := session.ValidateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("invalid session key: %w", err)
	}

	snapshot, err := s.store.Snapshot(ctx, sessionKey)
	if err != nil {
		err = mapStoreErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countExport(ctx, format, "store_error")
		return nil, err
	}

	data, err := s.serialize(format, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countExport(ctx, format, "error")
		return nil, fmt.Errorf("failed to serialize session: %w", err)
	}

	span.SetAttributes(attribute.Int("export.bytes", len(data)))
	s.countExport(ctx, format, "success")

	s.logger.Debug(ctx, "exported session data",
		zap.String("session.key", sessionKey),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
	)

	return &ExportResult{
		SessionID:   sessionKey,
		Format:      format,
		Filename:    format.Filename(),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func (s *service) Clear(ctx context.Context, sessionKey string) (*ClearResult, error) {
	ctx, span := s.tracer.Start(ctx, "interchange.clear",
		trace.WithAttributes(attribute.String("session.key", sessionKey)))
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := session.ValidateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("invalid session key: %w", err)
	}

	removed, err := s.store.Clear(ctx, sessionKey)
	if err != nil {
		err = mapStoreErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.countClear(ctx, "store_error")
		return nil, err
	}

	span.SetAttributes(attribute.Int("counts.questions", removed.Questions))
	s.countClear(ctx, "success")

	s.publishCleared(ctx, sessionKey, removed)

	s.logger.Info(ctx, "cleared session",
		zap.String("session.key", sessionKey),
		zap.Int("questions", removed.Questions),
		zap.Int("hints", removed.Hints),
	)

	return &ClearResult{
		SessionID: sessionKey,
		Cleared:   true,
		Message:   clearedMessage,
		Removed:   removed,
	}, nil
}

func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}

func (s *service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

func (s *service) parse(format Format, data []byte) (*session.ImportBatch, error) {
	switch format {
	case FormatFullBackup:
		return s.fullParser.Parse(data)
	case FormatSimpleJSON:
		return s.simpleParser.Parse(data)
	case FormatCSV:
		return s.csvParser.Parse(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (s *service) serialize(format Format, sess *session.Session) ([]byte, error) {
	switch format {
	case FormatFullBackup:
		return s.fullOut.Marshal(sess)
	case FormatSimpleJSON:
		return s.simpleOut.Marshal(sess)
	case FormatCSV:
		return s.csvOut.Marshal(sess)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (s *service) countImport(ctx context.Context, format Format, outcome string) {
	if s.importCounter == nil {
		return
	}
	s.importCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", string(format)),
		attribute.String("outcome", outcome),
	))
}

func (s *service) countExport(ctx context.Context, format Format, outcome string) {
	if s.exportCounter == nil {
		return
	}
	s.exportCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", string(format)),
		attribute.String("outcome", outcome),
	))
}

func (s *service) countClear(ctx context.Context, outcome string) {
	if s.clearCounter == nil {
		return
	}
	s.clearCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// publishImported announces the import. Best-effort: a broker outage never
// fails an import that already committed.
func (s *service) publishImported(ctx context.Context, res *ImportResult) {
	if s.events == nil {
		return
	}
	evt := events.ImportedEvent{
		SessionID:     res.SessionID,
		Format:        string(res.Format),
		Counts:        res.Counts,
		AutoGenerated: res.AutoGenerated,
	}
	if err := s.events.SessionImported(ctx, evt); err != nil {
		s.logger.Warn(ctx, "failed to publish import event", zap.Error(err))
	}
}

func (s *service) publishCleared(ctx context.Context, sessionKey string, removed session.Counts) {
	if s.events == nil {
		return
	}
	evt := events.ClearedEvent{SessionID: sessionKey, Removed: removed}
	if err := s.events.SessionCleared(ctx, evt); err != nil {
		s.logger.Warn(ctx, "failed to publish clear event", zap.Error(err))
	}
}

// readLimited reads at most max bytes, failing fast on oversized uploads
// without buffering them.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", ErrPayloadTooLarge, max)
	}
	return data, nil
}

// importInfo renders the summary line in the wording uploaders have always
// seen.
func importInfo(format Format, c session.Counts) string {
	if format == FormatFullBackup {
		return fmt.Sprintf("Restored %d Questions, %d Hints, %d Candidates", c.Questions, c.Hints, c.Candidates)
	}
	return fmt.Sprintf("Imported: 1 Question, %d Hints", c.Hints)
}

// mapStoreErr lifts store connectivity failures into the interchange error
// taxonomy so transports can answer 503.
func mapStoreErr(err error) error {
	if errors.Is(err, sessionstore.ErrUnavailable) || errors.Is(err, sessionstore.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
