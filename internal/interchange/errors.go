package interchange

import (
	"errors"
	"fmt"
)

// Typed failure conditions for the import/export pipeline. Parse and
// validation errors always surface before any store mutation; only
// ErrStoreUnavailable can occur after validation passed, and retrying the
// whole import is then safe because nothing was discarded.
var (
	// ErrUnsupportedFormat indicates the upload is neither .json nor .csv,
	// or a .json file that is not parseable as JSON at all.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrSchema is the identity of all structural schema violations; the
	// concrete error is a *SchemaError carrying the offending path.
	ErrSchema = errors.New("schema error")

	// ErrMissingQuestion indicates an import without a usable question.
	ErrMissingQuestion = errors.New("missing question")

	// ErrDuplicateQuestion indicates more than one question row in a CSV.
	ErrDuplicateQuestion = errors.New("duplicate question")

	// ErrDuplicateAnswer indicates more than one answer row in a CSV.
	ErrDuplicateAnswer = errors.New("duplicate answer")

	// ErrInvalidRowType indicates a CSV row type outside question/answer/hint.
	ErrInvalidRowType = errors.New("invalid row type")

	// ErrInvalidEntitySpan indicates entity offsets outside the owning
	// hint's text.
	ErrInvalidEntitySpan = errors.New("invalid entity span")

	// ErrInvalidMetricValue indicates a metric value that is not a finite
	// number.
	ErrInvalidMetricValue = errors.New("invalid metric value")

	// ErrCandidateProjectionMismatch indicates the flat candidate list
	// disagrees with the detailed one. Rejected, never repaired.
	ErrCandidateProjectionMismatch = errors.New("candidate projection mismatch")

	// ErrPayloadTooLarge indicates the upload exceeds the configured bound.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrStoreUnavailable indicates the session store could not be reached.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrServiceClosed is returned by operations on a closed service.
	ErrServiceClosed = errors.New("interchange service is closed")
)

// SchemaError reports the first structurally invalid field found while
// parsing a document, with a dotted path locating it (for example
// "subsets.train.instances.42.hints[1].entities[0].start").
type SchemaError struct {
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error at %s: %s", e.Path, e.Reason)
}

// Is makes errors.Is(err, ErrSchema) hold for every SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErrorf(path, format string, args ...any) *SchemaError {
	return &SchemaError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
