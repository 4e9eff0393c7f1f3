package interchange

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hinteval/sessiond/internal/session"
)

// Validator checks a parsed ImportBatch before anything touches the store.
// The first violation aborts the import; a batch commits whole or not at
// all. Parsers already reject malformed documents, so these checks guard
// the constraints a well-formed document (or a programmatic batch) can
// still break.
type Validator struct{}

// NewValidator creates a batch validator.
func NewValidator() *Validator { return &Validator{} }

// Validate reports the first constraint violation in the batch, or nil.
func (v *Validator) Validate(batch *session.ImportBatch) error {
	seen := make(map[string]struct{}, len(batch.Instances))
	for _, inst := range batch.Instances {
		if strings.TrimSpace(inst.Question.Text) == "" {
			return fmt.Errorf("%w: instance %s has no question text", ErrMissingQuestion, inst.ID)
		}
		if _, dup := seen[inst.ID]; dup {
			return schemaErrorf("instances."+inst.ID, "duplicate instance id")
		}
		seen[inst.ID] = struct{}{}

		for hi, h := range inst.Hints {
			for _, m := range h.Metrics {
				if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
					return fmt.Errorf("%w: instance %s hint %d metric %q is not finite",
						ErrInvalidMetricValue, inst.ID, hi, m.Name)
				}
			}
			for ei, e := range h.Entities {
				if e.Start < 0 || e.End < e.Start || e.End > len(h.Text) {
					return fmt.Errorf("%w: instance %s hint %d entity %d [%d:%d) outside hint of length %d",
						ErrInvalidEntitySpan, inst.ID, hi, ei, e.Start, e.End, len(h.Text))
				}
			}
		}

		// Sources carrying both candidate representations must agree;
		// mismatches are rejected, never repaired.
		if projection, ok := batch.CandidateProjections[inst.ID]; ok {
			if !slices.Equal(inst.CandidateTexts(), projection) {
				return fmt.Errorf("%w: instance %s flat candidates do not match candidates_full",
					ErrCandidateProjectionMismatch, inst.ID)
			}
		}
	}
	return nil
}
