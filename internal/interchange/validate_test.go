package interchange

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hinteval/sessiond/internal/session"
)

func validBatch() *session.ImportBatch {
	return &session.ImportBatch{
		Instances: []*session.Instance{
			{
				ID:       "0",
				Question: session.Question{Text: "What is the capital of France?"},
				Answer:   &session.Answer{Text: "Paris"},
				Hints: []*session.Hint{
					{
						Text:    "It is known as the city of light.",
						Metrics: []session.Metric{{Name: "relevance", Value: 0.9}},
						Entities: []session.Entity{
							{Text: "city of light", Type: "WORK_OF_ART", Start: 19, End: 32},
						},
					},
				},
				Candidates: []*session.Candidate{
					{Text: "Paris"},
					{Text: "Lyon", IsEliminated: true},
				},
			},
		},
		CandidateProjections: map[string][]string{
			"0": {"Paris", "Lyon"},
		},
	}
}

func TestValidator_Valid(t *testing.T) {
	assert.NoError(t, NewValidator().Validate(validBatch()))
}

func TestValidator_EmptyBatch(t *testing.T) {
	assert.NoError(t, NewValidator().Validate(&session.ImportBatch{}))
}

func TestValidator_MissingQuestion(t *testing.T) {
	batch := validBatch()
	batch.Instances[0].Question.Text = "   "

	err := NewValidator().Validate(batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingQuestion)
}

func TestValidator_DuplicateInstanceID(t *testing.T) {
	batch := validBatch()
	dup := *batch.Instances[0]
	batch.Instances = append(batch.Instances, &dup)

	err := NewValidator().Validate(batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	assert.Contains(t, err.Error(), "duplicate instance id")
}

func TestValidator_NonFiniteMetrics(t *testing.T) {
	for name, value := range map[string]float64{
		"NaN":      math.NaN(),
		"+Inf":     math.Inf(1),
		"negative": math.Inf(-1),
	} {
		t.Run(name, func(t *testing.T) {
			batch := validBatch()
			batch.Instances[0].Hints[0].Metrics[0].Value = value

			err := NewValidator().Validate(batch)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMetricValue)
			assert.Contains(t, err.Error(), "not finite")
		})
	}
}

func TestValidator_EntitySpans(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		wantErr    bool
	}{
		{"full span", 0, 33, false},
		{"empty span at end", 33, 33, false},
		{"negative start", -1, 5, true},
		{"end before start", 10, 5, true},
		{"end past text", 0, 34, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := validBatch()
			e := &batch.Instances[0].Hints[0].Entities[0]
			e.Start, e.End = tt.start, tt.end

			err := NewValidator().Validate(batch)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEntitySpan)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_ProjectionMismatch(t *testing.T) {
	tests := []struct {
		name       string
		projection []string
	}{
		{"different text", []string{"Paris", "Marseille"}},
		{"missing entry", []string{"Paris"}},
		{"extra entry", []string{"Paris", "Lyon", "Nice"}},
		{"reordered", []string{"Lyon", "Paris"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := validBatch()
			batch.CandidateProjections["0"] = tt.projection

			err := NewValidator().Validate(batch)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCandidateProjectionMismatch)
		})
	}
}

func TestValidator_NoProjectionRecorded(t *testing.T) {
	batch := validBatch()
	delete(batch.CandidateProjections, "0")

	// Candidates without a flat projection have nothing to agree with.
	assert.NoError(t, NewValidator().Validate(batch))
}
