package session

import "time"

// Session is the root aggregate: all research data held under one session key.
type Session struct {
	// Key is the opaque session identifier supplied by the caller.
	Key string

	// Instances in insertion order.
	Instances []*Instance
}

// Instance is one question-centric unit within a session.
type Instance struct {
	// ID is unique within the session. Sourced from the backup document,
	// "0" for single-instance formats.
	ID string

	// Question is required; instances without a parseable question are
	// rejected at parse time and never stored.
	Question Question

	// Answer is nil only for instances that never carried nor awaited an
	// answer. An import that omits the answer stores an empty-text Answer
	// with AutoGenerated set, signaling downstream generation.
	Answer *Answer

	// Hints in source order. Order is semantically meaningful.
	Hints []*Hint

	// Candidates in source order. The flat text projection is derived,
	// never stored separately.
	Candidates []*Candidate
}

// Question holds the question text (non-empty).
type Question struct {
	Text string
}

// Answer holds the answer text and its provenance.
type Answer struct {
	Text string

	// AutoGenerated is true when the import omitted the answer and a
	// downstream generation step is expected to fill it.
	AutoGenerated bool

	// Model names the model that produced an auto-generated answer.
	// Empty for manual answers and for answers still awaiting generation.
	Model string
}

// Hint is one hint for a question, optionally annotated with evaluation
// metrics and entity spans.
type Hint struct {
	Text string

	// DBID is an optional externally-assigned identifier, opaque here.
	DBID *int64

	// Metrics in source order; duplicates are kept, not merged.
	Metrics []Metric

	// Entities in source order.
	Entities []Entity
}

// Metric is a named numeric evaluation result attached to a hint.
type Metric struct {
	Name     string
	Value    float64
	Metadata map[string]any
}

// Entity is an annotated span of the owning hint's text.
// Offsets are byte offsets into the UTF-8 text: 0 <= Start <= End <= len(text).
type Entity struct {
	Text     string
	Type     string
	Start    int
	End      int
	Metadata map[string]any
}

// Candidate is one candidate answer in the elimination game.
type Candidate struct {
	Text          string
	IsEliminated  bool
	IsGroundTruth bool
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

// ImportBatch is the transient result of parsing an uploaded file. It is
// discarded on any failure and committed only as a whole.
type ImportBatch struct {
	Instances []*Instance

	// CandidateProjections holds the flat candidate text lists carried by
	// the source document, keyed by instance ID. Kept only so validation
	// can check agreement with the detailed lists; never stored.
	CandidateProjections map[string][]string
}

// Counts tallies the entities held by a session or batch. All six keys are
// always present on the wire.
type Counts struct {
	Questions  int `json:"questions"`
	Answers    int `json:"answers"`
	Hints      int `json:"hints"`
	Metrics    int `json:"metrics"`
	Entities   int `json:"entities"`
	Candidates int `json:"candidates"`
}

// IsZero reports whether every tally is zero.
func (c Counts) IsZero() bool {
	return c == Counts{}
}

// Counts tallies the session contents. Placeholder answers awaiting
// generation (empty text) are not counted as answers.
func (s *Session) Counts() Counts {
	return countInstances(s.Instances)
}

// Counts tallies the batch contents.
func (b *ImportBatch) Counts() Counts {
	return countInstances(b.Instances)
}

func countInstances(instances []*Instance) Counts {
	var c Counts
	for _, inst := range instances {
		c.Questions++
		if inst.Answer != nil && inst.Answer.Text != "" {
			c.Answers++
		}
		for _, h := range inst.Hints {
			c.Hints++
			c.Metrics += len(h.Metrics)
			c.Entities += len(h.Entities)
		}
		c.Candidates += len(inst.Candidates)
	}
	return c
}

// NeedsGeneration reports whether any instance in the batch awaits a
// downstream answer.
func (b *ImportBatch) NeedsGeneration() bool {
	for _, inst := range b.Instances {
		if inst.Answer != nil && inst.Answer.AutoGenerated && inst.Answer.Text == "" {
			return true
		}
	}
	return false
}

// CandidateTexts derives the flat candidate projection from the detailed
// list, preserving order.
func (i *Instance) CandidateTexts() []string {
	if len(i.Candidates) == 0 {
		return nil
	}
	texts := make([]string, len(i.Candidates))
	for n, c := range i.Candidates {
		texts[n] = c.Text
	}
	return texts
}

// Clone returns a deep copy of the session, safe to read after the original
// is mutated or discarded.
func (s *Session) Clone() *Session {
	out := &Session{Key: s.Key}
	if len(s.Instances) == 0 {
		return out
	}
	out.Instances = make([]*Instance, len(s.Instances))
	for n, inst := range s.Instances {
		out.Instances[n] = inst.clone()
	}
	return out
}

func (i *Instance) clone() *Instance {
	out := &Instance{
		ID:       i.ID,
		Question: i.Question,
	}
	if i.Answer != nil {
		a := *i.Answer
		out.Answer = &a
	}
	if len(i.Hints) > 0 {
		out.Hints = make([]*Hint, len(i.Hints))
		for n, h := range i.Hints {
			out.Hints[n] = h.clone()
		}
	}
	if len(i.Candidates) > 0 {
		out.Candidates = make([]*Candidate, len(i.Candidates))
		for n, c := range i.Candidates {
			cc := *c
			if c.UpdatedAt != nil {
				t := *c.UpdatedAt
				cc.UpdatedAt = &t
			}
			out.Candidates[n] = &cc
		}
	}
	return out
}

func (h *Hint) clone() *Hint {
	out := &Hint{Text: h.Text}
	if h.DBID != nil {
		id := *h.DBID
		out.DBID = &id
	}
	if len(h.Metrics) > 0 {
		out.Metrics = make([]Metric, len(h.Metrics))
		for n, m := range h.Metrics {
			out.Metrics[n] = Metric{Name: m.Name, Value: m.Value, Metadata: cloneMetadata(m.Metadata)}
		}
	}
	if len(h.Entities) > 0 {
		out.Entities = make([]Entity, len(h.Entities))
		for n, e := range h.Entities {
			out.Entities[n] = Entity{Text: e.Text, Type: e.Type, Start: e.Start, End: e.End, Metadata: cloneMetadata(e.Metadata)}
		}
	}
	return out
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
