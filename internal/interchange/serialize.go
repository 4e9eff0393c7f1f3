package interchange

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"time"

	"github.com/hinteval/sessiond/internal/session"
)

// Output wire structures. These mirror the parse-side types but marshal
// concretely: the canonical export always uses the object form of every
// union.

type outBackupDoc struct {
	Name    string               `json:"name"`
	Subsets map[string]outSubset `json:"subsets"`
}

type outSubset struct {
	Instances map[string]outInstance `json:"instances"`
}

type outInstance struct {
	Question       outQuestion    `json:"question"`
	Answers        []outAnswer    `json:"answers,omitempty"`
	ModelName      string         `json:"model_name,omitempty"`
	Hints          []outHint      `json:"hints"`
	CandidatesFull []outCandidate `json:"candidates_full,omitempty"`
	Candidates     []string       `json:"candidates,omitempty"`
}

type outQuestion struct {
	Question string `json:"question"`
}

type outAnswer struct {
	Answer        string `json:"answer"`
	AutoGenerated bool   `json:"auto_generated,omitempty"`
}

type outHint struct {
	Hint     string      `json:"hint"`
	DBID     *int64      `json:"db_id,omitempty"`
	Metrics  []outMetric `json:"metrics,omitempty"`
	Entities []outEntity `json:"entities,omitempty"`
}

type outMetric struct {
	Name     string         `json:"name"`
	Value    float64        `json:"value"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type outEntity struct {
	Text     string         `json:"text"`
	Type     string         `json:"type"`
	Start    int            `json:"start"`
	End      int            `json:"end"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type outCandidate struct {
	Text          string `json:"text"`
	IsEliminated  bool   `json:"is_eliminated"`
	IsGroundTruth bool   `json:"is_groundtruth"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// exportDocName labels full backups taken from the live session.
const exportDocName = "live_session"

// exportSubsetName is the single subset a live session exports into.
const exportSubsetName = "default"

// FullJsonSerializer writes the lossless nested backup document.
type FullJsonSerializer struct{}

// NewFullJsonSerializer creates a full backup serializer.
func NewFullJsonSerializer() *FullJsonSerializer { return &FullJsonSerializer{} }

// Marshal renders the session as an indented full backup document. Every
// field the parsers accept round-trips through this output.
func (s *FullJsonSerializer) Marshal(sess *session.Session) ([]byte, error) {
	instances := make(map[string]outInstance, len(sess.Instances))
	for _, inst := range sess.Instances {
		instances[inst.ID] = marshalInstance(inst)
	}
	doc := outBackupDoc{
		Name: exportDocName,
		Subsets: map[string]outSubset{
			exportSubsetName: {Instances: instances},
		},
	}
	return json.MarshalIndent(doc, "", "  ")
}

func marshalInstance(inst *session.Instance) outInstance {
	out := outInstance{
		Question: outQuestion{Question: inst.Question.Text},
		Hints:    make([]outHint, 0, len(inst.Hints)),
	}

	if inst.Answer != nil {
		out.ModelName = inst.Answer.Model
		// A placeholder answer stays off the wire; importers re-derive the
		// auto-generated flag from its absence.
		if inst.Answer.Text != "" {
			out.Answers = []outAnswer{{
				Answer:        inst.Answer.Text,
				AutoGenerated: inst.Answer.AutoGenerated,
			}}
		}
	}

	for _, h := range inst.Hints {
		oh := outHint{Hint: h.Text, DBID: h.DBID}
		for _, m := range h.Metrics {
			oh.Metrics = append(oh.Metrics, outMetric{Name: m.Name, Value: m.Value, Metadata: m.Metadata})
		}
		for _, e := range h.Entities {
			oh.Entities = append(oh.Entities, outEntity{
				Text:     e.Text,
				Type:     e.Type,
				Start:    e.Start,
				End:      e.End,
				Metadata: e.Metadata,
			})
		}
		out.Hints = append(out.Hints, oh)
	}

	for _, c := range inst.Candidates {
		oc := outCandidate{
			Text:          c.Text,
			IsEliminated:  c.IsEliminated,
			IsGroundTruth: c.IsGroundTruth,
			CreatedAt:     c.CreatedAt.Format(time.RFC3339Nano),
		}
		if c.UpdatedAt != nil {
			oc.UpdatedAt = c.UpdatedAt.Format(time.RFC3339Nano)
		}
		out.CandidatesFull = append(out.CandidatesFull, oc)
		out.Candidates = append(out.Candidates, c.Text)
	}

	return out
}

type outSimpleSession struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer,omitempty"`
	Model    string   `json:"model_name,omitempty"`
	Hints    []string `json:"hints"`
}

// SimpleJsonSerializer writes the flat single-question projection of the
// first instance. The output is lossy but re-importable.
type SimpleJsonSerializer struct{}

// NewSimpleJsonSerializer creates a simple JSON serializer.
func NewSimpleJsonSerializer() *SimpleJsonSerializer { return &SimpleJsonSerializer{} }

// Marshal renders the first instance as a flat session document. An empty
// session renders an empty object.
func (s *SimpleJsonSerializer) Marshal(sess *session.Session) ([]byte, error) {
	if len(sess.Instances) == 0 {
		return []byte("{}"), nil
	}
	inst := sess.Instances[0]
	doc := outSimpleSession{
		Question: inst.Question.Text,
		Hints:    make([]string, 0, len(inst.Hints)),
	}
	if inst.Answer != nil {
		doc.Answer = inst.Answer.Text
		doc.Model = inst.Answer.Model
	}
	for _, h := range inst.Hints {
		doc.Hints = append(doc.Hints, h.Text)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// CsvSerializer writes the two-column type,content projection, one block of
// rows per instance.
type CsvSerializer struct{}

// NewCsvSerializer creates a CSV serializer.
func NewCsvSerializer() *CsvSerializer { return &CsvSerializer{} }

// Marshal renders the session as CSV rows. An empty session renders just
// the header.
func (s *CsvSerializer) Marshal(sess *session.Session) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"type", "content"}); err != nil {
		return nil, err
	}
	for _, inst := range sess.Instances {
		if err := w.Write([]string{"question", inst.Question.Text}); err != nil {
			return nil, err
		}
		if inst.Answer != nil && inst.Answer.Text != "" {
			if err := w.Write([]string{"answer", inst.Answer.Text}); err != nil {
				return nil, err
			}
		}
		for _, h := range inst.Hints {
			if err := w.Write([]string{"hint", h.Text}); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
