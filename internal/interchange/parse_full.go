package interchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hinteval/sessiond/internal/session"
)

// Wire structures for the full backup document:
//
//	{name, subsets: {<subset>: {instances: {<id>: <instance>}}}}
//
// Unknown keys anywhere are ignored and never round-tripped.

type wireBackupDoc struct {
	Name    string                `json:"name"`
	Subsets map[string]wireSubset `json:"subsets"`

	// Instances carries legacy flattened documents that predate the
	// subsets nesting: either an id→instance map or a single inlined
	// instance object.
	Instances json.RawMessage `json:"instances"`
}

type wireSubset struct {
	Instances map[string]json.RawMessage `json:"instances"`
}

type wireInstance struct {
	Question       json.RawMessage   `json:"question"`
	Answers        []json.RawMessage `json:"answers"`
	ModelName      string            `json:"model_name"`
	Hints          []json.RawMessage `json:"hints"`
	CandidatesFull []wireCandidate   `json:"candidates_full"`
	Candidates     []string          `json:"candidates"`
}

type wireAnswer struct {
	Answer        string `json:"answer"`
	AutoGenerated bool   `json:"auto_generated"`
}

type wireHint struct {
	Hint     string       `json:"hint"`
	DBID     *int64       `json:"db_id"`
	Metrics  []wireMetric `json:"metrics"`
	Entities []wireEntity `json:"entities"`
}

type wireMetric struct {
	Name     string          `json:"name"`
	Value    json.RawMessage `json:"value"`
	Metadata map[string]any  `json:"metadata"`
}

type wireEntity struct {
	Text     string         `json:"text"`
	Type     string         `json:"type"`
	Start    *int           `json:"start"`
	End      *int           `json:"end"`
	Metadata map[string]any `json:"metadata"`
}

type wireCandidate struct {
	Text          string `json:"text"`
	IsEliminated  bool   `json:"is_eliminated"`
	IsGroundTruth bool   `json:"is_groundtruth"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// FullBackupParser parses the nested backup document into an ImportBatch
// spanning every instance of every subset. The first structural violation
// fails the whole parse; invalid instances are never silently dropped.
type FullBackupParser struct {
	now func() time.Time
}

// NewFullBackupParser creates a parser using the wall clock for defaulted
// candidate timestamps.
func NewFullBackupParser() *FullBackupParser {
	return &FullBackupParser{now: time.Now}
}

// Parse decodes a full backup document.
func (p *FullBackupParser) Parse(data []byte) (*session.ImportBatch, error) {
	var doc wireBackupDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schemaFromJSONError("", err)
	}

	batch := &session.ImportBatch{CandidateProjections: map[string][]string{}}

	add := func(id, path string, raw json.RawMessage) error {
		inst, projection, err := p.parseInstance(id, path, raw)
		if err != nil {
			return err
		}
		batch.Instances = append(batch.Instances, inst)
		if projection != nil {
			batch.CandidateProjections[id] = projection
		}
		return nil
	}

	switch {
	case doc.Subsets != nil:
		for _, name := range sortedKeys(doc.Subsets) {
			sub := doc.Subsets[name]
			for _, id := range sortedKeys(sub.Instances) {
				path := fmt.Sprintf("subsets.%s.instances.%s", name, id)
				if err := add(id, path, sub.Instances[id]); err != nil {
					return nil, err
				}
			}
		}
	case doc.Instances != nil:
		var m map[string]json.RawMessage
		if err := json.Unmarshal(doc.Instances, &m); err != nil {
			return nil, schemaErrorf("instances", "expected an object")
		}
		if _, inlined := m["question"]; inlined {
			// Single flattened instance, as the original exporter emitted.
			if err := add("0", "instances", doc.Instances); err != nil {
				return nil, err
			}
			break
		}
		for _, id := range sortedKeys(m) {
			if err := add(id, "instances."+id, m[id]); err != nil {
				return nil, err
			}
		}
	default:
		return nil, schemaErrorf("subsets", "missing subsets object")
	}

	return batch, nil
}

// parseInstance converts one wire instance. It returns the flat candidate
// projection when the source carried one, for the validator to check.
func (p *FullBackupParser) parseInstance(id, path string, raw json.RawMessage) (*session.Instance, []string, error) {
	var w wireInstance
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, nil, schemaFromJSONError(path, err)
	}

	qText, err := questionText(w.Question)
	if err != nil {
		return nil, nil, schemaErrorf(path+".question", "%v", err)
	}
	if strings.TrimSpace(qText) == "" {
		return nil, nil, schemaErrorf(path+".question", "missing question text")
	}

	inst := &session.Instance{
		ID:       id,
		Question: session.Question{Text: qText},
	}

	answer := &session.Answer{Model: w.ModelName}
	if len(w.Answers) > 0 {
		a, err := answerValue(w.Answers[0])
		if err != nil {
			return nil, nil, schemaErrorf(path+".answers[0]", "%v", err)
		}
		answer.Text = a.Answer
		answer.AutoGenerated = a.AutoGenerated
	}
	if answer.Text == "" {
		answer.AutoGenerated = true
	}
	inst.Answer = answer

	for i, rawHint := range w.Hints {
		h, err := parseHint(rawHint, fmt.Sprintf("%s.hints[%d]", path, i))
		if err != nil {
			return nil, nil, err
		}
		inst.Hints = append(inst.Hints, h)
	}

	now := p.now()
	for i, c := range w.CandidatesFull {
		cpath := fmt.Sprintf("%s.candidates_full[%d]", path, i)
		if c.Text == "" {
			return nil, nil, schemaErrorf(cpath+".text", "missing candidate text")
		}
		created := now
		if c.CreatedAt != "" {
			created, err = parseTimestamp(c.CreatedAt)
			if err != nil {
				return nil, nil, schemaErrorf(cpath+".created_at", "unrecognized timestamp %q", c.CreatedAt)
			}
		}
		cand := &session.Candidate{
			Text:          c.Text,
			IsEliminated:  c.IsEliminated,
			IsGroundTruth: c.IsGroundTruth,
			CreatedAt:     created,
		}
		if c.UpdatedAt != "" {
			updated, err := parseTimestamp(c.UpdatedAt)
			if err != nil {
				return nil, nil, schemaErrorf(cpath+".updated_at", "unrecognized timestamp %q", c.UpdatedAt)
			}
			cand.UpdatedAt = &updated
		}
		inst.Candidates = append(inst.Candidates, cand)
	}

	var projection []string
	if w.Candidates != nil {
		projection = w.Candidates
		if len(w.CandidatesFull) == 0 {
			// Flat-only source: synthesize the detailed list so the texts
			// are not dropped.
			for _, text := range w.Candidates {
				inst.Candidates = append(inst.Candidates, &session.Candidate{Text: text, CreatedAt: now})
			}
		}
	}

	return inst, projection, nil
}

// parseHint resolves the string-or-object hint union into a canonical Hint.
// Shared with the simple JSON parser for the bare-string case.
func parseHint(raw json.RawMessage, path string) (*session.Hint, error) {
	if jsonStartsWith(raw, '"') {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, schemaFromJSONError(path, err)
		}
		if text == "" {
			return nil, schemaErrorf(path, "missing hint text")
		}
		return &session.Hint{Text: text}, nil
	}

	var w wireHint
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, schemaFromJSONError(path, err)
	}
	if w.Hint == "" {
		return nil, schemaErrorf(path+".hint", "missing hint text")
	}

	h := &session.Hint{Text: w.Hint, DBID: w.DBID}
	for i, m := range w.Metrics {
		mpath := fmt.Sprintf("%s.metrics[%d]", path, i)
		if m.Name == "" {
			return nil, schemaErrorf(mpath+".name", "missing metric name")
		}
		if len(m.Value) == 0 {
			return nil, fmt.Errorf("%w: %s.value is missing", ErrInvalidMetricValue, mpath)
		}
		var value float64
		if err := json.Unmarshal(m.Value, &value); err != nil {
			return nil, fmt.Errorf("%w: %s.value must be numeric, got %s", ErrInvalidMetricValue, mpath, string(m.Value))
		}
		h.Metrics = append(h.Metrics, session.Metric{Name: m.Name, Value: value, Metadata: m.Metadata})
	}
	for i, e := range w.Entities {
		epath := fmt.Sprintf("%s.entities[%d]", path, i)
		if e.Start == nil {
			return nil, schemaErrorf(epath+".start", "missing start offset")
		}
		if e.End == nil {
			return nil, schemaErrorf(epath+".end", "missing end offset")
		}
		h.Entities = append(h.Entities, session.Entity{
			Text:     e.Text,
			Type:     e.Type,
			Start:    *e.Start,
			End:      *e.End,
			Metadata: e.Metadata,
		})
	}
	return h, nil
}

// questionText resolves {"question": "..."} or a bare string.
func questionText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	if jsonStartsWith(raw, '"') {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var q struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return "", errors.New("expected an object or string")
	}
	return q.Question, nil
}

// answerValue resolves {"answer": "..."} or a bare string.
func answerValue(raw json.RawMessage) (wireAnswer, error) {
	if jsonStartsWith(raw, '"') {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return wireAnswer{}, err
		}
		return wireAnswer{Answer: s}, nil
	}
	var a wireAnswer
	if err := json.Unmarshal(raw, &a); err != nil {
		return wireAnswer{}, errors.New("expected an object or string")
	}
	return a, nil
}

// schemaFromJSONError converts an encoding/json failure into a SchemaError,
// extending the path with the decoder's field context when available.
func schemaFromJSONError(path string, err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		p := path
		if typeErr.Field != "" {
			if p != "" {
				p += "."
			}
			p += typeErr.Field
		}
		return schemaErrorf(p, "unexpected %s", typeErr.Value)
	}
	return schemaErrorf(path, "%v", err)
}

func jsonStartsWith(raw json.RawMessage, b byte) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c == b
	}
	return false
}

// sortedKeys orders map keys deterministically: numeric ids numerically,
// everything else lexically. JSON objects carry no order of their own.
func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })
	return keys
}

func naturalLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	default:
		return a < b
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts RFC 3339 and zone-less ISO 8601 forms (the
// original system wrote datetime.isoformat() without a zone).
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
