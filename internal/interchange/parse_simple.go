package interchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hinteval/sessiond/internal/session"
)

type wireSimpleSession struct {
	Question json.RawMessage   `json:"question"`
	Answer   json.RawMessage   `json:"answer"`
	Model    string            `json:"model_name"`
	Hints    []json.RawMessage `json:"hints"`
}

// SimpleJsonParser parses the flat single-question shape
// {question, answer?, hints?}. Hints carry text only in this format.
type SimpleJsonParser struct{}

// NewSimpleJsonParser creates a simple JSON parser.
func NewSimpleJsonParser() *SimpleJsonParser { return &SimpleJsonParser{} }

// Parse decodes a simple session document into a single-instance batch.
func (p *SimpleJsonParser) Parse(data []byte) (*session.ImportBatch, error) {
	var doc wireSimpleSession
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schemaFromJSONError("", err)
	}

	qText, err := questionText(doc.Question)
	if err != nil {
		return nil, schemaErrorf("question", "%v", err)
	}
	if strings.TrimSpace(qText) == "" {
		return nil, fmt.Errorf("%w: question text is required", ErrMissingQuestion)
	}

	inst := &session.Instance{
		ID:       "0",
		Question: session.Question{Text: qText},
	}

	answer := &session.Answer{Model: doc.Model}
	if len(doc.Answer) > 0 {
		a, err := answerValue(doc.Answer)
		if err != nil {
			return nil, schemaErrorf("answer", "%v", err)
		}
		answer.Text = a.Answer
		answer.AutoGenerated = a.AutoGenerated
	}
	if answer.Text == "" {
		answer.AutoGenerated = true
	}
	inst.Answer = answer

	for i, raw := range doc.Hints {
		text, err := simpleHintText(raw, fmt.Sprintf("hints[%d]", i))
		if err != nil {
			return nil, err
		}
		// The original importer dropped empty hint slots rather than
		// failing the upload.
		if strings.TrimSpace(text) == "" {
			continue
		}
		inst.Hints = append(inst.Hints, &session.Hint{Text: text})
	}

	return &session.ImportBatch{Instances: []*session.Instance{inst}}, nil
}

// simpleHintText resolves the string-or-object hint union to its text.
func simpleHintText(raw json.RawMessage, path string) (string, error) {
	if jsonStartsWith(raw, '"') {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", schemaFromJSONError(path, err)
		}
		return s, nil
	}
	if jsonStartsWith(raw, '{') {
		var w struct {
			Hint string `json:"hint"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return "", schemaFromJSONError(path, err)
		}
		return w.Hint, nil
	}
	return "", schemaErrorf(path, "expected a string or object")
}
