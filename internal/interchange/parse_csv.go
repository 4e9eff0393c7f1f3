package interchange

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hinteval/sessiond/internal/session"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// CsvParser parses the two-column type,content worksheet export. Row
// numbers in errors count from the header, matching what a spreadsheet
// shows.
type CsvParser struct{}

// NewCsvParser creates a CSV parser.
func NewCsvParser() *CsvParser { return &CsvParser{} }

// Parse decodes a CSV document into a single-instance batch.
func (p *CsvParser) Parse(data []byte) (*session.ImportBatch, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, schemaErrorf("header", "empty document")
	}
	if err != nil {
		return nil, schemaErrorf("header", "%v", err)
	}

	typeCol, contentCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "type":
			if typeCol < 0 {
				typeCol = i
			}
		case "content":
			if contentCol < 0 {
				contentCol = i
			}
		}
	}
	if typeCol < 0 || contentCol < 0 {
		return nil, schemaErrorf("header", "type and content columns are required")
	}
	width := typeCol
	if contentCol > width {
		width = contentCol
	}

	inst := &session.Instance{ID: "0"}
	answer := &session.Answer{}
	row := 1

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, schemaErrorf(fmt.Sprintf("row %d", row), "%v", err)
		}
		if len(record) <= width {
			return nil, schemaErrorf(fmt.Sprintf("row %d", row), "expected at least %d columns, got %d", width+1, len(record))
		}

		// Blank-content rows are padding in hand-edited sheets; skip them
		// before looking at the type cell.
		content := strings.TrimSpace(record[contentCol])
		if content == "" {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(record[typeCol])) {
		case "question":
			if inst.Question.Text != "" {
				return nil, fmt.Errorf("%w: second question at row %d", ErrDuplicateQuestion, row)
			}
			inst.Question.Text = content
		case "answer":
			if answer.Text != "" {
				return nil, fmt.Errorf("%w: second answer at row %d", ErrDuplicateAnswer, row)
			}
			answer.Text = content
		case "hint":
			inst.Hints = append(inst.Hints, &session.Hint{Text: content})
		default:
			return nil, fmt.Errorf("%w: %q at row %d", ErrInvalidRowType, record[typeCol], row)
		}
	}

	if inst.Question.Text == "" {
		return nil, fmt.Errorf("%w: no question row found", ErrMissingQuestion)
	}
	if answer.Text == "" {
		answer.AutoGenerated = true
	}
	inst.Answer = answer

	return &session.ImportBatch{Instances: []*session.Instance{inst}}, nil
}
