package interchange

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies one of the three interchange formats. The string values
// double as the wire names used by the export query parameter.
type Format string

const (
	// FormatFullBackup is the lossless nested backup document.
	FormatFullBackup Format = "full_json"
	// FormatSimpleJSON is the flat question/answer/hints document.
	FormatSimpleJSON Format = "json"
	// FormatCSV is the two-column type,content projection.
	FormatCSV Format = "csv"
)

// ParseFormat maps an export query value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatFullBackup, FormatSimpleJSON, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: format %q (supported: json, csv, full_json)", ErrUnsupportedFormat, s)
	}
}

// Filename returns the download name for exports in this format.
func (f Format) Filename() string {
	switch f {
	case FormatFullBackup:
		return "hinteval_backup_full.json"
	case FormatCSV:
		return "hinteval_session.csv"
	default:
		return "hinteval_session.json"
	}
}

// ContentType returns the media type for exports in this format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// Detect classifies an uploaded file by extension and, for JSON, by
// structural sniff: a top-level subsets or instances nesting marks a full
// backup, any other object is the simple format.
func Detect(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			if !json.Valid(data) {
				return "", fmt.Errorf("%w: invalid JSON syntax: %v", ErrUnsupportedFormat, err)
			}
			return "", fmt.Errorf("%w: JSON document must be an object", ErrUnsupportedFormat)
		}
		if _, ok := doc["subsets"]; ok {
			return FormatFullBackup, nil
		}
		if _, ok := doc["instances"]; ok {
			return FormatFullBackup, nil
		}
		return FormatSimpleJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported file type. Use .json or .csv", ErrUnsupportedFormat)
	}
}
