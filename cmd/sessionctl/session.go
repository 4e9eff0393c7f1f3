package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// importCmd uploads a session document
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a session document, replacing the session's contents",
	Long: `Upload a .json or .csv document to the sessiond server. The upload
replaces the session's current contents as one unit; on any error the
previous contents survive untouched.

Examples:
  # Import a simple JSON document
  sessionctl import question.json

  # Import into a named session
  sessionctl import --session demo-1 question.json

  # Restore a full backup
  sessionctl import backup_full.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	// exportFormat selects the export rendering
	exportFormat string
	// exportOutput writes the document to a file instead of stdout
	exportOutput string
)

// exportCmd downloads the session in a chosen format
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the session's contents",
	Long: `Download the session's contents in one of the interchange formats.
Exports never modify the session; an empty session yields an empty
document.

Examples:
  # Print the simple JSON document to stdout
  sessionctl export --session demo-1

  # Write a CSV projection to a file
  sessionctl export --session demo-1 --format csv -o session.csv

  # Take a lossless full backup
  sessionctl export --session demo-1 --format full_json -o backup_full.json`,
	RunE: runExport,
}

// clearCmd wipes the session
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the session's contents",
	Long: `Remove all contents of the session. Clearing an already empty
session succeeds and reports zero counts.

Examples:
  # Clear a session
  sessionctl clear --session demo-1`,
	RunE: runClear,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format: json, csv, or full_json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the document to a file instead of stdout")
}

// runImport handles the import command
func runImport(cmd *cobra.Command, args []string) error {
	endpoint := fmt.Sprintf("%s/save_and_load/import", serverURL)

	req, err := newImportRequest(endpoint, args[0])
	if err != nil {
		return err
	}
	setSessionHeader(req)

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var importResp ImportResponse
	if err := json.NewDecoder(resp.Body).Decode(&importResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(importResp.Import.Info)
	fmt.Printf("Session: %s\n", importResp.SessionID)

	if importResp.Cleared != nil {
		fmt.Fprintf(os.Stderr, "[sessionctl] Replaced previous contents: %s\n", formatCounts(importResp.Cleared.Counts))
	}
	if importResp.Import.AutoGenerated {
		fmt.Fprintln(os.Stderr, "[sessionctl] No answer text in the upload; the answer awaits generation")
	}

	return nil
}

// newImportRequest builds the multipart upload request for a document file.
func newImportRequest(endpoint, path string) (*http.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish upload form: %w", err)
	}

	req, err := http.NewRequest("POST", endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return req, nil
}

// runExport handles the export command
func runExport(cmd *cobra.Command, args []string) error {
	endpoint := fmt.Sprintf("%s/save_and_load/export?format=%s", serverURL, url.QueryEscape(exportFormat))

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	setSessionHeader(req)

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if exportOutput != "" {
		if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOutput, err)
		}
		fmt.Fprintf(os.Stderr, "[sessionctl] Wrote %d bytes to %s\n", len(data), exportOutput)
		return nil
	}

	_, err = os.Stdout.Write(data)
	return err
}

// runClear handles the clear command
func runClear(cmd *cobra.Command, args []string) error {
	endpoint := fmt.Sprintf("%s/save_and_load/clear", serverURL)

	req, err := http.NewRequest("DELETE", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	setSessionHeader(req)

	resp, err := httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var clearResp ClearResponse
	if err := json.NewDecoder(resp.Body).Decode(&clearResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(clearResp.Message)
	fmt.Printf("Removed: %s\n", formatCounts(clearResp.Counts))

	return nil
}

// formatCounts renders the count summary shown after clear and replace
// operations. The optional kinds only appear when present.
func formatCounts(c Counts) string {
	s := fmt.Sprintf("%d question(s), %d answer(s), %d hint(s)", c.Questions, c.Answers, c.Hints)
	if c.Candidates > 0 {
		s += fmt.Sprintf(", %d candidate(s)", c.Candidates)
	}
	if c.Metrics > 0 {
		s += fmt.Sprintf(", %d metric(s)", c.Metrics)
	}
	if c.Entities > 0 {
		s += fmt.Sprintf(", %d entity span(s)", c.Entities)
	}
	return s
}
