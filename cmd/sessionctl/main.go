// Package main implements the sessionctl CLI for manual operations against the sessiond HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the sessiond HTTP API
	serverURL string
	// sessionKey is sent as X-Session-Key on every request when set
	sessionKey string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "CLI for sessiond session data operations",
	Long: `sessionctl is a command-line interface for the sessiond HTTP API.
It imports, exports, and clears session contents and checks server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "sessiond server URL")
	rootCmd.PersistentFlags().StringVar(&sessionKey, "session", "", "session key (the server mints one when empty)")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(healthCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check sessiond server health",
	Long: `Check the health status of the sessiond HTTP API.

Examples:
  # Check health
  sessionctl health

  # Check health on a different server
  sessionctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// ImportResponse matches internal/httpapi/types.go ImportResponse
type ImportResponse struct {
	Status    string        `json:"status"`
	SessionID string        `json:"session_id"`
	Import    ImportSummary `json:"import"`
	Cleared   *ClearedBlock `json:"cleared,omitempty"`
}

// ImportSummary matches internal/httpapi/types.go ImportSummary
type ImportSummary struct {
	Format        string `json:"format"`
	Info          string `json:"info"`
	Counts        Counts `json:"counts"`
	AutoGenerated bool   `json:"auto_generated"`
}

// ClearedBlock matches internal/httpapi/types.go ClearedBlock
type ClearedBlock struct {
	Cleared bool   `json:"cleared"`
	Message string `json:"message"`
	Counts  Counts `json:"counts"`
}

// ClearResponse matches internal/httpapi/types.go ClearResponse
type ClearResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Cleared   bool   `json:"cleared"`
	Message   string `json:"message"`
	Counts    Counts `json:"counts"`
}

// HealthResponse matches internal/httpapi/types.go HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse matches internal/httpapi/types.go ErrorResponse
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Counts matches internal/session Counts
type Counts struct {
	Questions  int `json:"questions"`
	Answers    int `json:"answers"`
	Hints      int `json:"hints"`
	Metrics    int `json:"metrics"`
	Entities   int `json:"entities"`
	Candidates int `json:"candidates"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	endpoint := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", endpoint, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)

	return nil
}

// httpClient returns the client used for data operations.
func httpClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// setSessionHeader attaches the session key when one was given.
func setSessionHeader(req *http.Request) {
	if sessionKey != "" {
		req.Header.Set("X-Session-Key", sessionKey)
	}
}

// apiError turns a non-2xx response into an error carrying the server's
// detail message when the body is the standard error envelope.
func apiError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, errResp.Detail)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}
