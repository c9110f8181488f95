// Package client implements the docchat commands that talk to a running
// docchatd over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIURL = "DOCCHAT_API_URL"

	defaultAPIURL = "http://localhost:8080"

	// Generation can take up to the server's 120s timeout.
	defaultTimeout = 3 * time.Minute
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves the base URL from the --api-url flag, then
// DOCCHAT_API_URL (also read from .env), then the default.
func NewAPIClientWithCmd(cmd *cobra.Command) *APIClient {
	var baseURL string
	if cmd != nil {
		if flagURL, err := cmd.Flags().GetString("api-url"); err == nil && flagURL != "" {
			baseURL = flagURL
		}
	}
	if baseURL == "" {
		_ = godotenv.Load()
		baseURL = os.Getenv(envAPIURL)
	}
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return NewAPIClient(baseURL)
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Response string `json:"response"`
}

type historyEnvelope struct {
	Data struct {
		SessionID string            `json:"session_id"`
		Turns     []domain.ChatTurn `json:"turns"`
	} `json:"data"`
}

// Ask sends question to the session and returns the model's answer.
func (c *APIClient) Ask(ctx context.Context, sessionID, question string) (string, error) {
	var resp askResponse
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, ""), askRequest{Question: question}, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// History returns the session's turns, oldest first.
func (c *APIClient) History(ctx context.Context, sessionID string) ([]domain.ChatTurn, error) {
	var resp historyEnvelope
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/history"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Turns, nil
}

func sessionPath(sessionID, suffix string) string {
	return "/chat/" + url.PathEscape(sessionID) + suffix
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
