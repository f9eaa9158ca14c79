// Package remote is the HTTP client for the remote history service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
)

// Client talks to the remote history service. Each call makes exactly one
// attempt; callers decide what to do on failure.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch returns the most-recent-first history for userID.
func (c *Client) Fetch(ctx context.Context, userID string) ([]core.HistoryRecord, error) {
	var resp ListResponse
	if err := c.request(ctx, http.MethodGet, HistoryPath+"/"+url.PathEscape(userID), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Songs == nil {
		return nil, unsuccessful(resp.Error)
	}
	return *resp.Songs, nil
}

// Upsert stores rec for userID, replacing any record with the same filename.
func (c *Client) Upsert(ctx context.Context, userID string, rec core.HistoryRecord) error {
	body := SaveRequest{UserID: userID, Song: &rec}
	var resp StatusResponse
	if err := c.request(ctx, http.MethodPost, HistoryPath, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return unsuccessful(resp.Error)
	}
	return nil
}

// Delete removes the record for filename from userID's history.
func (c *Client) Delete(ctx context.Context, userID, filename string) error {
	path := HistoryPath + "/" + url.PathEscape(userID) + "/" + url.PathEscape(filename)
	var resp StatusResponse
	if err := c.request(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return unsuccessful(resp.Error)
	}
	return nil
}

// Ping checks the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, http.MethodGet, HealthPath, nil, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + path
	ev := c.logger.Debug().Str("method", method).Str("url", fullURL)
	if jsonBody != nil {
		ev = ev.RawJSON("body", jsonBody)
	}
	ev.Msg("remote request")

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("url", fullURL).Msg("remote network error")
		return fmt.Errorf("%w: %v", encerr.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", encerr.ErrRemoteUnavailable, err)
	}

	c.logger.Debug().Int("status", resp.StatusCode).Str("url", fullURL).Msg("remote response")

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var sr StatusResponse
		if json.Unmarshal(respBody, &sr) == nil && sr.Error != "" {
			apiErr.Message = sr.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func unsuccessful(msg string) error {
	if msg == "" {
		return encerr.ErrUnsuccessful
	}
	return fmt.Errorf("%w: %s", encerr.ErrUnsuccessful, msg)
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("history service error %d", e.Status)
	}
	return fmt.Sprintf("history service error %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is match ErrRemoteUnavailable for server-side failures.
func (e *APIError) Unwrap() error {
	if e.Status >= 500 {
		return encerr.ErrRemoteUnavailable
	}
	return nil
}
