// Package client talks to a sirsim API server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rmax-ai/sirsim/pkg/api"
	"github.com/rmax-ai/sirsim/pkg/store"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string
	Details string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("sirsim api: %d %s: %s", e.Status, e.Code, e.Details)
	}
	return fmt.Sprintf("sirsim api: %d %s", e.Status, e.Code)
}

// Client is the sirsim API client.
type Client struct {
	endpoint   string
	http       *http.Client
	token      string
	retry    BusyRetry
}

// NewClient creates a new client.
// endpoint defaults to "http://127.0.0.1:8095" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8095"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			// Submits block for the whole ensemble.
			Timeout: 10 * time.Minute,
		},
		retry: DefaultBusyRetry(),
	}
}

// SetToken sends "Authorization: Bearer <token>" on submits.
func (c *Client) SetToken(token string) { c.token = token }

// SetRetry configures how busy (409) submits are retried.
func (c *Client) SetRetry(r BusyRetry) { c.retry = r }

// Submit runs an experiment on the server. When an identical experiment is
// already running the server answers 409; Submit then waits and retries,
// which normally ends in a cached result.
func (c *Client) Submit(ctx context.Context, req api.SimulationRequest) (*api.SimulationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	attempts := c.retry.attempts()
	for attempt := 1; ; attempt++ {
		var resp api.SimulationResponse
		err := c.do(ctx, http.MethodPost, "/v1/simulations", body, &resp)
		if err == nil {
			return &resp, nil
		}
		if !IsBusy(err) {
			return nil, err
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("experiment still busy after %d attempts: %w", attempt, err)
		}
		var apiErr *APIError
		errors.As(err, &apiErr)
		select {
		case <-time.After(c.retry.Delay(attempt, apiErr.RetryAfter)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ping checks the health of the server.
func (c *Client) Ping(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", status.Status)
	}
	return nil
}

// ListRuns fetches stored runs, newest first. Empty status and zero limit
// take the server defaults.
func (c *Client) ListRuns(ctx context.Context, status store.RunStatus, limit int) ([]store.Run, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	target := "/v1/runs"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	var runs []store.Run
	if err := c.do(ctx, http.MethodGet, target, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun fetches one run with its summary.
func (c *Client) GetRun(ctx context.Context, id string) (*store.Run, error) {
	var run store.Run
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Artifact downloads one report or chart of a run. The caller closes it.
func (c *Client) Artifact(ctx context.Context, runID, key string) (io.ReadCloser, error) {
	target := fmt.Sprintf("%s/v1/runs/%s/artifacts/%s", c.endpoint, url.PathEscape(runID), (&url.URL{Path: key}).EscapedPath())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Details = body.Details
	}
	return apiErr
}
