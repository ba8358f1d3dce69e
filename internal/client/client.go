// Package client provides a Go SDK for talking to a distributed-kvstore
// node's HTTP facade.
//
// Big idea:
//
// Instead of writing raw HTTP requests everywhere,
// we wrap them inside a clean Go API.
//
// So instead of:
//
//	http.NewRequest(...)
//	json.Marshal(...)
//
// Users can simply call:
//
//	client.Submit(ctx, "echo", args, "", "", "")
//	client.GetJob(ctx, hash)
//
// This is called a "client library" or "SDK".
//
// It hides:
//   - HTTP details
//   - JSON encoding/decoding
//   - Error handling
//
// And exposes a clean Go interface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to ONE node's HTTP facade.
//
// Important:
//
// A submission may be routed by that node to any other member of the
// ring — the client does not implement Chord routing itself, it just
// talks to whichever node it was pointed at.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Client.
//
// baseURL example:
//
//	"http://localhost:8080"
//
// timeout protects us from hanging forever.
// In distributed systems:
//
//	NEVER call network without timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SubmitResponse is returned after a job is accepted and routed.
type SubmitResponse struct {
	JobID string   `json:"job_id"`
	Keys  []string `json:"keys"`
}

// JobData is the job data object returned by GetJob.
type JobData struct {
	JobID        string          `json:"job_id"`
	Task         string          `json:"task"`
	Args         json.RawMessage `json:"args"`
	SourceBucket string          `json:"source_bucket,omitempty"`
	DestBucket   string          `json:"dest_bucket,omitempty"`
	ObjectName   string          `json:"objectname,omitempty"`
	Hash         string          `json:"hash"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// JobsListEntry is one row of GetJobs's local job listing.
type JobsListEntry struct {
	ServerIdx int             `json:"server_idx"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
	JobID     string          `json:"job_id"`
}

// StatusResponse is GetStatus's reply.
type StatusResponse struct {
	Chord   string `json:"chord"`
	Storage string `json:"storage"`
}

// Submit posts a new job.
//
// Flow:
//
//  1. Create JSON body
//  2. Build HTTP POST request
//  3. Send request
//  4. Check status
//  5. Decode response
//
// The distributed routing happens inside the server. This client only
// performs the HTTP call.
func (c *Client) Submit(ctx context.Context, task string, args json.RawMessage, sourceBucket, destBucket, objectName string) (*SubmitResponse, error) {
	body, err := json.Marshal(map[string]any{
		"task":          task,
		"args":          args,
		"source_bucket": sourceBucket,
		"dest_bucket":   destBucket,
		"objectname":    objectName,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/submit", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result SubmitResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// GetJob fetches a job by its content hash.
//
// Special case:
//
//	If server returns 404
//	We convert it into ErrNotFound
func (c *Client) GetJob(ctx context.Context, hash string) (*JobData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/getjob?hash=%s", c.baseURL, hash), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getjob request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result JobData
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// GetJobs lists every job held in the local store of the node this
// client talks to.
func (c *Client) GetJobs(ctx context.Context) ([]JobsListEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/getjobs", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getjobs request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result struct {
		Jobs []JobsListEntry `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// GetStatus reports whether the node considers its ring and storage
// usable.
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/getstatus", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getstatus request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result StatusResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// GetFinger returns the unique addresses currently in the node's finger
// table.
func (c *Client) GetFinger(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/getfinger", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getfinger request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result struct {
		Finger []string `json:"finger"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Finger, nil
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// ErrNotFound is returned when a job does not exist in the ring.
var ErrNotFound = fmt.Errorf("job not found")

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts HTTP error responses
// into Go errors.
//
// If status is 2xx → success.
// Otherwise:
//
//  1. Read response body
//  2. Try parsing {"error": "..."} JSON
//  3. Return APIError
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
