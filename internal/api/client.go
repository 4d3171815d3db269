package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running daemon over the HTTP Status API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// NewClient builds a client for baseURL (for example http://127.0.0.1:7487).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartJob starts a job for projectID.
func (c *Client) StartJob(ctx context.Context, projectID string, req StartJobRequest) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodPost, "/v1/projects/"+url.PathEscape(projectID)+"/jobs", req, &resp)
	return resp.Job, err
}

// GetJob fetches a job snapshot.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &resp)
	return resp.Job, err
}

// CancelJob requests cancellation of a job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	var resp CancelResponse
	return c.do(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil, &resp)
}

// RetryJob starts a new job with the inputs of a finished one.
func (c *Client) RetryJob(ctx context.Context, jobID string) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/retry", nil, &resp)
	return resp.Job, err
}

// DeleteJob removes a terminal job.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/jobs/"+url.PathEscape(jobID), nil, nil)
}

// ListJobs returns a project's job history, newest first.
func (c *Client) ListJobs(ctx context.Context, projectID string) ([]Job, error) {
	var resp JobListResponse
	err := c.do(ctx, http.MethodGet, "/v1/projects/"+url.PathEscape(projectID)+"/jobs", nil, &resp)
	return resp.Jobs, err
}

// Items returns a job's item history, optionally for one stage.
func (c *Client) Items(ctx context.Context, jobID, stage string) ([]Item, error) {
	path := "/v1/jobs/" + url.PathEscape(jobID) + "/items"
	if stage = strings.TrimSpace(stage); stage != "" {
		path += "?stage=" + url.QueryEscape(stage)
	}
	var resp ItemListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Items, err
}

// Status returns daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp)
	return resp, err
}

// Characters lists a project's characters.
func (c *Client) Characters(ctx context.Context, projectID string) ([]Character, error) {
	var resp CharacterListResponse
	err := c.do(ctx, http.MethodGet, "/v1/projects/"+url.PathEscape(projectID)+"/characters", nil, &resp)
	return resp.Characters, err
}

// Chapters lists a project's chapters.
func (c *Client) Chapters(ctx context.Context, projectID string) ([]Chapter, error) {
	var resp ChapterListResponse
	err := c.do(ctx, http.MethodGet, "/v1/projects/"+url.PathEscape(projectID)+"/chapters", nil, &resp)
	return resp.Chapters, err
}

// Scenes lists a project's scenes.
func (c *Client) Scenes(ctx context.Context, projectID string) ([]Scene, error) {
	var resp SceneListResponse
	err := c.do(ctx, http.MethodGet, "/v1/projects/"+url.PathEscape(projectID)+"/scenes", nil, &resp)
	return resp.Scenes, err
}

// Images lists a project's generated images.
func (c *Client) Images(ctx context.Context, projectID string) ([]Image, error) {
	var resp ImageListResponse
	err := c.do(ctx, http.MethodGet, "/v1/projects/"+url.PathEscape(projectID)+"/images", nil, &resp)
	return resp.Images, err
}

// Watch follows the job's event stream and calls fn for every snapshot until
// the job is terminal. It returns the terminal snapshot.
func (c *Client) Watch(ctx context.Context, jobID string, fn func(Job)) (Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+url.PathEscape(jobID)+"/events", nil)
	if err != nil {
		return Job{}, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	// The stream outlives the default request timeout.
	streamClient := *c.http
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return Job{}, transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Job{}, decodeError(resp)
	}

	var last Job
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &job); err != nil {
			return last, fmt.Errorf("decode job event: %w", err)
		}
		last = job
		if fn != nil {
			fn(job)
		}
		if job.Terminal() {
			return job, nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return last, fmt.Errorf("read job events: %w", err)
	}
	if ctx.Err() != nil {
		return last, ctx.Err()
	}
	// Stream closed early; fall back to a plain read.
	return c.GetJob(ctx, jobID)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload ErrorResponse
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func transportError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	return err
}
