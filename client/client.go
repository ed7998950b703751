// Package client talks to the KanFlow HTTP API. It backs the terminal board.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"kanflow/domain"
	"kanflow/integrations"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 10 * time.Second

const maxResponseSize = 4 << 20

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	token   string
	hc      *http.Client
	timeout time.Duration
}

// New returns a client for the API rooted at baseURL. token is sent as a
// bearer token when not empty.
func New(baseURL, token string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", baseURL)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{base: u, token: token, hc: hc, timeout: DefaultTimeout}, nil
}

// SetTimeout overrides the per-call timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// ListTasks returns the merged board list.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var resp struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// CreateTask adds a task to the board.
func (c *Client) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", in, &out)
	return out, err
}

// UpdateTask applies patch to the task. External ids are rejected without a
// network call.
func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if domain.IsExternalID(id) {
		return domain.Task{}, fmt.Errorf("update %s: %w", id, domain.ErrExternalTask)
	}
	var out domain.Task
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(id), patch, &out)
	return out, err
}

// DeleteTask removes the task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if domain.IsExternalID(id) {
		return fmt.Errorf("delete %s: %w", id, domain.ErrExternalTask)
	}
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

// Integrations returns the connection state of every integration.
func (c *Client) Integrations(ctx context.Context) ([]integrations.ProviderStatus, error) {
	var resp struct {
		Integrations []integrations.ProviderStatus `json:"integrations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/integrations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Integrations, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, domain.ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s %s: %w", method, path, domain.ErrTimeout)
		}
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return responseError(method, path, resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ErrUnauthorized is returned when the API rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

func responseError(method, path string, code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if sonic.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	var sentinel error
	switch code {
	case http.StatusBadRequest:
		sentinel = domain.ErrInvalidTask
		if strings.Contains(msg, domain.ErrInvalidStatus.Error()) {
			sentinel = domain.ErrInvalidStatus
		}
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	case http.StatusForbidden:
		sentinel = domain.ErrPermissionDenied
		if strings.Contains(msg, domain.ErrExternalTask.Error()) {
			sentinel = domain.ErrExternalTask
		}
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrConcurrencyConflict
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		sentinel = domain.ErrTimeout
	case http.StatusServiceUnavailable:
		sentinel = domain.ErrUnavailable
	default:
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, code, msg)
	}
	return fmt.Errorf("%s %s: %w (%s)", method, path, sentinel, msg)
}
