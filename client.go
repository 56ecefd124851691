package tasksync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erennakbas/tasksync/types"
)

// ErrUnexpectedStatus is returned when the API answers with an unexpected status code.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Client talks to a tasksync server over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the server at baseURL, e.g. "http://localhost:3000".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		logger:     defaultLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ListTasks returns every task.
func (c *Client) ListTasks(ctx context.Context) ([]*types.Task, error) {
	var tasks []*types.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, http.StatusOK, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a task with the given text.
func (c *Client) CreateTask(ctx context.Context, text string) (*types.Task, error) {
	var task *types.Task
	body := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/tasks", body, http.StatusCreated, &task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask sets the completed flag. A nil task means the server knew no such ID.
func (c *Client) UpdateTask(ctx context.Context, taskID string, completed bool) (*types.Task, error) {
	var task *types.Task
	body := map[string]bool{"completed": completed}
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(taskID), body, http.StatusOK, &task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil, http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Notification is one event received from the push channel.
type Notification struct {
	Kind types.EventKind
	Data json.RawMessage
}

// Task decodes the payload of a taskAdded or taskUpdated notification.
// It returns nil for a taskUpdated whose target did not exist.
func (n Notification) Task() (*types.Task, error) {
	var task *types.Task
	if err := json.Unmarshal(n.Data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", n.Kind, err)
	}
	return task, nil
}

// TaskID decodes the payload of a taskDeleted notification.
func (n Notification) TaskID() (string, error) {
	var id string
	if err := json.Unmarshal(n.Data, &id); err != nil {
		return "", fmt.Errorf("failed to decode %s payload: %w", n.Kind, err)
	}
	return id, nil
}

// Watch opens the push channel. Notifications are delivered on the returned
// channel, which is closed when ctx is cancelled or the server ends the stream.
// Watch returns once the server has accepted the subscription, so every
// change made after it returns is delivered.
func (c *Client) Watch(ctx context.Context) (<-chan Notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET /events: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)

	// the server writes a comment frame once the observer is registered
	if err := skipUntilBlank(reader); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}

	ch := make(chan Notification)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var kind string
		var data []string
		for {
			line, err := readLine(reader)
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					c.logger.WithError(err).Warn("event stream closed")
				}
				return
			}

			switch {
			case line == "":
				if kind != "" {
					n := Notification{
						Kind: types.EventKind(kind),
						Data: json.RawMessage(strings.Join(data, "\n")),
					}
					select {
					case ch <- n:
					case <-ctx.Done():
						return
					}
				}
				kind, data = "", nil
			case strings.HasPrefix(line, ":"):
				// comment
			case strings.HasPrefix(line, "event:"):
				kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
	}()

	return ch, nil
}

// readLine reads one line of any length without its line ending.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func skipUntilBlank(r *bufio.Reader) error {
	for {
		line, err := readLine(r)
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
	}
}
