// Package client is a typed HTTP client for the taskboard API. It is the
// transport used by the offline replay engine, so contention and missing
// rows surface as values and sentinel errors rather than raw status codes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the task (or its lock row) no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest means the server rejected the request as malformed.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict means a precondition failed: a reorder without the
	// position lock, or an incomplete column ordering.
	ErrConflict = errors.New("conflict")
)

// Holder identifies this client to the lock manager.
type Holder struct {
	ID   uuid.UUID `json:"holder_id"`
	Name string    `json:"holder_name"`
}

// Task mirrors the server's task representation.
type Task struct {
	TaskID      uuid.UUID `json:"taskId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	OrderIndex  int       `json:"orderIndex"`
	CreatedBy   *string   `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Position is one (task, index) pair from a reorder response.
type Position struct {
	TaskID     uuid.UUID `json:"id"`
	OrderIndex int       `json:"orderIndex"`
}

// LockedBy names the holder blocking a denied acquire.
type LockedBy struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// AcquireResult is the outcome of a lock request. A denial is not an
// error: Granted is false and LockedBy says who holds it.
type AcquireResult struct {
	Granted  bool      `json:"granted"`
	LockedBy *LockedBy `json:"lockedBy,omitempty"`
}

// Client talks to one taskboard server.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a client for baseURL. A nil httpc uses a default with a
// 10 second timeout.
func New(baseURL string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// CreateTask creates a task and returns the server's representation,
// including the server-assigned id.
func (c *Client) CreateTask(ctx context.Context, title, description, status string) (*Task, error) {
	body := map[string]string{
		"title":       title,
		"description": description,
		"status":      status,
	}
	var t Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	var t Task
	if err := c.do(ctx, http.MethodGet, "/v1/tasks/"+taskID.String(), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) UpdateTaskContent(ctx context.Context, taskID uuid.UUID, title, description string) (*Task, error) {
	body := map[string]string{
		"title":       title,
		"description": description,
	}
	var t Task
	if err := c.do(ctx, http.MethodPatch, "/v1/tasks/"+taskID.String(), body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) MoveTask(ctx context.Context, taskID uuid.UUID, status string) (*Task, error) {
	body := map[string]string{"status": status}
	var t Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID.String()+"/move", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/tasks/"+taskID.String(), nil, nil)
}

// Reorder submits the complete final ordering of taskID's column.
func (c *Client) Reorder(ctx context.Context, taskID uuid.UUID, holder Holder, orderedIDs []uuid.UUID) ([]Position, error) {
	body := map[string]interface{}{
		"holder_id":   holder.ID,
		"holder_name": holder.Name,
		"ordered_ids": orderedIDs,
	}
	var out struct {
		Positions []Position `json:"positions"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID.String()+"/reorder", body, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// AcquireLock requests the position lock on taskID.
func (c *Client) AcquireLock(ctx context.Context, taskID uuid.UUID, holder Holder) (*AcquireResult, error) {
	return c.acquire(ctx, taskID, "lock", holder)
}

func (c *Client) ReleaseLock(ctx context.Context, taskID uuid.UUID, holder Holder) error {
	return c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID.String()+"/unlock", holder, nil)
}

// AcquireEditLock requests the content lock on taskID.
func (c *Client) AcquireEditLock(ctx context.Context, taskID uuid.UUID, holder Holder) (*AcquireResult, error) {
	return c.acquire(ctx, taskID, "edit-lock", holder)
}

func (c *Client) ReleaseEditLock(ctx context.Context, taskID uuid.UUID, holder Holder) error {
	return c.do(ctx, http.MethodPost, "/v1/tasks/"+taskID.String()+"/edit-unlock", holder, nil)
}

func (c *Client) acquire(ctx context.Context, taskID uuid.UUID, endpoint string, holder Holder) (*AcquireResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/tasks/"+taskID.String()+"/"+endpoint, holder)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 409 carries a denial body, not an error condition.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return nil, statusError(resp)
	}
	var result AcquireResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)

	var base error
	switch resp.StatusCode {
	case http.StatusNotFound:
		base = ErrNotFound
	case http.StatusBadRequest:
		base = ErrBadRequest
	case http.StatusConflict:
		base = ErrConflict
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, apiErr.Message)
	}
	if apiErr.Message != "" {
		return fmt.Errorf("%w: %s", base, apiErr.Message)
	}
	return base
}
