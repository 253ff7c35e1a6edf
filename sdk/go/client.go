package tasklinesdk

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
)

// Client is a minimal Taskline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Tool describes a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Task struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Done             bool   `json:"done"`
	Approved         bool   `json:"approved"`
	CompletedDetails string `json:"completedDetails"`
}

type RequestSummary struct {
	RequestID       string `json:"requestId"`
	OriginalRequest string `json:"originalRequest"`
	ApprovedTasks   int    `json:"approvedTasks"`
	TotalTasks      int    `json:"totalTasks"`
	Completed       bool   `json:"completed"`
}

// Result is the common part of every tool result.
type Result struct {
	Message string `json:"message"`
}

type PlanResult struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

type NextTaskResult struct {
	TaskID       *string `json:"taskId"`
	AllTasksDone bool    `json:"allTasksDone"`
	Message      string  `json:"message"`
}

type TaskDetailsResult struct {
	Message string `json:"message"`
	Task    Task   `json:"task"`
}

type RequestListResult struct {
	Message  string           `json:"message"`
	Requests []RequestSummary `json:"requests"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListTools returns every tool the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var resp struct {
		Tools []Tool `json:"tools"`
	}
	err := c.do(ctx, http.MethodGet, "tools", nil, &resp)
	return resp.Tools, err
}

// CallTool calls a tool by name and decodes its result into out.
func (c *Client) CallTool(ctx context.Context, name string, params any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "tools/"+url.PathEscape(name), params, out)
}

// PlanRequest registers a request and its tasks.
func (c *Client) PlanRequest(ctx context.Context, originalRequest, splitDetails string, tasks []TaskInput) (PlanResult, error) {
	body := map[string]any{
		"originalRequest": originalRequest,
		"tasks":           tasks,
	}
	if splitDetails != "" {
		body["splitDetails"] = splitDetails
	}
	var resp PlanResult
	err := c.CallTool(ctx, "request_planning", body, &resp)
	return resp, err
}

// NextTask returns the first pending task of a request.
func (c *Client) NextTask(ctx context.Context, requestID string) (NextTaskResult, error) {
	var resp NextTaskResult
	err := c.CallTool(ctx, "get_next_task", map[string]any{"requestId": requestID}, &resp)
	return resp, err
}

// MarkTaskDone marks a task done with optional details.
func (c *Client) MarkTaskDone(ctx context.Context, requestID, taskID, details string) (Result, error) {
	body := map[string]any{"requestId": requestID, "taskId": taskID}
	if details != "" {
		body["completedDetails"] = details
	}
	var resp Result
	err := c.CallTool(ctx, "mark_task_done", body, &resp)
	return resp, err
}

// ApproveTask approves a done task.
func (c *Client) ApproveTask(ctx context.Context, requestID, taskID string) (Result, error) {
	var resp Result
	err := c.CallTool(ctx, "approve_task_completion", map[string]any{"requestId": requestID, "taskId": taskID}, &resp)
	return resp, err
}

// ApproveRequest closes a request whose tasks are all approved.
func (c *Client) ApproveRequest(ctx context.Context, requestID string) (Result, error) {
	var resp Result
	err := c.CallTool(ctx, "approve_request_completion", map[string]any{"requestId": requestID}, &resp)
	return resp, err
}

// TaskDetails looks a task up by id across all requests.
func (c *Client) TaskDetails(ctx context.Context, taskID string) (TaskDetailsResult, error) {
	var resp TaskDetailsResult
	err := c.CallTool(ctx, "open_task_details", map[string]any{"taskId": taskID}, &resp)
	return resp, err
}

// ListRequests returns every request with its progress.
func (c *Client) ListRequests(ctx context.Context) (RequestListResult, error) {
	var resp RequestListResult
	err := c.CallTool(ctx, "list_requests", nil, &resp)
	return resp, err
}

// AddTasks appends tasks to an open request.
func (c *Client) AddTasks(ctx context.Context, requestID string, tasks []TaskInput) (Result, error) {
	var resp Result
	err := c.CallTool(ctx, "add_tasks_to_request", map[string]any{"requestId": requestID, "tasks": tasks}, &resp)
	return resp, err
}

// UpdateTask edits a task that is not done yet. Empty fields are left unchanged.
func (c *Client) UpdateTask(ctx context.Context, requestID, taskID, title, description string) (Result, error) {
	body := map[string]any{"requestId": requestID, "taskId": taskID}
	if title != "" {
		body["title"] = title
	}
	if description != "" {
		body["description"] = description
	}
	var resp Result
	err := c.CallTool(ctx, "update_task", body, &resp)
	return resp, err
}

// DeleteTask removes a task that is not done yet.
func (c *Client) DeleteTask(ctx context.Context, requestID, taskID string) (Result, error) {
	var resp Result
	err := c.CallTool(ctx, "delete_task", map[string]any{"requestId": requestID, "taskId": taskID}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Code, env.Error
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
