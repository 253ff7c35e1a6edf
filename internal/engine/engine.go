package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"taskline/internal/domain"
	"taskline/internal/events"
)

// DocumentStore loads and saves the whole workflow document under one key.
type DocumentStore interface {
	Load(ctx context.Context, key string) (domain.Document, bool, error)
	Save(ctx context.Context, key string, doc domain.Document) error
}

// Engine owns one in-memory copy of the workflow document. The copy is loaded
// on first use and written back after every mutation. Nothing coordinates two
// engines that share a store: the later save wins.
type Engine struct {
	Store  DocumentStore
	Key    string
	Events events.Writer
	Logger *slog.Logger

	mu     sync.Mutex
	doc    domain.Document
	loaded bool
	ids    idAllocator
}

func New(store DocumentStore, evts events.Writer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Store:  store,
		Key:    domain.DocumentKey,
		Events: evts,
		Logger: logger,
	}
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

type Result struct {
	Message string `json:"message"`
}

type TaskDetailsResult struct {
	Message string      `json:"message"`
	Task    domain.Task `json:"task"`
}

type RequestListResult struct {
	Message  string                  `json:"message"`
	Requests []domain.RequestSummary `json:"requests"`
}

// TaskUpdate carries optional edits; empty strings leave a field unchanged.
type TaskUpdate struct {
	Title       string
	Description string
}

// PlanRequest registers a new request with its initial tasks.
func (e *Engine) PlanRequest(ctx context.Context, originalRequest string, tasks []domain.TaskInput, splitDetails string) (PlanResult, error) {
	return mutate(ctx, e, func() (PlanResult, *event, error) {
		if err := e.ensureLoaded(ctx); err != nil {
			return PlanResult{}, nil, err
		}
		req := domain.RequestEntry{
			RequestID:       e.ids.nextRequest(),
			OriginalRequest: originalRequest,
			SplitDetails:    splitDetails,
			Tasks:           e.newTasks(tasks),
		}
		e.doc.Requests = append(e.doc.Requests, req)
		if err := e.persist(ctx); err != nil {
			return PlanResult{}, nil, err
		}
		return PlanResult{
			RequestID: req.RequestID,
			Message:   "Request registered successfully.\n" + RenderProgress(req),
		}, &event{typ: events.RequestPlanned, kind: "request", id: req.RequestID, payload: events.EventPayload{"tasks": len(req.Tasks)}}, nil
	})
}

// GetNextTask reports the first task not yet done, or why none is left.
func (e *Engine) GetNextTask(ctx context.Context, requestID string) (NextTaskResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return NextTaskResult{}, err
	}
	req, err := e.request(requestID)
	if err != nil {
		return NextTaskResult{}, err
	}
	progress := RenderProgress(*req)
	if req.AllApproved() {
		return NextTaskResult{
			AllTasksDone: true,
			Message:      "All tasks are done! Awaiting request completion approval.\n" + progress,
		}, nil
	}
	for _, t := range req.Tasks {
		if !t.Done {
			id := t.ID
			return NextTaskResult{
				TaskID:  &id,
				Message: fmt.Sprintf("Next task: %s\n%s\n", t.Title, t.Description) + progress,
			}, nil
		}
	}
	return NextTaskResult{
		Message: "All tasks are done but some need approval.\n" + progress,
	}, nil
}

// MarkTaskDone flags a task as done. Repeating the call is allowed.
func (e *Engine) MarkTaskDone(ctx context.Context, requestID, taskID, completedDetails string) (Result, error) {
	return mutate(ctx, e, func() (Result, *event, error) {
		if err := e.ensureLoaded(ctx); err != nil {
			return Result{}, nil, err
		}
		req, idx, err := e.task(requestID, taskID)
		if err != nil {
			return Result{}, nil, err
		}
		t := &req.Tasks[idx]
		t.Done = true
		if completedDetails != "" {
			t.CompletedDetails = completedDetails
		}
		if err := e.persist(ctx); err != nil {
			return Result{}, nil, err
		}
		return Result{Message: "Task marked as done. Awaiting approval.\n" + RenderProgress(*req)}, &event{typ: events.TaskDone, kind: "task", id: taskID, payload: events.EventPayload{"request_id": requestID}}, nil
	})
}

// ApproveTaskCompletion flags a task as approved. It does not require the
// task to be done first.
func (e *Engine) ApproveTaskCompletion(ctx context.Context, requestID, taskID string) (Result, error) {
	return mutate(ctx, e, func() (Result, *event, error) {
		if err := e.ensureLoaded(ctx); err != nil {
			return Result{}, nil, err
		}
		req, idx, err := e.task(requestID, taskID)
		if err != nil {
			return Result{}, nil, err
		}
		t := &req.Tasks[idx]
		if !t.Done {
			e.Logger.WarnContext(ctx, "approving task that was never marked done", "request_id", requestID, "task_id", taskID)
		}
		t.Approved = true
		if err := e.persist(ctx); err != nil {
			return Result{}, nil, err
		}
		return Result{Message: "Task completion approved.\n" + RenderProgress(*req)}, &event{typ: events.TaskApproved, kind: "task", id: taskID, payload: events.EventPayload{"request_id": requestID}}, nil
	})
}

// ApproveRequestCompletion closes a request once all its tasks are approved.
func (e *Engine) ApproveRequestCompletion(ctx context.Context, requestID string) (Result, error) {
	return mutate(ctx, e, func() (Result, *event, error) {
		if err := e.ensureLoaded(ctx); err != nil {
			return Result{}, nil, err
		}
		req, err := e.request(requestID)
		if err != nil {
			return Result{}, nil, err
		}
		if !req.AllApproved() {
			return Result{}, nil, fmt.Errorf("%w: not all tasks in %s are approved yet", ErrInvalidState, requestID)
		}
		req.Completed = true
		if err := e.persist(ctx); err != nil {
			return Result{}, nil, err
		}
		return Result{Message: "Request completion approved. All done!\n" + RenderProgress(*req)}, &event{typ: events.RequestCompleted, kind: "request", id: requestID}, nil
	})
}

// OpenTaskDetails looks a task up by id across every request.
func (e *Engine) OpenTaskDetails(ctx context.Context, taskID string) (TaskDetailsResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return TaskDetailsResult{}, err
	}
	for _, r := range e.doc.Requests {
		if idx := r.TaskIndex(taskID); idx >= 0 {
			t := r.Tasks[idx]
			return TaskDetailsResult{Message: RenderTaskDetails(t), Task: t}, nil
		}
	}
	return TaskDetailsResult{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
}

// ListRequests summarizes every request in insertion order.
func (e *Engine) ListRequests(ctx context.Context) (RequestListResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return RequestListResult{}, err
	}
	summaries := make([]domain.RequestSummary, 0, len(e.doc.Requests))
	for _, r := range e.doc.Requests {
		summaries = append(summaries, domain.RequestSummary{
			RequestID:       r.RequestID,
			OriginalRequest: r.OriginalRequest,
			ApprovedTasks:   r.ApprovedCount(),
			TotalTasks:      len(r.Tasks),
			Completed:       r.Completed,
		})
	}
	return RequestListResult{Message: RenderRequests(e.doc.Requests), Requests: summaries}, nil
}

// AddTasksToRequest appends tasks and reopens the request.
func (e *Engine) AddTasksToRequest(ctx context.Context, requestID string, tasks []domain.TaskInput) (Result, error) {
	return mutate(ctx, e, func() (Result, *event, error) {
		if err := e.ensureLoaded(ctx); err != nil {
			return Result{}, nil, err
		}
		req, err := e.request(requestID)
		if err != nil {
			return Result{}, nil, err
		}
		added := e.newTasks(tasks)
		req.Tasks = append(req.Tasks, added...)
		req.Completed = false
		if err := e.persist(ctx); err != nil {
			return Result{}, nil, err
		}
		ids := make([]string, 0, len(added))
		for _, t := range added {
			ids = append(ids, t.ID)
		}
		return Result{Message: "Tasks added to request.\n" + RenderProgress(*req)}, &event{typ: events.RequestTasksAdded, kind: "request", id: requestID, payload: events.EventPayload{"task_ids": ids}}, nil
	})
}

// UpdateTask edits the title or description of a pending task.
func (e *Engine) UpdateTask(ctx context.Context, requestID, taskID string, upd TaskUpdate) (Result, error) {
	return mutate(ctx, e, func() (Result, *event, error) {
		if err := e.ensureLoaded(ctx); err != nil {
			return Result{}, nil, err
		}
		req, idx, err := e.task(requestID, taskID)
		if err != nil {
			return Result{}, nil, err
		}
		t := &req.Tasks[idx]
		if t.Locked() {
			return Result{}, nil, fmt.Errorf("%w: cannot update completed or approved task %s", ErrInvalidState, taskID)
		}
		if upd.Title != "" {
			t.Title = upd.Title
		}
		if upd.Description != "" {
			t.Description = upd.Description
		}
		if err := e.persist(ctx); err != nil {
			return Result{}, nil, err
		}
		return Result{Message: "Task updated successfully.\n" + RenderProgress(*req)}, &event{typ: events.TaskUpdated, kind: "task", id: taskID, payload: events.EventPayload{"request_id": requestID}}, nil
	})
}

// DeleteTask removes a pending task; later tasks shift up.
func (e *Engine) DeleteTask(ctx context.Context, requestID, taskID string) (Result, error) {
	return mutate(ctx, e, func() (Result, *event, error) {
		if err := e.ensureLoaded(ctx); err != nil {
			return Result{}, nil, err
		}
		req, idx, err := e.task(requestID, taskID)
		if err != nil {
			return Result{}, nil, err
		}
		if req.Tasks[idx].Locked() {
			return Result{}, nil, fmt.Errorf("%w: cannot delete completed or approved task %s", ErrInvalidState, taskID)
		}
		req.Tasks = append(req.Tasks[:idx], req.Tasks[idx+1:]...)
		if err := e.persist(ctx); err != nil {
			return Result{}, nil, err
		}
		return Result{Message: "Task deleted successfully.\n" + RenderProgress(*req)}, &event{typ: events.TaskDeleted, kind: "task", id: taskID, payload: events.EventPayload{"request_id": requestID}}, nil
	})
}

// Reload drops the in-memory document and reads it from the store again.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	return e.ensureLoaded(ctx)
}

// Snapshot returns a deep copy of the current document.
func (e *Engine) Snapshot(ctx context.Context) (domain.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.Document{}, err
	}
	return e.doc.Clone(), nil
}

func (e *Engine) ensureLoaded(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	doc, found, err := e.Store.Load(ctx, e.Key)
	if err != nil {
		return fmt.Errorf("load workflow document: %w", err)
	}
	if !found {
		doc = domain.Document{}
	}
	if doc.Requests == nil {
		doc.Requests = []domain.RequestEntry{}
	}
	e.doc = doc
	e.ids = seedAllocator(doc)
	e.loaded = true
	e.Logger.DebugContext(ctx, "workflow document loaded",
		"key", e.Key,
		"found", found,
		"requests", len(doc.Requests),
		"request_counter", e.ids.requests,
		"task_counter", e.ids.tasks,
	)
	return nil
}

// persist saves the document. On failure the in-memory copy is dropped so the
// next call starts again from what the store holds.
func (e *Engine) persist(ctx context.Context) error {
	if err := e.Store.Save(ctx, e.Key, e.doc); err != nil {
		e.reset()
		return fmt.Errorf("save workflow document: %w", err)
	}
	e.Logger.DebugContext(ctx, "workflow document saved", "key", e.Key, "requests", len(e.doc.Requests))
	return nil
}

func (e *Engine) reset() {
	e.doc = domain.Document{}
	e.ids = idAllocator{}
	e.loaded = false
}

func (e *Engine) request(requestID string) (*domain.RequestEntry, error) {
	for i := range e.doc.Requests {
		if e.doc.Requests[i].RequestID == requestID {
			return &e.doc.Requests[i], nil
		}
	}
	return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
}

func (e *Engine) task(requestID, taskID string) (*domain.RequestEntry, int, error) {
	req, err := e.request(requestID)
	if err != nil {
		return nil, -1, err
	}
	idx := req.TaskIndex(taskID)
	if idx < 0 {
		return nil, -1, fmt.Errorf("task %s in %s: %w", taskID, requestID, ErrNotFound)
	}
	return req, idx, nil
}

func (e *Engine) newTasks(in []domain.TaskInput) []domain.Task {
	out := make([]domain.Task, 0, len(in))
	for _, t := range in {
		out = append(out, domain.Task{
			ID:          e.ids.nextTask(),
			Title:       t.Title,
			Description: t.Description,
		})
	}
	return out
}

type event struct {
	typ     string
	kind    string
	id      string
	payload events.EventPayload
}

// mutate runs fn under the engine lock and publishes the event fn reports
// once the lock is released.
func mutate[R any](ctx context.Context, e *Engine, fn func() (R, *event, error)) (R, error) {
	res, evt, err := func() (R, *event, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		return fn()
	}()
	if err == nil && evt != nil {
		e.publish(ctx, *evt)
	}
	return res, err
}

// publish hands the event to the sinks. Failures are logged only: the
// document is already saved.
func (e *Engine) publish(ctx context.Context, evt event) {
	ctx = context.WithoutCancel(ctx)
	if err := e.Events.Append(ctx, evt.typ, evt.kind, evt.id, evt.payload); err != nil {
		e.Logger.WarnContext(ctx, "event publish failed", "event", evt.typ, "entity_id", evt.id, "error", err)
	}
}
