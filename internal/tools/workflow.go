package tools

import (
	"context"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

// Workflow is the engine surface the tools drive. *engine.Engine satisfies it.
type Workflow interface {
	PlanRequest(ctx context.Context, originalRequest string, tasks []domain.TaskInput, splitDetails string) (engine.PlanResult, error)
	GetNextTask(ctx context.Context, requestID string) (engine.NextTaskResult, error)
	MarkTaskDone(ctx context.Context, requestID, taskID, completedDetails string) (engine.Result, error)
	ApproveTaskCompletion(ctx context.Context, requestID, taskID string) (engine.Result, error)
	ApproveRequestCompletion(ctx context.Context, requestID string) (engine.Result, error)
	OpenTaskDetails(ctx context.Context, taskID string) (engine.TaskDetailsResult, error)
	ListRequests(ctx context.Context) (engine.RequestListResult, error)
	AddTasksToRequest(ctx context.Context, requestID string, tasks []domain.TaskInput) (engine.Result, error)
	UpdateTask(ctx context.Context, requestID, taskID string, upd engine.TaskUpdate) (engine.Result, error)
	DeleteTask(ctx context.Context, requestID, taskID string) (engine.Result, error)
}

var _ Workflow = (*engine.Engine)(nil)

const (
	RequestPlanning          = "request_planning"
	GetNextTask              = "get_next_task"
	MarkTaskDone             = "mark_task_done"
	ApproveTaskCompletion    = "approve_task_completion"
	ApproveRequestCompletion = "approve_request_completion"
	OpenTaskDetails          = "open_task_details"
	ListRequests             = "list_requests"
	AddTasksToRequest        = "add_tasks_to_request"
	UpdateTask               = "update_task"
	DeleteTask               = "delete_task"
)

type RequestPlanningParams struct {
	OriginalRequest string             `json:"originalRequest" doc:"The request as the user phrased it"`
	SplitDetails    string             `json:"splitDetails,omitempty" doc:"How the request was broken into tasks"`
	Tasks           []domain.TaskInput `json:"tasks" nullable:"false" doc:"Tasks in the order they should be worked on"`
}

type RequestParams struct {
	RequestID string `json:"requestId" doc:"Request id, e.g. req-1"`
}

type MarkTaskDoneParams struct {
	RequestID        string `json:"requestId" doc:"Request id, e.g. req-1"`
	TaskID           string `json:"taskId" doc:"Task id, e.g. task-1"`
	CompletedDetails string `json:"completedDetails,omitempty" doc:"What was done"`
}

type TaskRefParams struct {
	RequestID string `json:"requestId" doc:"Request id, e.g. req-1"`
	TaskID    string `json:"taskId" doc:"Task id, e.g. task-1"`
}

type OpenTaskDetailsParams struct {
	TaskID string `json:"taskId" doc:"Task id, e.g. task-1"`
}

type ListRequestsParams struct{}

type AddTasksParams struct {
	RequestID string             `json:"requestId" doc:"Request id, e.g. req-1"`
	Tasks     []domain.TaskInput `json:"tasks" nullable:"false" doc:"Tasks to append"`
}

type UpdateTaskParams struct {
	RequestID   string `json:"requestId" doc:"Request id, e.g. req-1"`
	TaskID      string `json:"taskId" doc:"Task id, e.g. task-1"`
	Title       string `json:"title,omitempty" doc:"New title; empty keeps the current one"`
	Description string `json:"description,omitempty" doc:"New description; empty keeps the current one"`
}

func registerWorkflowTools(r *Registry) error {
	regs := []func() error{
		func() error {
			return register(r, RequestPlanning, "Register a new user request and plan its associated tasks.",
				func(ctx context.Context, w Workflow, p RequestPlanningParams) (any, error) {
					return w.PlanRequest(ctx, p.OriginalRequest, p.Tasks, p.SplitDetails)
				})
		},
		func() error {
			return register(r, GetNextTask, "Get the next pending task for a request.",
				func(ctx context.Context, w Workflow, p RequestParams) (any, error) {
					return w.GetNextTask(ctx, p.RequestID)
				})
		},
		func() error {
			return register(r, MarkTaskDone, "Mark a task as completed.",
				func(ctx context.Context, w Workflow, p MarkTaskDoneParams) (any, error) {
					return w.MarkTaskDone(ctx, p.RequestID, p.TaskID, p.CompletedDetails)
				})
		},
		func() error {
			return register(r, ApproveTaskCompletion, "Approve a completed task.",
				func(ctx context.Context, w Workflow, p TaskRefParams) (any, error) {
					return w.ApproveTaskCompletion(ctx, p.RequestID, p.TaskID)
				})
		},
		func() error {
			return register(r, ApproveRequestCompletion, "Approve the completion of an entire request.",
				func(ctx context.Context, w Workflow, p RequestParams) (any, error) {
					return w.ApproveRequestCompletion(ctx, p.RequestID)
				})
		},
		func() error {
			return register(r, OpenTaskDetails, "Get details of a specific task.",
				func(ctx context.Context, w Workflow, p OpenTaskDetailsParams) (any, error) {
					return w.OpenTaskDetails(ctx, p.TaskID)
				})
		},
		func() error {
			return register(r, ListRequests, "List all requests in the system.",
				func(ctx context.Context, w Workflow, _ ListRequestsParams) (any, error) {
					return w.ListRequests(ctx)
				})
		},
		func() error {
			return register(r, AddTasksToRequest, "Add new tasks to an existing request.",
				func(ctx context.Context, w Workflow, p AddTasksParams) (any, error) {
					return w.AddTasksToRequest(ctx, p.RequestID, p.Tasks)
				})
		},
		func() error {
			return register(r, UpdateTask, "Update an existing task.",
				func(ctx context.Context, w Workflow, p UpdateTaskParams) (any, error) {
					return w.UpdateTask(ctx, p.RequestID, p.TaskID, engine.TaskUpdate{Title: p.Title, Description: p.Description})
				})
		},
		func() error {
			return register(r, DeleteTask, "Delete a task from a request.",
				func(ctx context.Context, w Workflow, p TaskRefParams) (any, error) {
					return w.DeleteTask(ctx, p.RequestID, p.TaskID)
				})
		},
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}
