package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskline/internal/domain"
	"taskline/internal/tools"
)

// parseTaskFlags turns "Title|Description" values into task inputs.
func parseTaskFlags(values []string) ([]domain.TaskInput, error) {
	out := make([]domain.TaskInput, 0, len(values))
	for _, v := range values {
		title, desc, ok := strings.Cut(v, "|")
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, fmt.Errorf("invalid --task %q: title required", v)
		}
		if !ok {
			desc = title
		}
		out = append(out, domain.TaskInput{Title: title, Description: strings.TrimSpace(desc)})
	}
	return out, nil
}

func requestCmd() *cobra.Command {
	rc := &cobra.Command{Use: "request", Short: "Manage requests"}

	var (
		original string
		split    string
		taskArgs []string
	)
	planCmd := &cobra.Command{
		Use:     "plan",
		Short:   "Register a new request with its tasks",
		Example: `  tl request plan --request "Ship login" --task "Form|Build the login form" --task "API|Add /login"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := parseTaskFlags(taskArgs)
			if err != nil {
				return err
			}
			return runTool(cmd.Context(), tools.RequestPlanning, tools.RequestPlanningParams{
				OriginalRequest: original,
				SplitDetails:    split,
				Tasks:           list,
			})
		},
	}
	planCmd.Flags().StringVar(&original, "request", "", "the request as the user phrased it")
	planCmd.Flags().StringVar(&split, "split", "", "how the request was split into tasks")
	planCmd.Flags().StringArrayVar(&taskArgs, "task", nil, "task as \"Title|Description\" (repeatable)")
	_ = planCmd.MarkFlagRequired("request")
	rc.AddCommand(planCmd)

	rc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List requests with progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.ListRequests, tools.ListRequestsParams{})
		},
	})
	rc.AddCommand(&cobra.Command{
		Use:   "next <request-id>",
		Short: "Show the next pending task of a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.GetNextTask, tools.RequestParams{RequestID: args[0]})
		},
	})
	rc.AddCommand(&cobra.Command{
		Use:   "approve <request-id>",
		Short: "Close a request whose tasks are all approved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.ApproveRequestCompletion, tools.RequestParams{RequestID: args[0]})
		},
	})

	var addArgs []string
	addCmd := &cobra.Command{
		Use:   "add-tasks <request-id>",
		Short: "Append tasks to an open request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := parseTaskFlags(addArgs)
			if err != nil {
				return err
			}
			return runTool(cmd.Context(), tools.AddTasksToRequest, tools.AddTasksParams{RequestID: args[0], Tasks: list})
		},
	}
	addCmd.Flags().StringArrayVar(&addArgs, "task", nil, "task as \"Title|Description\" (repeatable)")
	rc.AddCommand(addCmd)
	return rc
}

func taskCmd() *cobra.Command {
	tc := &cobra.Command{Use: "task", Short: "Manage tasks"}

	var details string
	doneCmd := &cobra.Command{
		Use:   "done <request-id> <task-id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.MarkTaskDone, tools.MarkTaskDoneParams{
				RequestID:        args[0],
				TaskID:           args[1],
				CompletedDetails: details,
			})
		},
	}
	doneCmd.Flags().StringVar(&details, "details", "", "what was done")
	tc.AddCommand(doneCmd)

	tc.AddCommand(&cobra.Command{
		Use:   "approve <request-id> <task-id>",
		Short: "Approve a done task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.ApproveTaskCompletion, tools.TaskRefParams{RequestID: args[0], TaskID: args[1]})
		},
	})
	tc.AddCommand(&cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task's details and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.OpenTaskDetails, tools.OpenTaskDetailsParams{TaskID: args[0]})
		},
	})

	var title, description string
	updateCmd := &cobra.Command{
		Use:   "update <request-id> <task-id>",
		Short: "Edit a task that is not done yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.UpdateTask, tools.UpdateTaskParams{
				RequestID:   args[0],
				TaskID:      args[1],
				Title:       title,
				Description: description,
			})
		},
	}
	updateCmd.Flags().StringVar(&title, "title", "", "new title")
	updateCmd.Flags().StringVar(&description, "description", "", "new description")
	tc.AddCommand(updateCmd)

	tc.AddCommand(&cobra.Command{
		Use:   "delete <request-id> <task-id>",
		Short: "Delete a task that is not done yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd.Context(), tools.DeleteTask, tools.TaskRefParams{RequestID: args[0], TaskID: args[1]})
		},
	})
	return tc
}
