package engine

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"taskline/internal/domain"
)

const (
	glyphApproved = "✅"
	glyphDone     = "⏳"
	glyphPending  = "❌"
)

func statusGlyph(t domain.Task) string {
	switch {
	case t.Approved:
		return glyphApproved
	case t.Done:
		return glyphDone
	default:
		return glyphPending
	}
}

// RenderProgress renders one row per task, in task order.
func RenderProgress(r domain.RequestEntry) string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Status", "Task", "Description"})
	for _, t := range r.Tasks {
		tw.AppendRow(table.Row{statusGlyph(t), t.Title, t.Description})
	}
	var sb strings.Builder
	sb.WriteString("Task Progress:\n")
	sb.WriteString(tw.RenderMarkdown())
	sb.WriteString("\n")
	return sb.String()
}

// RenderRequests renders the request list with approved/total task counts.
func RenderRequests(reqs []domain.RequestEntry) string {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Original Request", "Tasks Done", "Total Tasks"})
	for _, r := range reqs {
		tw.AppendRow(table.Row{r.RequestID, r.OriginalRequest, r.ApprovedCount(), len(r.Tasks)})
	}
	var sb strings.Builder
	sb.WriteString("Requests:\n")
	sb.WriteString(tw.RenderMarkdown())
	sb.WriteString("\n")
	return sb.String()
}

// RenderTaskDetails renders the detail block for a single task.
func RenderTaskDetails(t domain.Task) string {
	var sb strings.Builder
	sb.WriteString("Task Details:\n")
	sb.WriteString("ID: " + t.ID + "\n")
	sb.WriteString("Title: " + t.Title + "\n")
	sb.WriteString("Description: " + t.Description + "\n")
	sb.WriteString("Status: " + t.Status() + "\n")
	if t.CompletedDetails != "" {
		sb.WriteString("Completion Details: " + t.CompletedDetails + "\n")
	}
	return sb.String()
}
