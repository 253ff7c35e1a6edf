package mcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"taskline/internal/engine"
	"taskline/internal/events"
	"taskline/internal/logger"
	tlmcp "taskline/internal/mcp"
	"taskline/internal/store"
	"taskline/internal/tools"
)

func newTestServer(t *testing.T) *tlmcp.Server {
	t.Helper()
	eng := engine.New(store.NewDocuments(store.NewMemory()), events.Writer{}, logger.Discard())
	reg, err := tools.NewRegistry(tools.Static(eng))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return tlmcp.NewServer(tlmcp.ServerConfig{Name: "test", Version: "0.1.0", Logger: logger.Discard()}, reg)
}

func callTool(t *testing.T, s *tlmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	registered := s.MCPServer().ListTools()
	tool, ok := registered[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	result, err := tool.Handler(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty content")
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)
	if s.MCPServer() == nil {
		t.Fatal("MCPServer() returned nil")
	}
	if s.HTTPHandler() == nil {
		t.Fatal("HTTPHandler() returned nil")
	}
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t)
	registered := s.MCPServer().ListTools()
	expected := []string{
		"request_planning", "get_next_task", "mark_task_done", "approve_task_completion",
		"approve_request_completion", "open_task_details", "list_requests",
		"add_tasks_to_request", "update_task", "delete_task",
	}
	if len(registered) != len(expected) {
		t.Fatalf("expected %d tools, got %d", len(expected), len(registered))
	}
	for _, name := range expected {
		tool, ok := registered[name]
		if !ok {
			t.Errorf("expected tool %q not registered", name)
			continue
		}
		if len(tool.Tool.RawInputSchema) == 0 {
			t.Errorf("tool %q has no raw input schema", name)
		}
	}
}

func TestPlanAndFetchNextTask(t *testing.T) {
	s := newTestServer(t)
	result := callTool(t, s, "request_planning", map[string]any{
		"originalRequest": "Write docs",
		"tasks": []any{
			map[string]any{"title": "Outline", "description": "List sections"},
		},
	})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var plan engine.PlanResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &plan); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if plan.RequestID != "req-1" {
		t.Fatalf("expected req-1, got %q", plan.RequestID)
	}

	result = callTool(t, s, "get_next_task", map[string]any{"requestId": "req-1"})
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	var next engine.NextTaskResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &next); err != nil {
		t.Fatalf("unmarshal next: %v", err)
	}
	if next.TaskID == nil || *next.TaskID != "task-1" {
		t.Fatalf("expected task-1, got %v", next.TaskID)
	}
}

func TestListRequestsWithoutArguments(t *testing.T) {
	s := newTestServer(t)
	result := callTool(t, s, "list_requests", nil)
	if result.IsError {
		t.Fatalf("tool returned error: %v", result.Content)
	}
	if !strings.Contains(resultText(t, result), "Requests:") {
		t.Fatalf("unexpected listing: %s", resultText(t, result))
	}
}

func TestInvalidArgumentsReturnToolError(t *testing.T) {
	s := newTestServer(t)
	result := callTool(t, s, "get_next_task", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error result for missing requestId")
	}
	if !strings.Contains(resultText(t, result), "invalid parameters") {
		t.Fatalf("unexpected error text: %s", resultText(t, result))
	}
}

func TestEngineErrorReturnsToolError(t *testing.T) {
	s := newTestServer(t)
	result := callTool(t, s, "approve_request_completion", map[string]any{"requestId": "req-404"})
	if !result.IsError {
		t.Fatal("expected error result for unknown request")
	}
	if !strings.Contains(resultText(t, result), "not found") {
		t.Fatalf("unexpected error text: %s", resultText(t, result))
	}
}
