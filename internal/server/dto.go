package server

import (
	"encoding/json"

	"taskline/internal/tools"
)

// Request payloads

// LegacyCallRequest is the body of POST /call-tool.
type LegacyCallRequest struct {
	Params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	} `json:"params"`
}

// Response payloads

type ToolResponse struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ToolListResponse struct {
	Tools []ToolResponse `json:"tools"`
}

func mapTools(items []tools.Tool) ([]ToolResponse, error) {
	out := make([]ToolResponse, 0, len(items))
	for _, t := range items {
		var schema map[string]any
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, err
		}
		out = append(out, ToolResponse{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out, nil
}
