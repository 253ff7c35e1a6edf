package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskline/internal/tools"
)

// registerLegacy serves the original single-endpoint protocol: POST
// /list-tools and POST /call-tool. Every failure is a 400 with an error body.
func registerLegacy(r chi.Router, reg *tools.Registry, logger *slog.Logger) {
	r.Post("/list-tools", func(w http.ResponseWriter, req *http.Request) {
		list, err := mapTools(reg.List())
		if err != nil {
			writeLegacyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToolListResponse{Tools: list})
	})
	r.Post("/call-tool", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		var body LegacyCallRequest
		if err := json.Unmarshal(bodyBytes(ctx), &body); err != nil {
			writeLegacyError(w, fmt.Errorf("%w: body must be a JSON object", tools.ErrInvalidParameters))
			return
		}
		if body.Params.Name == "" {
			writeLegacyError(w, fmt.Errorf("%w: params.name is required", tools.ErrInvalidParameters))
			return
		}
		out, err := reg.Call(ctx, body.Params.Name, body.Params.Arguments)
		if err != nil {
			logger.WarnContext(ctx, "legacy tool call failed", "tool", body.Params.Name, "error", err)
			writeLegacyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func writeLegacyError(w http.ResponseWriter, err error) {
	_, code := classify(err)
	writeJSON(w, http.StatusBadRequest, apiError{Message: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
