package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nexus-iot/server/internal/tools"
)

const maxToolInput = 1 << 20

// ListTools returns the available tool names.
func (a *API) ListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": tools.Names()})
}

// ExecuteTool runs the named tool with the request body as input.
func (a *API) ExecuteTool(w http.ResponseWriter, r *http.Request, name string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxToolInput))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Could not read request body")
		return
	}
	result, err := a.tools.Execute(r.Context(), name, json.RawMessage(body))
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		writeError(w, http.StatusNotFound, "unknown_tool", err.Error())
		return
	case errors.Is(err, tools.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	case err != nil:
		a.logger.Error("tool execution failed", "tool", name, "err", err)
		writeError(w, http.StatusInternalServerError, "tool_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
