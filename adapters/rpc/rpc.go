// Package rpc provides the JSON envelope transport. A request names a
// model and operation directly; batches are arrays executed in request
// order, each item independently success or error.
package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/artpar/opkernel/core/dispatch"
	"github.com/rs/zerolog"
)

// Request is one RPC envelope.
type Request struct {
	// ID is echoed back so batch callers can correlate responses.
	ID any `json:"id,omitempty"`

	// Model and Op identify the operation to run.
	Model string `json:"model"`
	Op    string `json:"op"`

	// Payload is the operation input.
	Payload map[string]any `json:"payload,omitempty"`

	// Lookup addresses a single record (read/update/delete targets).
	Lookup string `json:"lookup,omitempty"`
}

// Response is one RPC envelope result.
type Response struct {
	ID     any            `json:"id,omitempty"`
	Status int            `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// Handler dispatches RPC envelopes.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger
}

// NewHandler creates the RPC handler.
func NewHandler(d *dispatch.Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{dispatcher: d, logger: logger}
}

// ServeHTTP accepts a single envelope or a batch array.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method_not_allowed"})
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed_body"})
		return
	}

	if len(raw) > 0 && raw[0] == '[' {
		var batch []Request
		if err := json.Unmarshal(raw, &batch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed_batch"})
			return
		}
		responses := make([]Response, 0, len(batch))
		for _, req := range batch {
			responses = append(responses, h.run(r, req))
		}
		writeJSON(w, http.StatusOK, responses)
		return
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed_body"})
		return
	}
	resp := h.run(r, req)
	writeJSON(w, resp.Status, resp)
}

func (h *Handler) run(r *http.Request, req Request) Response {
	params := map[string]string{}
	if req.Lookup != "" {
		params["id"] = req.Lookup
	}

	outcome := h.dispatcher.Dispatch(r.Context(), req.Model, req.Op, req.Payload, params)

	resp := Response{ID: req.ID, Status: outcome.Status}
	if outcome.OK() {
		resp.Result = outcome.Body
	} else {
		resp.Error = outcome.Body
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	if status == 499 {
		status = http.StatusRequestTimeout
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
