// Package http provides the REST transport. It translates HTTP
// requests into dispatch-boundary calls and serializes the
// transport-neutral outcome back as JSON over HTTP.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/artpar/opkernel/core/dispatch"
	"github.com/artpar/opkernel/core/registry"
	"github.com/artpar/opkernel/core/schema"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server routes REST calls into the dispatch boundary.
type Server struct {
	router     chi.Router
	dispatcher *dispatch.Dispatcher
	reg        *registry.Registry
	logger     zerolog.Logger
}

// NewServer builds the REST routes for every registered model plus the
// diagnostics surface.
func NewServer(d *dispatch.Dispatcher, reg *registry.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		dispatcher: d,
		reg:        reg,
		logger:     logger,
	}

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/kernelz", s.handleKernelz)
	s.router.Get("/hookz", s.handleHookz)
	s.router.Get("/methodz", s.handleMethodz)
	s.router.Handle("/metrics", promhttp.Handler())

	for _, m := range reg.Models() {
		s.registerModel(m)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Mount attaches an additional handler (e.g., the RPC transport).
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

func (s *Server) registerModel(m schema.Model) {
	base := "/api/" + m.Name + "s"

	for _, spec := range s.reg.Resolve(m.Name) {
		if !spec.ExposeREST {
			continue
		}
		// Aliases share their target's route; only the canonical
		// spelling gets one.
		if spec.Implicit && spec.Alias != spec.Target {
			continue
		}
		s.registerRoute(base, spec)
	}
}

func (s *Server) registerRoute(base string, spec schema.OpSpec) {
	h := s.operationHandler(spec)

	// Declared operations route by alias even when they execute a
	// canonical target; the target's own route belongs to the implicit
	// spec.
	if !spec.Implicit {
		if spec.Arity == schema.AritySingle {
			s.router.Post(base+"/{id}/"+spec.Alias, h)
		} else {
			s.router.Post(base+"/"+spec.Alias, h)
		}
		return
	}

	switch spec.Target {
	case "list":
		s.router.Get(base, h)
	case "create":
		s.router.Post(base, h)
	case "read":
		s.router.Get(base+"/{id}", h)
	case "update":
		s.router.Patch(base+"/{id}", h)
	case "replace":
		s.router.Put(base+"/{id}", h)
	case "delete":
		s.router.Delete(base+"/{id}", h)
	case "clear":
		s.router.Delete(base, h)
	case "bulk_create":
		s.router.Post(base+"/bulk", h)
	case "bulk_update":
		s.router.Patch(base+"/bulk", h)
	case "bulk_replace":
		s.router.Put(base+"/bulk", h)
	case "bulk_delete":
		s.router.Delete(base+"/bulk", h)
	}
}

func (s *Server) operationHandler(spec schema.OpSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodePayload(r)
		if err != nil {
			writeJSON(w, 400, map[string]any{"error": "malformed_body", "message": err.Error()})
			return
		}

		params := map[string]string{}
		if id := chi.URLParam(r, "id"); id != "" {
			params["id"] = id
		}
		mergeQuery(r, payload)

		outcome := s.dispatcher.Dispatch(r.Context(), spec.Model, spec.Alias, payload, params)
		writeJSON(w, outcome.Status, outcome.Body)
	}
}

func decodePayload(r *http.Request) (map[string]any, error) {
	payload := map[string]any{}
	if r.Body == nil || r.ContentLength == 0 {
		return payload, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// mergeQuery folds query parameters into the payload without
// overriding body values. List pagination arrives this way.
func mergeQuery(r *http.Request, payload map[string]any) {
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		if _, exists := payload[key]; exists {
			continue
		}
		payload[key] = values[0]
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{"status": "ok"})
}

func (s *Server) handleKernelz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.dispatcher.Kernelz())
}

func (s *Server) handleHookz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.dispatcher.Hookz())
}

func (s *Server) handleMethodz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.dispatcher.Methodz())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	// 499 is a transport-internal marker for client cancellation.
	if status == 499 {
		status = http.StatusRequestTimeout
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
