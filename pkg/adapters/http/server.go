// Package http serves the administrative surface of an agent over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/mobility"
	"github.com/aretw0/mobility/internal/compiler"
	"github.com/aretw0/mobility/internal/logging"
	"github.com/aretw0/mobility/internal/presentation/graph"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBody bounds request bodies; scripts are small.
const maxBody = 1 << 20

// Server exposes an agent's admin operations.
type Server struct {
	Admin   mobility.Admin
	Streams *StreamManager
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithStreams enables GET /events. The stream manager must also be
// registered as an observer of the agent.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetrics mounts h, typically promhttp.Handler(), on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the agent.
func NewHandler(admin mobility.Admin, opts ...Option) http.Handler {
	s := &Server{Admin: admin, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	if s.Streams != nil {
		r.Get("/events", s.SubscribeEvents)
	}

	r.Route("/scripts", func(r chi.Router) {
		r.Get("/", s.ListScripts)
		r.Post("/", s.CreateScript)
		r.Get("/{owner}/{seq}", s.GetScript)
		r.Get("/{owner}/{seq}/graph", s.GetScriptGraph)
		r.Delete("/{owner}/{seq}", s.RemoveScript)
	})
	r.Route("/procs", func(r chi.Router) {
		r.Get("/", s.ListProcs)
		r.Post("/", s.CreateProc)
		r.Delete("/{owner}/{seq}", s.RemoveProc)
	})
	r.Route("/steps", func(r chi.Router) {
		r.Get("/", s.ListSteps)
		r.Get("/{owner}/{seq}", s.GetStep)
	})
	r.Route("/requests", func(r chi.Router) {
		r.Get("/", s.ListRequests)
		r.Post("/", s.CreateRequest)
		r.Delete("/{owner}/{seq}", s.RemoveRequest)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "mobility-http",
		"version": strings.TrimSpace(mobility.Version),
	})
}

func (s *Server) ListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := s.Admin.Scripts(r.Context())
	s.respond(w, http.StatusOK, scripts, err)
}

type createScriptRequest struct {
	Text string `json:"text"`
}

// CreateScript handles POST /scripts. The body is either the raw script
// text or a JSON object {"text": "..."}.
func (s *Server) CreateScript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	text := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req createScriptRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		text = req.Text
	}
	script, err := s.Admin.CreateScript(r.Context(), text)
	s.respond(w, http.StatusCreated, script, err)
}

func (s *Server) GetScript(w http.ResponseWriter, r *http.Request) {
	script, ok := s.findScript(w, r)
	if ok {
		s.writeJSON(w, http.StatusOK, script)
	}
}

// GetScriptGraph renders the script as a Mermaid flowchart.
func (s *Server) GetScriptGraph(w http.ResponseWriter, r *http.Request) {
	script, ok := s.findScript(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(script, nil))
}

func (s *Server) findScript(w http.ResponseWriter, r *http.Request) (*domain.Script, bool) {
	id, ok := s.pathID(w, r)
	if !ok {
		return nil, false
	}
	scripts, err := s.Admin.Scripts(r.Context())
	if err != nil {
		s.fail(w, status(err), err)
		return nil, false
	}
	for _, sc := range scripts {
		if sc.ID == id {
			return sc, true
		}
	}
	s.fail(w, http.StatusNotFound, fmt.Errorf("%w: %s", domain.ErrNotFound, id))
	return nil, false
}

func (s *Server) RemoveScript(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.pathID(w, r); ok {
		s.respond(w, http.StatusNoContent, nil, s.Admin.RemoveScript(r.Context(), id))
	}
}

func (s *Server) ListProcs(w http.ResponseWriter, r *http.Request) {
	procs, err := s.Admin.Procs(r.Context())
	s.respond(w, http.StatusOK, procs, err)
}

type createProcRequest struct {
	ScriptID domain.UID `json:"script_id"`
}

func (s *Server) CreateProc(w http.ResponseWriter, r *http.Request) {
	var req createProcRequest
	if !s.decode(w, r, &req) {
		return
	}
	proc, err := s.Admin.CreateProc(r.Context(), req.ScriptID)
	s.respond(w, http.StatusCreated, proc, err)
}

func (s *Server) RemoveProc(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.pathID(w, r); ok {
		s.respond(w, http.StatusNoContent, nil, s.Admin.RemoveProc(r.Context(), id))
	}
}

func (s *Server) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.Admin.Steps(r.Context())
	s.respond(w, http.StatusOK, steps, err)
}

func (s *Server) GetStep(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.pathID(w, r); ok {
		step, err := s.Admin.Step(r.Context(), id)
		s.respond(w, http.StatusOK, step, err)
	}
}

func (s *Server) ListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.Admin.Requests(r.Context())
	s.respond(w, http.StatusOK, reqs, err)
}

type createRequestRequest struct {
	Kind   domain.RequestKind `json:"kind"`
	Target domain.AgentID     `json:"target"`
	Ticket domain.Ticket      `json:"ticket"`
}

func (s *Server) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if !s.decode(w, r, &req) {
		return
	}
	created, err := s.Admin.CreateRequest(r.Context(), req.Kind, req.Target, req.Ticket)
	s.respond(w, http.StatusCreated, created, err)
}

func (s *Server) RemoveRequest(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.pathID(w, r); ok {
		s.respond(w, http.StatusNoContent, nil, s.Admin.RemoveRequest(r.Context(), id))
	}
}

// SubscribeEvents handles GET /events (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (domain.UID, bool) {
	owner := chi.URLParam(r, "owner")
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if owner == "" || err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("%w: %s/%s", domain.ErrInvalidUID, owner, chi.URLParam(r, "seq")))
		return domain.UID{}, false
	}
	return domain.UID{Owner: domain.AgentID(owner), Seq: seq}, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, code int, v any, err error) {
	if err != nil {
		s.fail(w, status(err), err)
		return
	}
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}
	s.writeJSON(w, code, v)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func status(err error) int {
	var perr *compiler.ParseError
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrScriptNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.As(err, &perr),
		errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrNoTarget),
		errors.Is(err, domain.ErrInvalidUID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
