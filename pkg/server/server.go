// Package server exposes the orchestration service over HTTP: chat turns,
// approval resolution, and a live event stream.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/stratagem-ai/stratagem/pkg/approval"
	"github.com/stratagem-ai/stratagem/pkg/logging"
	"github.com/stratagem-ai/stratagem/pkg/orchestrator"
	"github.com/stratagem-ai/stratagem/pkg/storage"
	"github.com/stratagem-ai/stratagem/pkg/telemetry"
)

// Config wires a Server.
type Config struct {
	Bind       string
	Controller *orchestrator.Controller
	Gate       *approval.Gate
	Store      *storage.Store
	Hub        *telemetry.Hub
	Logger     *logging.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg        Config
	logger     *logging.Logger
	httpServer *http.Server
}

// New creates a server with its routes mounted.
func New(cfg Config) *Server {
	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1:8787"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/approvals", s.handleListApprovals)
		r.Post("/approvals/{callID}", s.handleResolveApproval)
		r.Get("/strategies/{id}", s.handleGetStrategy)
		r.Get("/events", s.handleEvents)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Bind,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(logging.CategoryServer, "server_started", "", map[string]any{"bind": s.cfg.Bind})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the mounted routes. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Controller == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "controller not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ChatRequest is the request body for a chat turn.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Message        string `json:"message"`
}

// ChatResponse is the reply to a chat turn.
type ChatResponse struct {
	ConversationID string              `json:"conversation_id"`
	Reply          *orchestrator.Reply `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	reply, err := s.cfg.Controller.Run(r.Context(), orchestrator.Request{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Message:        req.Message,
	})
	if err != nil {
		s.logger.Error(logging.CategoryServer, "chat_failed", err.Error(), map[string]any{
			"conversation_id": req.ConversationID,
		})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{ConversationID: req.ConversationID, Reply: reply})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Gate == nil {
		writeJSON(w, http.StatusOK, []approval.Request{})
		return
	}
	pending := s.cfg.Gate.Pending()
	if pending == nil {
		pending = []approval.Request{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// ResolveRequest is the request body for deciding an approval.
type ResolveRequest struct {
	Decision  string         `json:"decision"` // "approve" or "reject"
	DecidedBy string         `json:"decided_by,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Gate == nil {
		writeError(w, http.StatusServiceUnavailable, "approval gate not configured")
		return
	}

	callID := chi.URLParam(r, "callID")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var status approval.Status
	switch req.Decision {
	case "approve":
		status = approval.StatusApproved
	case "reject":
		status = approval.StatusRejected
	default:
		writeError(w, http.StatusBadRequest, "decision must be \"approve\" or \"reject\"")
		return
	}

	err := s.cfg.Gate.Resolve(callID, approval.Decision{
		Status:    status,
		DecidedBy: req.DecidedBy,
		Reason:    req.Reason,
		Overrides: req.Overrides,
	})
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"call_id": callID, "status": string(status)})
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	id := chi.URLParam(r, "id")
	saved, plan, err := s.cfg.Store.GetStrategy(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"strategy": saved,
		"plan":     plan.ToMap(),
	})
}

// handleEvents streams telemetry as SSE until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "telemetry hub not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := s.cfg.Hub.Subscribe()
	defer cancel()

	conversationID := r.URL.Query().Get("conversation_id")

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if conversationID != "" && event.ConversationID != conversationID {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: " + string(event.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
