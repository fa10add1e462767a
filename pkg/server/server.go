// Package server exposes the conversation driver over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/minhyannv/function-call-go/pkg/agent"
	"github.com/minhyannv/function-call-go/pkg/chat"
	"github.com/minhyannv/function-call-go/pkg/dispatch"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/minhyannv/function-call-go/pkg/request"
	"github.com/minhyannv/function-call-go/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 1 << 20

// ChatRequest is the body of POST /v1/chat. An empty ConversationID starts
// a new conversation.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

// ChatResponse is returned for a completed run.
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	RunID          string `json:"run_id"`
	Answer         string `json:"answer"`
	FinishReason   string `json:"finish_reason,omitempty"`
	Rounds         int    `json:"rounds"`
	ToolRounds     int    `json:"tool_rounds"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	State     string `json:"state,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ConversationResponse is returned by GET /v1/conversations/{id}.
type ConversationResponse struct {
	ID       string         `json:"id"`
	Messages []chat.Message `json:"messages"`
}

// Server serves chat runs backed by a conversation store.
type Server struct {
	driver       *agent.Driver
	store        store.Store
	systemPrompt string
	gatherer     prometheus.Gatherer
	logger       loggerpkg.Logger
	verbose      bool

	locks lockTable
}

// lockTable serializes work per conversation id. Entries live only while a
// request holds or waits on them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func (t *lockTable) acquire(id string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*convLock)
	}
	l, ok := t.locks[id]
	if !ok {
		l = &convLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}

func (t *lockTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger injects a logger.
func WithLogger(l loggerpkg.Logger, verbose bool) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
		s.verbose = verbose
	}
}

// WithSystemPrompt sets the prompt that opens new conversations.
func WithSystemPrompt(prompt string) Option {
	return func(s *Server) { s.systemPrompt = strings.TrimSpace(prompt) }
}

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds a server.
func New(driver *agent.Driver, st store.Store, opts ...Option) *Server {
	s := &Server{
		driver:   driver,
		store:    st,
		gatherer: prometheus.DefaultGatherer,
		logger:   loggerpkg.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.store == nil {
		s.store = store.NewMemory()
	}
	if s.systemPrompt == "" {
		s.systemPrompt = agent.BuildSystemPrompt(driver.Registry().Declarations())
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/tools", s.handleTools)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}", s.handleGetConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
	})
	return r
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	body.Message = strings.TrimSpace(body.Message)
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "message is required"})
		return
	}

	ctx := r.Context()
	id := strings.TrimSpace(body.ConversationID)
	if id != "" {
		unlock := s.lock(id)
		defer unlock()
	}
	conv, err := s.openConversation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		s.internalError(w, "load conversation failed", err)
		return
	}

	loggerpkg.Debug(s.verbose, s.logger, "chat request", map[string]any{
		"conversation_id": conv.ID,
		"request_id":      middleware.GetReqID(ctx),
	})

	previousLen := conv.Len()
	if err := conv.Append(chat.User(body.Message)); err != nil {
		writeError(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	res, err := s.driver.Run(ctx, conv)
	if err != nil {
		conv.Truncate(previousLen)
		s.runError(w, err)
		return
	}
	if err := s.store.Save(ctx, conv); err != nil {
		s.internalError(w, "save conversation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: conv.ID,
		RunID:          res.RunID,
		Answer:         res.Answer,
		FinishReason:   res.FinishReason,
		Rounds:         res.Rounds,
		ToolRounds:     res.ToolRounds,
	})
}

func (s *Server) openConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	if id != "" {
		return s.store.Load(ctx, id)
	}
	return chat.NewConversation(chat.System(s.systemPrompt))
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	decls := s.driver.Registry().Declarations()
	out := make([]toolInfo, 0, len(decls))
	for _, d := range decls {
		info := toolInfo{Name: d.Name, Description: d.Description}
		if d.Parameters != nil {
			info.Parameters = d.Parameters
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.List(r.Context())
	if err != nil {
		s.internalError(w, "list conversations failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": ids})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := s.store.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		s.internalError(w, "load conversation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{ID: conv.ID, Messages: conv.Messages()})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unlock := s.lock(id)
	defer unlock()
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.internalError(w, "delete conversation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lock(id string) func() {
	return s.locks.acquire(id)
}

// runError maps a failed run to a status code.
func (s *Server) runError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var runErr *agent.RunError
	if errors.As(err, &runErr) {
		resp.State = string(runErr.State)
		resp.Retryable = runErr.Retryable
	}

	var fatal *dispatch.FatalError
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, request.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrProtocolViolation):
		status = http.StatusConflict
	case errors.Is(err, agent.ErrToolLoopLimitExceeded):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &fatal):
		status = http.StatusInternalServerError
	case resp.Retryable:
		status = http.StatusServiceUnavailable
	}
	loggerpkg.Warn(s.logger, "chat run failed", map[string]any{
		"status": status,
		"error":  err.Error(),
	})
	writeError(w, status, resp)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	loggerpkg.Error(s.logger, msg, map[string]any{"error": err.Error()})
	writeError(w, http.StatusInternalServerError, ErrorResponse{Error: msg})
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
