// ABOUTME: HTTP endpoint receiving channel messages and fanning out to agents
// ABOUTME: POST /message resolves subscribers and processes each in background

package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

// Processor runs one agent turn in response to a channel message.
// Implemented by agent.Factory.
type Processor interface {
	Process(ctx context.Context, userID uuid.UUID, agentName, prompt string) (string, error)
}

// Server is the agent service HTTP surface.
type Server struct {
	store     store.Store
	processor Processor
	logger    *slog.Logger

	metricsEnabled bool
	metricsPath    string

	// wg tracks in-flight background agent runs so tests and shutdown
	// can wait for them.
	wg sync.WaitGroup
}

// New creates a server.
func New(st store.Store, processor Processor, metricsEnabled bool, metricsPath string) *Server {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &Server{
		store:          st,
		processor:      processor,
		logger:         slog.Default().With("component", "endpoint"),
		metricsEnabled: metricsEnabled,
		metricsPath:    metricsPath,
	}
}

// Router builds the chi router with middleware and routes.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.metricsMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logMiddleware)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost",
			"http://localhost:8000",
			"http://localhost:5173",
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.metricsEnabled {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Get("/health", s.handleHealth)
	r.Post("/message", s.handleMessage)

	return r
}

// Wait blocks until all in-flight agent runs complete.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "everlight-agents",
	})
}

type messageRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// handleMessage accepts a channel message, resolves its subscribers and
// starts background processing per agent. The sender is excluded so an
// agent never processes its own message.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}
	if req.Channel == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "channel and message are required",
		})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("user_id '%s' is not a valid UUID", req.UserID),
		})
		return
	}

	subscribers, err := s.store.Subscribers(r.Context(), userID, req.Channel)
	if err != nil {
		s.logger.Error("failed to resolve subscribers", "channel", req.Channel, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve channel subscribers",
		})
		return
	}

	var recipients []*store.Agent
	for _, agent := range subscribers {
		if agent.Name == req.Sender {
			continue
		}
		recipients = append(recipients, agent)
	}

	messagesReceived.Inc()
	prompt := fmt.Sprintf("New message on channel '%s' from %s:\n\n%s", req.Channel, req.Sender, req.Message)
	for _, agent := range recipients {
		s.wg.Add(1)
		go s.runAgent(userID, agent.Name, prompt)
	}

	s.logger.Info("message accepted",
		"channel", req.Channel,
		"sender", req.Sender,
		"recipients", len(recipients))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("Message accepted. Processing for %d agent(s) has been initiated.", len(recipients)),
	})
}

// runAgent processes one agent in the background. The request context is
// gone by the time this runs, so it uses its own.
func (s *Server) runAgent(userID uuid.UUID, agentName, prompt string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	reply, err := s.processor.Process(ctx, userID, agentName, prompt)
	if err != nil {
		agentRuns.WithLabelValues("error").Inc()
		s.logger.Error("agent processing failed",
			"agent", agentName,
			"user_id", userID,
			"error", err)
		return
	}

	agentRuns.WithLabelValues("ok").Inc()
	s.logger.Info("agent processing complete",
		"agent", agentName,
		"user_id", userID,
		"reply_length", len(reply))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
