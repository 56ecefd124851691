// Package api serves the task HTTP API and its server-sent events push channel.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erennakbas/tasksync/broker/hub"
	"github.com/erennakbas/tasksync/store"
	"github.com/erennakbas/tasksync/types"
)

// DefaultHeartbeat is how often an idle event stream receives a keep-alive comment.
const DefaultHeartbeat = 25 * time.Second

// TaskService applies task operations and announces the resulting changes.
type TaskService interface {
	ListTasks(ctx context.Context) ([]*types.Task, error)
	CreateTask(ctx context.Context, text string) (*types.Task, error)
	UpdateTask(ctx context.Context, taskID string, completed bool) (*types.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	Ping(ctx context.Context) error
}

// Observers is the registry event streams join and leave.
type Observers interface {
	Join() (*hub.Observer, error)
	Leave(id string)
}

// Server serves the task API.
type Server struct {
	tasks     TaskService
	observers Observers
	logger    types.Logger
	heartbeat time.Duration
	handler   http.Handler
	server    *http.Server
}

// Config configures the API server.
type Config struct {
	Addr      string
	Tasks     TaskService
	Observers Observers
	Logger    types.Logger

	// AllowedOrigins lists origins granted cross-origin access. "*" allows any.
	AllowedOrigins []string

	// Heartbeat is the keep-alive interval of event streams.
	Heartbeat time.Duration
}

// NewServer creates a new API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tasks == nil {
		return nil, errors.New("api: Tasks is required")
	}
	if cfg.Observers == nil {
		return nil, errors.New("api: Observers is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = types.DefaultLogger()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}

	s := &Server{
		tasks:     cfg.Tasks,
		observers: cfg.Observers,
		logger:    cfg.Logger,
		heartbeat: cfg.Heartbeat,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("PUT /tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)

	// Push channel
	mux.HandleFunc("GET /events", s.handleEvents)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.handler = s.logRequests(cors(cfg.AllowedOrigins, mux))

	// WriteTimeout is cleared per event stream.
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Task handlers

type createTaskRequest struct {
	Text string `json:"text"`
}

type updateTaskRequest struct {
	Completed bool `json:"completed"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(r.Context())
	if err != nil {
		s.serverError(w, "failed to list tasks", err)
		return
	}

	s.json(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.error(w, "Bad Request", err, http.StatusBadRequest)
		return
	}

	task, err := s.tasks.CreateTask(r.Context(), req.Text)
	if err != nil {
		s.serverError(w, "failed to create task", err)
		return
	}

	s.json(w, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	var req updateTaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.error(w, "Bad Request", err, http.StatusBadRequest)
		return
	}

	task, err := s.tasks.UpdateTask(r.Context(), taskID, req.Completed)
	if errors.Is(err, store.ErrNotFound) {
		s.error(w, "Not Found", nil, http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, "failed to update task", err)
		return
	}

	// task may be nil: the body is then JSON null
	s.json(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	if err := s.tasks.DeleteTask(r.Context(), taskID); err != nil {
		s.serverError(w, "failed to delete task", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Ping(r.Context()); err != nil {
		s.logger.WithError(err).Warn("health check failed")
		s.json(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

// decodeBody decodes a JSON request body. An empty body decodes to the zero value.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

func (s *Server) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) error(w http.ResponseWriter, message string, err error, status int) {
	if err != nil {
		s.logger.WithError(err).Warn(message)
	}
	http.Error(w, message, status)
}

// serverError logs the cause and answers with a generic 500.
func (s *Server) serverError(w http.ResponseWriter, message string, err error) {
	s.logger.WithError(err).Error(message)
	http.Error(w, "Server Error", http.StatusInternalServerError)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("handled request")
	})
}
