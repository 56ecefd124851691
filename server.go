package tasksync

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erennakbas/tasksync/api"
	"github.com/erennakbas/tasksync/broker"
	"github.com/erennakbas/tasksync/broker/hub"
	"github.com/erennakbas/tasksync/store"
)

// Default configuration values
const (
	DefaultAddr            = ":3000"
	DefaultShutdownTimeout = 10 * time.Second
)

// Server wires a store, the observer hub, the coordinator and the HTTP API
// into one process.
type Server struct {
	store       store.Store
	hub         *hub.Hub
	coordinator *Coordinator
	api         *api.Server
	logger      Logger

	// Configuration
	addr            string
	allowedOrigins  []string
	shutdownTimeout time.Duration
	heartbeat       time.Duration
	bufferSize      int
	strictNotFound  bool
	announcers      []broker.Broker

	// State
	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithAllowedOrigins sets the origins granted cross-origin access.
// "*" allows any origin.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithServerLogger sets the logger for the server and everything it creates.
func WithServerLogger(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) {
		s.heartbeat = d
	}
}

// WithObserverBuffer sets how many events an observer may lag behind
// before it starts missing events.
func WithObserverBuffer(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithServerStrictNotFound answers updates of unknown tasks with 404 and
// does not announce them.
func WithServerStrictNotFound() ServerOption {
	return func(s *Server) {
		s.strictNotFound = true
	}
}

// WithAnnouncer adds a broker that receives every announcement next to the
// connected observers.
func WithAnnouncer(b broker.Broker) ServerOption {
	return func(s *Server) {
		s.announcers = append(s.announcers, b)
	}
}

// NewServer creates a new server over the given store.
func NewServer(st store.Store, opts ...ServerOption) (*Server, error) {
	if st == nil {
		return nil, errors.New("store cannot be nil")
	}

	s := &Server{
		store:           st,
		logger:          defaultLogger(),
		addr:            DefaultAddr,
		allowedOrigins:  []string{"*"},
		shutdownTimeout: DefaultShutdownTimeout,
		heartbeat:       api.DefaultHeartbeat,
		bufferSize:      hub.DefaultBufferSize,
		shutdown:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.hub = hub.New(hub.Config{
		BufferSize: s.bufferSize,
		Logger:     s.logger,
	})

	var b broker.Broker = s.hub
	if len(s.announcers) > 0 {
		b = broker.Multi(append([]broker.Broker{s.hub}, s.announcers...)...)
	}

	coordinatorOpts := []CoordinatorOption{WithCoordinatorLogger(s.logger)}
	if s.strictNotFound {
		coordinatorOpts = append(coordinatorOpts, WithStrictNotFound())
	}
	s.coordinator = NewCoordinator(st, b, coordinatorOpts...)

	apiServer, err := api.NewServer(api.Config{
		Addr:           s.addr,
		Tasks:          s.coordinator,
		Observers:      s.hub,
		Logger:         s.logger,
		AllowedOrigins: s.allowedOrigins,
		Heartbeat:      s.heartbeat,
	})
	if err != nil {
		return nil, err
	}
	s.api = apiServer

	return s, nil
}

// Handler returns the HTTP handler, for embedding the server in another mux or in tests.
func (s *Server) Handler() http.Handler {
	return s.api.Handler()
}

// Coordinator returns the coordinator used by the HTTP API.
func (s *Server) Coordinator() *Coordinator {
	return s.coordinator
}

// Observers returns the number of connected observers.
func (s *Server) Observers() int {
	return s.hub.Count()
}

// Start serves HTTP.
// This method blocks until Shutdown is called, a termination signal is
// received, or the listener fails. A stopped server cannot be started again.
// The store is owned by the caller and is not closed.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"addr":            s.addr,
		"allowed_origins": s.allowedOrigins,
	}).Info("starting tasksync server")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.api.Start()
	}()

	var serveErr error
	select {
	case sig := <-sigCh:
		s.logger.WithField("signal", sig).Info("received signal, shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("http server error")
			serveErr = err
		}
	case <-s.shutdown:
		s.logger.Info("shutdown requested")
	}

	// Event streams only end when their observer is released.
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.api.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("shutdown timeout exceeded, forcing exit")
	} else {
		s.logger.Info("graceful shutdown complete")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return serveErr
}

// Shutdown gracefully stops the server. Calling it before Start makes
// Start return as soon as it is called.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}
