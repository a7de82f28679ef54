// Package server implements the RPC server engine (spec §4.6): the
// dequeue loop, middleware onion, action dispatch, harakiri watchdog,
// forking/respawn, and graceful shutdown.
package server

import (
	"errors"
	"sync"
	"time"

	"github.com/dermesser/brokerpc"
	"github.com/dermesser/brokerpc/internal/rpclog"
	"github.com/dermesser/brokerpc/middleware"
	"github.com/dermesser/brokerpc/server/metrics"
	"github.com/dermesser/brokerpc/transport"
)

// JobMiddleware wraps process_job as a whole.
type JobMiddleware = middleware.JobFunc[brokerpc.JobRequest, brokerpc.JobResponse]

// ActionMiddleware wraps a single action Handler invocation.
type ActionMiddleware = middleware.ActionFunc[ActionRequest, map[string]interface{}]

// Hooks are the lifecycle callbacks a service may supply. Every hook is
// optional; a nil hook is a no-op.
type Hooks struct {
	Setup                    func() error
	Teardown                 func()
	PerformIdleActions       func()
	PerformPreRequestActions func(jr *brokerpc.JobRequest)
	PerformPostRequestActions func(jr *brokerpc.JobRequest, resp *brokerpc.JobResponse)
}

// Config is the immutable configuration shared by every worker of one
// service.
type Config struct {
	ServiceName string

	ServerFactory transport.ServerFactory
	ClientFactory transport.ClientFactory // used to build the nested client handed to handlers

	ReceiveTimeout time.Duration
	IdleInterval   time.Duration

	HarakiriTimeout  time.Duration // 0 disables
	ShutdownGrace    time.Duration
	HeartbeatPath    string // if set, a file is written per spec §4.6 step 2
	ContinueOnError  bool   // default for Control.ContinueOnError when unset

	// MaxTracebackLength bounds the panic traceback attached to a
	// SERVER_ERROR action failure.
	MaxTracebackLength int

	JobMiddleware    []JobMiddleware
	ActionMiddleware []ActionMiddleware

	JobValidator      JobValidator
	ResponseValidator ResponseValidator

	Metrics metrics.Recorder
	Logger  *rpclog.Logger
	Hooks   Hooks
}

// Server holds one service's action registry, shared by all of its
// worker processes/goroutines.
type Server struct {
	cfg Config

	mu      sync.RWMutex
	actions map[string]Handler
}

// New builds a Server and registers the default introspect/status
// actions if the caller hasn't already registered actions by those
// names (spec §4.6).
func New(cfg Config) *Server {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 5 * time.Second
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoOp{}
	}
	if cfg.MaxTracebackLength <= 0 {
		cfg.MaxTracebackLength = 4096
	}
	s := &Server{cfg: cfg, actions: map[string]Handler{}}
	registerDefaultActions(s)
	return s
}

// RegisterHandler adds handler under name. It is an error to register an
// already-registered name; unregister first to replace one.
func (s *Server) RegisterHandler(name string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[name]; ok {
		return errors.New("server: action already registered: " + name)
	}
	s.actions[name] = handler
	return nil
}

// UnregisterHandler removes an action registration.
func (s *Server) UnregisterHandler(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[name]; !ok {
		return errors.New("server: no such action: " + name)
	}
	delete(s.actions, name)
	return nil
}

func (s *Server) findHandler(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.actions[name]
	return h, ok
}

// ActionNames returns the currently registered action names, for the
// introspect/status default actions and any external introspection
// collaborator.
func (s *Server) ActionNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.actions))
	for name := range s.actions {
		out = append(out, name)
	}
	return out
}
