// Package api exposes the HTTP surface of CarePulse.
//
// It provides endpoints for bulk and scheduled communication dispatch,
// scheduled-communication management, and delivery analytics. Handlers
// orchestrate the dispatch, scheduler, and analytics modules; they hold no
// domain logic of their own.
package api

import (
	"log/slog"
	"net/http"

	"github.com/carepulse/carepulse/internal/analytics"
	"github.com/carepulse/carepulse/internal/dispatch"
	"github.com/carepulse/carepulse/internal/messaging"
	"github.com/carepulse/carepulse/internal/scheduler"
	"github.com/carepulse/carepulse/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server wires HTTP handlers to the domain modules.
type Server struct {
	addr     string
	st       store.Store
	msg      messaging.Service
	resolver *dispatch.Resolver
	engine   *dispatch.Engine
	sched    *scheduler.Scheduler
	agg      *analytics.Aggregator
}

// NewServer creates an API server over the given modules.
func NewServer(st store.Store, msg messaging.Service, resolver *dispatch.Resolver, engine *dispatch.Engine, sched *scheduler.Scheduler, agg *analytics.Aggregator, opts ...Option) *Server {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	return &Server{
		addr:     o.Addr,
		st:       st,
		msg:      msg,
		resolver: resolver,
		engine:   engine,
		sched:    sched,
		agg:      agg,
	}
}

// Handler returns the routed HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/communications/send", s.sendCommunicationsHandler)
	mux.HandleFunc("/scheduled", s.scheduledHandler)
	mux.HandleFunc("/scheduled/", s.scheduledHandler)
	mux.HandleFunc("/analytics", s.analyticsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	slog.Info("Server.Run: CarePulse API listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}
