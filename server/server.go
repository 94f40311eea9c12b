// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server assembles connector specs and the hosted application
// into runnable connectors.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sort"

	"github.com/z5labs/harbor/connector"
	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/webapp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrApplicationBound = errors.New("an application is already bound to the server")
	ErrNoConnectors     = errors.New("server has no connectors")
)

// BindError is returned when a connector cannot claim its address.
type BindError struct {
	Connector string
	Addr      string
	Cause     error
}

// Error implements the [builtin.error] interface.
func (e BindError) Error() string {
	return fmt.Sprintf("failed to bind connector %s on %s: %s", e.Connector, e.Addr, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e BindError) Unwrap() error {
	return e.Cause
}

// Option configures a [Server].
type Option func(*Server)

// Logger sets the logger used by the server and its connectors.
func Logger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics records connector metrics in reg and serves them at
// /metrics on the primary connector.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// Listen replaces [net.Listen] when connectors bind.
func Listen(f func(network, addr string) (net.Listener, error)) Option {
	return func(s *Server) {
		s.listen = f
	}
}

// Handle registers h for pattern on the primary connector only, ahead
// of the hosted application.
func Handle(pattern string, h http.Handler) Option {
	return func(s *Server) {
		s.routes[pattern] = h
	}
}

// Server holds the connectors and the hosted application. It is
// configured by a single goroutine and read-only once built.
type Server struct {
	log      *slog.Logger
	registry *prometheus.Registry
	routes   map[string]http.Handler
	listen   func(network, addr string) (net.Listener, error)

	connectors []connector.Spec
	primary    int
	app        *webapp.Application
}

// New returns a server with no connectors.
func New(opts ...Option) *Server {
	s := &Server{
		routes:  make(map[string]http.Handler),
		listen:  net.Listen,
		primary: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDiscard(s.log)
	return s
}

// AddConnector appends spec. The first connector ever added becomes the
// primary one.
func (s *Server) AddConnector(spec connector.Spec) {
	s.connectors = append(s.connectors, spec.Clone())
	if s.primary < 0 {
		s.primary = 0
	}
}

// AddApplication binds the single hosted application.
func (s *Server) AddApplication(app *webapp.Application) error {
	if s.app != nil {
		return ErrApplicationBound
	}
	s.app = app
	return nil
}

// Primary returns the primary connector spec.
func (s *Server) Primary() (connector.Spec, bool) {
	if s.primary < 0 {
		return connector.Spec{}, false
	}
	return s.connectors[s.primary], true
}

// Connectors returns every connector spec in registration order.
func (s *Server) Connectors() []connector.Spec {
	return slices.Clone(s.connectors)
}

// Application returns the hosted application, if bound.
func (s *Server) Application() *webapp.Application {
	return s.app
}

// Build validates every connector spec and returns one runtime per
// connector, primary first. Nothing is bound yet.
func (s *Server) Build(ctx context.Context) ([]*Connector, error) {
	if len(s.connectors) == 0 {
		return nil, ErrNoConnectors
	}

	var m *metrics
	if s.registry != nil {
		var err error
		m, err = newMetrics(s.registry)
		if err != nil {
			return nil, err
		}
	}

	conns := make([]*Connector, 0, len(s.connectors))
	for i, spec := range s.connectors {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		base := s.baseHandler(i == s.primary, m)
		conns = append(conns, newConnector(spec, base, m, s.listen, s.log))
	}
	return conns, nil
}

func (s *Server) baseHandler(primary bool, m *metrics) http.Handler {
	var app http.Handler = http.NotFoundHandler()
	if s.app != nil {
		app = s.app
	}
	if !primary || (len(s.routes) == 0 && m == nil) {
		return app
	}

	mux := http.NewServeMux()
	patterns := make([]string, 0, len(s.routes))
	for pattern := range s.routes {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		registerEndpoint(mux, pattern, s.routes[pattern])
	}
	if m != nil {
		registerEndpoint(mux, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		}))
	}
	mux.Handle("/", app)
	return mux
}

func registerEndpoint(mux *http.ServeMux, path string, h http.Handler) {
	mux.Handle(
		path,
		otelhttp.WithRouteTag(path, h),
	)
}
