// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package bootstrap assembles the harbor server from a [Config]: the
// primary HTTP connector, the AJP connector and the hello application,
// supervised until termination.
package bootstrap

import (
	"context"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/z5labs/harbor"
	"github.com/z5labs/harbor/app"
	"github.com/z5labs/harbor/appbuilder"
	"github.com/z5labs/harbor/connector"
	"github.com/z5labs/harbor/internal/hello"
	"github.com/z5labs/harbor/lifecycle"
	"github.com/z5labs/harbor/pkg/health"
	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
	"github.com/z5labs/harbor/server"
	"github.com/z5labs/harbor/webapp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Values which are not configurable.
const (
	AJPPort        = connector.DefaultAJPPort
	MountPath      = "/"
	CodeRoot       = "target/classes"
	StaticRoot     = "src/main/webapp/"
	SessionTimeout = 30 * time.Minute

	HTTPPropertyPrefix = "http.prop."
	AJPPropertyPrefix  = "ajp.prop."
)

// Option overrides how [Build] assembles the server.
type Option func(*options)

type options struct {
	log        *slog.Logger
	listen     func(network, addr string) (net.Listener, error)
	codeRoot   string
	staticRoot string
	deployer   webapp.Deployer
}

// Logger replaces the logger built from the log.* config.
func Logger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Listen replaces [net.Listen] for every connector.
func Listen(f func(network, addr string) (net.Listener, error)) Option {
	return func(o *options) {
		o.listen = f
	}
}

// Roots replaces [CodeRoot] and [StaticRoot].
func Roots(code, static string) Option {
	return func(o *options) {
		o.codeRoot = code
		o.staticRoot = static
	}
}

// Deployer replaces the hello application.
func Deployer(d webapp.Deployer) Option {
	return func(o *options) {
		o.deployer = d
	}
}

// Harbor is an assembled server, ready to run.
type Harbor struct {
	log *slog.Logger
	srv *server.Server

	live  health.Binary
	ready health.Binary
}

// Builder returns the [harbor.AppBuilder] used by the harbor command.
// It installs the tracer provider before building and the built app
// stops gracefully on SIGINT or SIGTERM.
func Builder(opts ...Option) harbor.AppBuilder[Config] {
	builder := harbor.AppBuilderFunc[Config](func(ctx context.Context, cfg Config) (harbor.App, error) {
		h, err := Build(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return app.Recover(app.WithSignalNotifications(h, os.Interrupt, syscall.SIGTERM)), nil
	})
	return appbuilder.Recover(appbuilder.OTel[Config](builder))
}

// Build turns cfg into a server with both connectors and the hosted
// application registered. Nothing is bound until [Harbor.Run].
func Build(ctx context.Context, cfg Config, opts ...Option) (*Harbor, error) {
	o := options{
		listen:     net.Listen,
		codeRoot:   CodeRoot,
		staticRoot: StaticRoot,
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.log
	if log == nil {
		var err error
		log, err = newLogger(cfg)
		if err != nil {
			return nil, err
		}
	}

	h := &Harbor{log: log}
	h.live.Set(true)

	props := cfg.properties()
	httpSpec, err := primaryConnector(log, cfg, props)
	if err != nil {
		return nil, err
	}
	ajpSpec, err := ajpConnector(log, cfg, props)
	if err != nil {
		return nil, err
	}

	deployer := o.deployer
	if deployer == nil {
		deployer = hello.Deployer(hello.Logger(log))
	}
	webApp, err := webapp.New(
		MountPath,
		o.codeRoot,
		o.staticRoot,
		deployer,
		webapp.SessionTimeout(SessionTimeout),
		webapp.FatalOnFailure(true),
		webapp.Logger(log),
	)
	if err != nil {
		return nil, err
	}

	srvOpts := []server.Option{
		server.Logger(log),
		server.Listen(o.listen),
	}
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srvOpts = append(srvOpts, server.WithMetrics(reg))
	}
	if cfg.HealthEnabled {
		started := health.MetricFunc(func(context.Context) bool {
			return webApp.State() == webapp.StateStarted
		})
		srvOpts = append(
			srvOpts,
			server.Handle("/health/liveness", health.Handler(&h.live)),
			server.Handle("/health/readiness", health.Handler(health.And(&h.ready, started))),
		)
	}

	h.srv = server.New(srvOpts...)
	h.srv.AddConnector(httpSpec)
	h.srv.AddConnector(ajpSpec)
	if err := h.srv.AddApplication(webApp); err != nil {
		return nil, err
	}
	return h, nil
}

func newLogger(cfg Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(logging.NewHandler(os.Stderr, logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
	})), nil
}

func primaryConnector(log *slog.Logger, cfg Config, props map[string]string) (connector.Spec, error) {
	port, err := connector.ResolvePort("PORT", cfg.Port, connector.DefaultHTTPPort)
	if err != nil {
		return connector.Spec{}, err
	}
	spec, err := connector.Build(
		connector.PrimaryHTTP,
		port,
		connector.MaxThreads(cfg.HTTPMaxThreads),
		connector.Logger(log),
	)
	if err != nil {
		return connector.Spec{}, err
	}

	spec = connector.InjectProperties(log, spec, HTTPPropertyPrefix, props)

	if cfg.HTTPEnableSSL {
		spec = connector.EnableTLS(log, spec, true, cfg.TLSMaterial)
	}
	if cfg.HTTPProxyURL != "" {
		spec, err = connector.SetReverseProxy(spec, cfg.HTTPProxyURL)
		if err != nil {
			return connector.Spec{}, err
		}
	}
	if cfg.HTTPCompression {
		spec = connector.EnableCompression(spec, connector.ParseMimeTypes(cfg.HTTPCompressibleTypes))
	}
	return spec, nil
}

func ajpConnector(log *slog.Logger, cfg Config, props map[string]string) (connector.Spec, error) {
	spec, err := connector.Build(
		connector.BinaryProxy,
		AJPPort,
		connector.MaxThreads(cfg.AJPMaxThreads),
		connector.Logger(log),
	)
	if err != nil {
		return connector.Spec{}, err
	}

	spec = connector.InjectProperties(log, spec, AJPPropertyPrefix, props)

	if cfg.AJPProxyURL != "" {
		spec, err = connector.SetReverseProxy(spec, cfg.AJPProxyURL)
		if err != nil {
			return connector.Spec{}, err
		}
	}
	return spec, nil
}

// Server returns the assembled server.
func (h *Harbor) Server() *server.Server {
	return h.srv
}

// Run supervises the server until ctx is cancelled or the hosted
// application fails.
func (h *Harbor) Run(ctx context.Context) error {
	sup, err := lifecycle.ForServer(
		ctx,
		h.srv,
		lifecycle.Logger(h.log),
	)
	if err != nil {
		return err
	}

	sup.OnTransition(func(from, to lifecycle.State) {
		h.ready.Set(to == lifecycle.StateRunning)
		switch to {
		case lifecycle.StateStoppingOnFailure, lifecycle.StateFailed:
			h.live.Set(false)
		}
	})

	if spec, ok := h.srv.Primary(); ok {
		h.log.InfoContext(ctx, "starting harbor", slogfield.Connector(spec.Name()))
	}
	return sup.Run(ctx)
}
