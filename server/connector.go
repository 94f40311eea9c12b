// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/z5labs/harbor/ajp"
	"github.com/z5labs/harbor/connector"
	"github.com/z5labs/harbor/pkg/slogfield"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Extra settings consumed by the listeners.
const (
	ExtraReadHeaderTimeout = "readHeaderTimeout"
	ExtraKeepAliveTimeout  = "keepAliveTimeout"
	ExtraMaxHeaderSize     = "maxHttpHeaderSize"
	ExtraPacketSize        = "packetSize"
	ExtraSecret            = "secret"
)

type listenerServer interface {
	Serve(net.Listener) error
	Shutdown(context.Context) error
	Close() error
}

// Connector is the runtime of one connector spec: a listener, the
// handler chain in front of the hosted application and the protocol
// server accepting on it.
type Connector struct {
	spec   connector.Spec
	log    *slog.Logger
	listen func(network, addr string) (net.Listener, error)
	srv    listenerServer

	mu    sync.Mutex
	ln    net.Listener
	certs *certSource

	stopOnce sync.Once
	stopErr  error
}

func newConnector(spec connector.Spec, base http.Handler, m *metrics, listen func(string, string) (net.Listener, error), log *slog.Logger) *Connector {
	c := &Connector{
		spec:   spec,
		log:    log,
		listen: listen,
	}
	h := c.handler(base, m)

	switch spec.Protocol {
	case connector.BinaryProxy:
		c.srv = c.ajpServer(h)
	default:
		c.srv = c.httpServer(h, m)
	}
	c.warnUnsupportedExtras()
	return c
}

func (c *Connector) handler(base http.Handler, m *metrics) http.Handler {
	name := c.spec.Name()

	h := base
	if c.spec.Compression.Enabled {
		if c.spec.Protocol.SupportsCompression() {
			h = compress(c.log, name, c.spec.Compression.MimeTypes, h)
		} else {
			c.log.Warn("connector does not support compression", slogfield.Connector(name))
		}
	}
	h = withInfo(c.spec.Info(), h)
	h = limitWorkers(c.spec.MaxThreads, h)
	h = otelhttp.NewHandler(h, name)
	if m != nil {
		h = m.instrument(name, h)
	}
	return h
}

func (c *Connector) httpServer(h http.Handler, m *metrics) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: c.spec.ConnectionTimeout,
		ErrorLog:          slog.NewLogLogger(c.log.Handler(), slog.LevelWarn),
	}
	if d, ok := c.extraMillis(ExtraReadHeaderTimeout); ok {
		srv.ReadHeaderTimeout = d
	}
	if d, ok := c.extraMillis(ExtraKeepAliveTimeout); ok {
		srv.IdleTimeout = d
	}
	if n, ok := c.extraInt(ExtraMaxHeaderSize); ok {
		srv.MaxHeaderBytes = n
	}
	if m != nil {
		srv.ConnState = m.connState(c.spec.Name())
	}
	return srv
}

func (c *Connector) ajpServer(h http.Handler) *ajp.Server {
	srv := &ajp.Server{
		Handler:     h,
		IdleTimeout: c.spec.ConnectionTimeout,
		Secret:      c.spec.Extra[ExtraSecret],
		Log:         c.log.With(slogfield.Connector(c.spec.Name())),
	}
	if n, ok := c.extraInt(ExtraPacketSize); ok {
		srv.PacketSize = n
	}
	return srv
}

func (c *Connector) extraInt(key string) (int, bool) {
	v, ok := c.spec.Extra[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		c.log.Warn(
			"ignoring invalid connector property",
			slogfield.Connector(c.spec.Name()),
			slogfield.String("property", key),
			slogfield.String("value", v),
		)
		return 0, false
	}
	return n, true
}

func (c *Connector) extraMillis(key string) (time.Duration, bool) {
	n, ok := c.extraInt(key)
	return time.Duration(n) * time.Millisecond, ok
}

var supportedExtras = map[connector.Protocol]map[string]bool{
	connector.PrimaryHTTP: {
		connector.ExtraBindOnInit: true,
		ExtraReadHeaderTimeout:    true,
		ExtraKeepAliveTimeout:     true,
		ExtraMaxHeaderSize:        true,
	},
	connector.BinaryProxy: {
		connector.ExtraBindOnInit: true,
		ExtraPacketSize:           true,
		ExtraSecret:               true,
	},
}

func (c *Connector) warnUnsupportedExtras() {
	keys := make([]string, 0, len(c.spec.Extra))
	for k := range c.spec.Extra {
		if !supportedExtras[c.spec.Protocol][k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.log.Warn(
			"unsupported connector property",
			slogfield.Connector(c.spec.Name()),
			slogfield.String("property", k),
		)
	}
}

// Spec returns the spec the connector was built from.
func (c *Connector) Spec() connector.Spec {
	return c.spec
}

// Name identifies the connector, e.g. "http-8080".
func (c *Connector) Name() string {
	return c.spec.Name()
}

// Addr returns the bound address, or nil before binding.
func (c *Connector) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Init binds the socket now if the spec asks for bind on init.
func (c *Connector) Init(ctx context.Context) error {
	if !c.spec.BindOnInit() {
		return nil
	}
	return c.Bind(ctx)
}

// Bind claims the connector's address. It is a no-op once bound.
func (c *Connector) Bind(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln != nil {
		return nil
	}

	var cfg *tls.Config
	if c.spec.TLS.Enabled {
		if c.spec.Protocol.SupportsTLS() {
			var err error
			cfg, c.certs, err = tlsConfig(c.log, c.spec)
			if err != nil {
				return err
			}
		} else {
			c.log.WarnContext(ctx, "connector does not support tls", slogfield.Connector(c.spec.Name()))
		}
	}

	ln, err := c.listen("tcp", c.spec.Addr())
	if err != nil {
		c.certs.close()
		c.certs = nil
		return BindError{Connector: c.spec.Name(), Addr: c.spec.Addr(), Cause: err}
	}
	if cfg != nil {
		ln = tls.NewListener(ln, cfg)
	}
	c.ln = ln

	c.log.InfoContext(
		ctx,
		"bound connector",
		slogfield.Connector(c.spec.Name()),
		slogfield.String("addr", ln.Addr().String()),
		slogfield.String("protocol", c.spec.Protocol.String()),
		slogfield.Bool("secure", c.spec.Secure),
	)
	return nil
}

// Serve binds if needed and serves until the connector is stopped. A
// stopped connector returns nil.
func (c *Connector) Serve(ctx context.Context) error {
	if err := c.Bind(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()

	c.log.InfoContext(ctx, "started connector", slogfield.Connector(c.spec.Name()))
	err := c.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, ajp.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the connector down, forcing connections closed
// once ctx is done. Only the first call has any effect; later calls
// return the same result.
func (c *Connector) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.stopErr = c.stop(ctx)
	})
	return c.stopErr
}

func (c *Connector) stop(ctx context.Context) error {
	name := c.spec.Name()
	c.log.InfoContext(ctx, "stopping connector", slogfield.Connector(name))

	var errs []error
	err := c.srv.Shutdown(ctx)
	if err != nil {
		errs = append(errs, err)
		if cerr := c.srv.Close(); cerr != nil {
			errs = append(errs, cerr)
		}
	}

	c.mu.Lock()
	if c.ln != nil {
		if err := c.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := c.certs.close(); err != nil {
		errs = append(errs, err)
	}
	c.mu.Unlock()

	c.log.InfoContext(ctx, "stopped connector", slogfield.Connector(name))
	return errors.Join(errs...)
}
