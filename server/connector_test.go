// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/z5labs/harbor/connector"

	"github.com/stretchr/testify/assert"
)

func loopback(network, addr string) (net.Listener, error) {
	return net.Listen(network, "127.0.0.1:0")
}

func infoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := connector.InfoFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "%s %s %t %d %s", info.Connector, info.Scheme, info.Secure, info.ServerPort, r.URL.Path)
	})
}

func serve(t *testing.T, c *Connector) {
	t.Helper()

	served := make(chan error, 1)
	go func() {
		served <- c.Serve(context.Background())
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Stop(ctx)
		<-served
	})

	deadline := time.Now().Add(5 * time.Second)
	for c.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Addr() == nil {
		t.Fatal("connector did not bind")
	}
}

func TestConnector_Serve(t *testing.T) {
	t.Run("will report the proxied scheme and port", func(t *testing.T) {
		t.Run("if the spec has a reverse proxy", func(t *testing.T) {
			spec := mustSpec(t, connector.PrimaryHTTP, 8080)
			spec, err := connector.SetReverseProxy(spec, "https://example.com")
			if !assert.Nil(t, err) {
				return
			}

			c := newConnector(spec, infoHandler(), nil, loopback, slog.New(slog.NewTextHandler(io.Discard, nil)))
			serve(t, c)

			resp, err := http.Get("http://" + c.Addr().String() + "/hello")
			if !assert.Nil(t, err) {
				return
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "http-8080 https true 443 /hello", string(b)) {
				return
			}
		})
	})

	t.Run("will rewrite the request url and host", func(t *testing.T) {
		t.Run("if the spec has a reverse proxy with an explicit port", func(t *testing.T) {
			spec := mustSpec(t, connector.PrimaryHTTP, 8080)
			spec, err := connector.SetReverseProxy(spec, "https://example.com:8443")
			if !assert.Nil(t, err) {
				return
			}

			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "%s %s %t", r.URL.Scheme, r.Host, connector.IsSecure(r))
			})
			c := newConnector(spec, h, nil, loopback, slog.New(slog.NewTextHandler(io.Discard, nil)))
			serve(t, c)

			resp, err := http.Get("http://" + c.Addr().String() + "/")
			if !assert.Nil(t, err) {
				return
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "https 127.0.0.1:8443 true", string(b)) {
				return
			}
		})
	})

	t.Run("will return a BindError", func(t *testing.T) {
		t.Run("if the address is in use", func(t *testing.T) {
			inUse := func(network, addr string) (net.Listener, error) {
				return nil, &net.OpError{Op: "listen", Net: network, Err: syscall.EADDRINUSE}
			}
			c := newConnector(mustSpec(t, connector.PrimaryHTTP, 8080), infoHandler(), nil, inUse, slog.Default())

			err := c.Serve(context.Background())

			var berr BindError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
			if !assert.Equal(t, "http-8080", berr.Connector) {
				return
			}
			if !assert.ErrorIs(t, err, syscall.EADDRINUSE) {
				return
			}
		})
	})
}

func TestConnector_Init(t *testing.T) {
	t.Run("will bind immediately", func(t *testing.T) {
		t.Run("if bind on init is enabled", func(t *testing.T) {
			c := newConnector(mustSpec(t, connector.PrimaryHTTP, 8080), infoHandler(), nil, loopback, slog.Default())
			defer c.Stop(context.Background())

			err := c.Init(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			if !assert.NotNil(t, c.Addr()) {
				return
			}
		})
	})

	t.Run("will defer binding", func(t *testing.T) {
		t.Run("if bind on init is disabled", func(t *testing.T) {
			spec := mustSpec(t, connector.PrimaryHTTP, 8080, connector.BindOnInit(false))
			c := newConnector(spec, infoHandler(), nil, loopback, slog.Default())
			defer c.Stop(context.Background())

			err := c.Init(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Nil(t, c.Addr()) {
				return
			}
		})
	})
}

type countingServer struct {
	shutdowns atomic.Int32
}

func (s *countingServer) Serve(ln net.Listener) error { return http.ErrServerClosed }

func (s *countingServer) Shutdown(ctx context.Context) error {
	s.shutdowns.Add(1)
	time.Sleep(10 * time.Millisecond)
	return nil
}

func (s *countingServer) Close() error { return nil }

func TestConnector_Stop(t *testing.T) {
	t.Run("will shut down exactly once", func(t *testing.T) {
		t.Run("if stop is called concurrently", func(t *testing.T) {
			c := newConnector(mustSpec(t, connector.PrimaryHTTP, 8080), infoHandler(), nil, loopback, slog.Default())
			srv := &countingServer{}
			c.srv = srv

			var wg sync.WaitGroup
			errs := make([]error, 8)
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs[i] = c.Stop(context.Background())
				}()
			}
			wg.Wait()

			if !assert.Equal(t, int32(1), srv.shutdowns.Load()) {
				return
			}
			for _, err := range errs {
				if !assert.Nil(t, err) {
					return
				}
			}
		})
	})

	t.Run("will release the port", func(t *testing.T) {
		t.Run("if the connector was bound but never served", func(t *testing.T) {
			c := newConnector(mustSpec(t, connector.PrimaryHTTP, 8080), infoHandler(), nil, loopback, slog.Default())

			err := c.Bind(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			addr := c.Addr().String()

			err = c.Stop(context.Background())
			if !assert.Nil(t, err) {
				return
			}

			ln, err := net.Listen("tcp", addr)
			if !assert.Nil(t, err) {
				return
			}
			ln.Close()
		})
	})
}

func TestConnector_extras(t *testing.T) {
	t.Run("will apply supported extras", func(t *testing.T) {
		t.Run("if the connector speaks http", func(t *testing.T) {
			spec := connector.InjectProperties(nil, mustSpec(t, connector.PrimaryHTTP, 8080), "p.", map[string]string{
				"p.readHeaderTimeout": "1500",
				"p.keepAliveTimeout":  "60000",
				"p.maxHttpHeaderSize": "16384",
			})
			c := newConnector(spec, infoHandler(), nil, loopback, slog.Default())

			srv, ok := c.srv.(*http.Server)
			if !assert.True(t, ok) {
				return
			}
			if !assert.Equal(t, 1500*time.Millisecond, srv.ReadHeaderTimeout) {
				return
			}
			if !assert.Equal(t, time.Minute, srv.IdleTimeout) {
				return
			}
			if !assert.Equal(t, 16384, srv.MaxHeaderBytes) {
				return
			}
		})
	})

	t.Run("will log a warning", func(t *testing.T) {
		t.Run("if an extra is not supported by the protocol", func(t *testing.T) {
			spec := connector.InjectProperties(nil, mustSpec(t, connector.BinaryProxy, 8009), "p.", map[string]string{
				"p.keepAliveTimeout": "60000",
				"p.secret":           "s3cr3t",
			})

			var buf bytes.Buffer
			newConnector(spec, infoHandler(), nil, loopback, slog.New(slog.NewTextHandler(&buf, nil)))

			if !assert.Contains(t, buf.String(), "unsupported connector property") {
				return
			}
			if !assert.Contains(t, buf.String(), "property=keepAliveTimeout") {
				return
			}
			if !assert.NotContains(t, buf.String(), "property=secret") {
				return
			}
		})
	})

	t.Run("will use the connection timeout", func(t *testing.T) {
		t.Run("if no read header timeout extra is set", func(t *testing.T) {
			c := newConnector(mustSpec(t, connector.PrimaryHTTP, 8080), infoHandler(), nil, loopback, slog.Default())

			srv := c.srv.(*http.Server)
			if !assert.Equal(t, connector.DefaultConnectionTimeout, srv.ReadHeaderTimeout) {
				return
			}
		})
	})
}

func TestBindError(t *testing.T) {
	t.Run("will unwrap to its cause", func(t *testing.T) {
		t.Run("always", func(t *testing.T) {
			cause := errors.New("permission denied")
			err := BindError{Connector: "http-80", Addr: ":80", Cause: cause}
			if !assert.ErrorIs(t, err, cause) {
				return
			}
			if !assert.Contains(t, err.Error(), "http-80") {
				return
			}
		})
	})
}
