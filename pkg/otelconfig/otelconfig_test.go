// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelconfig

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForExporter(t *testing.T) {
	t.Run("will return Noop", func(t *testing.T) {
		t.Run("if no exporter is configured", func(t *testing.T) {
			initer, err := ForExporter("", ServiceName("harbor"))
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, Noop, initer) {
				return
			}
		})
	})

	t.Run("will return an OTLPConfig", func(t *testing.T) {
		t.Run("if the otlp exporter has a target", func(t *testing.T) {
			initer, err := ForExporter("otlp", ServiceName("harbor"), OTLPTarget("otel-collector:4317"))
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, OTLPConfig{ServiceName: "harbor", Target: "otel-collector:4317"}, initer) {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the exporter is unknown", func(t *testing.T) {
			_, err := ForExporter("zipkin", ServiceName("harbor"))
			if !assert.Error(t, err) {
				return
			}
		})

		t.Run("if the otlp exporter has no target", func(t *testing.T) {
			_, err := ForExporter("otlp", ServiceName("harbor"))
			if !assert.ErrorIs(t, err, ErrMissingOTLPTarget) {
				return
			}
		})
	})
}

func TestLocalConfig_Init(t *testing.T) {
	t.Run("will export spans to the configured writer", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := context.Background()

		shutdown, err := Install(ctx, LocalConfig{ServiceName: "harbor", Out: &buf})
		if !assert.Nil(t, err) {
			return
		}

		tp, err := LocalConfig{ServiceName: "harbor", Out: &buf}.Init(ctx)
		if !assert.Nil(t, err) {
			return
		}
		_, span := tp.Tracer("otelconfig_test").Start(ctx, "span")
		span.End()

		s := tp.(interface {
			Shutdown(context.Context) error
		})
		if !assert.Nil(t, s.Shutdown(ctx)) {
			return
		}
		if !assert.Nil(t, shutdown(ctx)) {
			return
		}
		if !assert.Contains(t, buf.String(), "otelconfig_test") {
			return
		}
	})
}

func TestOTLPConfig_Init(t *testing.T) {
	t.Run("will not wait for the collector", func(t *testing.T) {
		t.Run("if the collector is not reachable yet", func(t *testing.T) {
			ctx := context.Background()

			tp, err := OTLPConfig{ServiceName: "harbor", Target: "127.0.0.1:1"}.Init(ctx)
			if !assert.Nil(t, err) {
				return
			}

			s, ok := tp.(interface {
				Shutdown(context.Context) error
			})
			if !assert.True(t, ok) {
				return
			}

			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if !assert.Nil(t, s.Shutdown(ctx)) {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the target is empty", func(t *testing.T) {
			_, err := OTLPConfig{ServiceName: "harbor"}.Init(context.Background())
			if !assert.ErrorIs(t, err, ErrMissingOTLPTarget) {
				return
			}
		})
	})
}
