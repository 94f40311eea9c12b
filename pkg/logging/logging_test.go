// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewHandler(t *testing.T) {
	t.Run("will mask attribute values", func(t *testing.T) {
		t.Run("if the key is one of the default masked keys", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(&buf, Options{}))

			log.Info("loaded key store", slog.String("keyStorePassword", "changeit"))

			var record map[string]any
			err := json.Unmarshal(buf.Bytes(), &record)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, Mask, record["keyStorePassword"]) {
				return
			}
		})

		t.Run("if the key is registered through Options", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(&buf, Options{MaskedKeys: []string{"token"}}))

			log.Info("hello", slog.String("token", "abc"), slog.String("user", "bob"))

			var record map[string]any
			err := json.Unmarshal(buf.Bytes(), &record)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, Mask, record["token"]) {
				return
			}
			if !assert.Equal(t, "bob", record["user"]) {
				return
			}
		})
	})

	t.Run("will add trace id and span id", func(t *testing.T) {
		t.Run("if the span context is valid", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(&buf, Options{}))

			exporter, err := stdouttrace.New(stdouttrace.WithWriter(io.Discard))
			if !assert.Nil(t, err) {
				return
			}
			tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
			defer tp.Shutdown(context.Background())

			ctx, span := tp.Tracer("logging_test").Start(context.Background(), "test")
			log.InfoContext(ctx, "traced")
			span.End()

			var record struct {
				OTel struct {
					TraceID string `json:"trace_id"`
					SpanID  string `json:"span_id"`
				} `json:"otel"`
			}
			err = json.Unmarshal(buf.Bytes(), &record)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, span.SpanContext().TraceID().String(), record.OTel.TraceID) {
				return
			}
			if !assert.Equal(t, span.SpanContext().SpanID().String(), record.OTel.SpanID) {
				return
			}
		})
	})
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		Name  string
		In    string
		Level slog.Level
	}{
		{Name: "empty", In: "", Level: slog.LevelInfo},
		{Name: "debug", In: "DEBUG", Level: slog.LevelDebug},
		{Name: "warning", In: "warning", Level: slog.LevelWarn},
		{Name: "error", In: " error ", Level: slog.LevelError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			lvl, err := ParseLevel(testCase.In)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, testCase.Level, lvl) {
				return
			}
		})
	}

	t.Run("will return an error if the level is unknown", func(t *testing.T) {
		_, err := ParseLevel("loud")
		if !assert.Error(t, err) {
			return
		}
	})
}
