// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package logging builds the slog.Handler used by harbor processes.
//
// Records are written as JSON (or text), attributes whose key names a
// secret are masked and, when the record context carries a valid
// OpenTelemetry span, the trace and span ids are attached under an
// "otel" group.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Mask is written in place of any masked attribute value.
const Mask = "****"

// DefaultMaskedKeys are attribute keys which are always masked.
var DefaultMaskedKeys = []string{
	"password",
	"keyStorePassword",
	"trustStorePassword",
	"secret",
}

// Options configures [NewHandler].
type Options struct {
	Level      slog.Leveler
	Format     string
	AddSource  bool
	MaskedKeys []string
}

// NewHandler returns a handler writing to w.
func NewHandler(w io.Writer, opts Options) slog.Handler {
	masked := make(map[string]struct{}, len(DefaultMaskedKeys)+len(opts.MaskedKeys))
	for _, k := range DefaultMaskedKeys {
		masked[k] = struct{}{}
	}
	for _, k := range opts.MaskedKeys {
		masked[k] = struct{}{}
	}

	ho := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if _, ok := masked[a.Key]; ok {
				return slog.String(a.Key, Mask)
			}
			return a
		},
	}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		h = slog.NewTextHandler(w, ho)
	default:
		h = slog.NewJSONHandler(w, ho)
	}
	return traceHandler{slog: h}
}

// ParseLevel parses the usual level names, case-insensitively.
// An empty string is [slog.LevelInfo].
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %q", s)
}

// Discard returns a logger which drops everything. Packages fall back to
// it when no logger was configured.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// OrDiscard returns log unless it's nil.
func OrDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return Discard()
	}
	return log
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

type traceHandler struct {
	slog slog.Handler
}

func (h traceHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

func (h traceHandler) Handle(ctx context.Context, record slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return h.slog.Handle(ctx, record)
	}

	r := record.Clone()
	r.AddAttrs(
		slog.Group(
			"otel",
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		),
	)
	return h.slog.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{slog: h.slog.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{slog: h.slog.WithGroup(name)}
}
