// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelconfig initializes the OpenTelemetry tracer provider used
// to instrument connector traffic.
package otelconfig

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Initializer creates a trace.TracerProvider.
type Initializer interface {
	Init(context.Context) (trace.TracerProvider, error)
}

// Noop keeps whatever provider is globally registered, which is
// a no-op provider unless something else installed one.
var Noop Initializer = noopInitializer{}

type noopInitializer struct{}

func (noopInitializer) Init(context.Context) (trace.TracerProvider, error) {
	return otel.GetTracerProvider(), nil
}

// LocalConfig exports spans as pretty printed JSON.
type LocalConfig struct {
	ServiceName string
	Out         io.Writer
}

// Init implements the [Initializer] interface.
func (cfg LocalConfig) Init(ctx context.Context) (trace.TracerProvider, error) {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, nil
}

// Option configures the [Initializer] returned by [ForExporter].
type Option func(*exporterOptions)

type exporterOptions struct {
	serviceName string
	otlpTarget  string
}

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) Option {
	return func(o *exporterOptions) {
		o.serviceName = name
	}
}

// OTLPTarget sets the collector address used by the otlp exporter.
func OTLPTarget(target string) Option {
	return func(o *exporterOptions) {
		o.otlpTarget = target
	}
}

// ForExporter maps the otel.exporter config value onto an [Initializer].
func ForExporter(name string, opts ...Option) (Initializer, error) {
	var o exporterOptions
	for _, opt := range opts {
		opt(&o)
	}

	switch name {
	case "", "none":
		return Noop, nil
	case "stdout":
		return LocalConfig{ServiceName: o.serviceName}, nil
	case "otlp":
		if o.otlpTarget == "" {
			return nil, ErrMissingOTLPTarget
		}
		return OTLPConfig{ServiceName: o.serviceName, Target: o.otlpTarget}, nil
	}
	return nil, fmt.Errorf("unsupported otel exporter: %q", name)
}

// Install initializes the provider, registers it globally along with
// the W3C trace context propagators and returns a shutdown func.
func Install(ctx context.Context, initer Initializer) (func(context.Context) error, error) {
	tp, err := initer.Init(ctx)
	if err != nil {
		return nil, err
	}
	if tp != otel.GetTracerProvider() {
		otel.SetTracerProvider(tp)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	shutdown := func(ctx context.Context) error {
		s, ok := tp.(interface {
			Shutdown(context.Context) error
		})
		if !ok {
			return nil
		}
		return s.Shutdown(ctx)
	}
	return shutdown, nil
}
