// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelconfig

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrMissingOTLPTarget is returned when the otlp exporter is selected
// without a collector address.
var ErrMissingOTLPTarget = errors.New("otlp exporter requires otel.otlp.target")

// OTLPConfig exports spans over gRPC to an OpenTelemetry collector.
type OTLPConfig struct {
	ServiceName string

	// gRPC target of the collector, e.g. "otel-collector:4317".
	Target string
}

// Init implements the [Initializer] interface. The collector connection
// is established lazily so the server starts even if the collector is
// not up yet.
func (cfg OTLPConfig) Init(ctx context.Context) (trace.TracerProvider, error) {
	if cfg.Target == "" {
		return nil, ErrMissingOTLPTarget
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

	conn, err := grpc.DialContext(
		ctx,
		cfg.Target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, errors.Join(err, conn.Close())
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	return &otlpTracerProvider{TracerProvider: tp, conn: conn}, nil
}

// otlpTracerProvider closes the collector connection the exporter
// does not own.
type otlpTracerProvider struct {
	*sdktrace.TracerProvider

	conn *grpc.ClientConn
}

func (p *otlpTracerProvider) Shutdown(ctx context.Context) error {
	return errors.Join(p.TracerProvider.Shutdown(ctx), p.conn.Close())
}
