// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package appbuilder

import (
	"context"
	"errors"
	"testing"

	"github.com/z5labs/harbor"
	"github.com/z5labs/harbor/lifecycle"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type otelInitFunc func(context.Context) error

func (f otelInitFunc) InitializeOTel(ctx context.Context) error {
	return f(ctx)
}

type appFunc func(context.Context) error

func (f appFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type shutdownProvider struct {
	noop.TracerProvider

	shutdowns int
	err       error
}

func (p *shutdownProvider) Shutdown(context.Context) error {
	p.shutdowns++
	return p.err
}

func installProvider(t *testing.T, tp trace.TracerProvider) otelInitFunc {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
	})

	return func(context.Context) error {
		otel.SetTracerProvider(tp)
		return nil
	}
}

func TestOTel(t *testing.T) {
	t.Run("will not build", func(t *testing.T) {
		t.Run("if the context is already cancelled", func(t *testing.T) {
			var built bool
			builder := OTel(harbor.AppBuilderFunc[otelInitFunc](func(ctx context.Context, cfg otelInitFunc) (harbor.App, error) {
				built = true
				return nil, nil
			}))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := builder.Build(ctx, otelInitFunc(func(context.Context) error { return nil }))
			if !assert.ErrorIs(t, err, context.Canceled) {
				return
			}
			if !assert.False(t, built) {
				return
			}
		})

		t.Run("if the otel sdk fails to initialize", func(t *testing.T) {
			initErr := errors.New("unsupported exporter")
			var built bool
			builder := OTel(harbor.AppBuilderFunc[otelInitFunc](func(ctx context.Context, cfg otelInitFunc) (harbor.App, error) {
				built = true
				return nil, nil
			}))

			_, err := builder.Build(context.Background(), otelInitFunc(func(context.Context) error { return initErr }))
			if !assert.ErrorIs(t, err, initErr) {
				return
			}
			if !assert.False(t, built) {
				return
			}
		})
	})

	t.Run("will shutdown the tracer provider", func(t *testing.T) {
		t.Run("if the underlying builder fails", func(t *testing.T) {
			tp := &shutdownProvider{err: errors.New("shutdown failed")}
			buildErr := errors.New("failed to build")
			builder := OTel(harbor.AppBuilderFunc[otelInitFunc](func(ctx context.Context, cfg otelInitFunc) (harbor.App, error) {
				return nil, buildErr
			}))

			_, err := builder.Build(context.Background(), installProvider(t, tp))
			if !assert.ErrorIs(t, err, buildErr) {
				return
			}
			if !assert.ErrorIs(t, err, tp.err) {
				return
			}
			if !assert.Equal(t, 1, tp.shutdowns) {
				return
			}
		})

		t.Run("if the app stops and there is no lifecycle context", func(t *testing.T) {
			tp := &shutdownProvider{}
			builder := OTel(harbor.AppBuilderFunc[otelInitFunc](func(ctx context.Context, cfg otelInitFunc) (harbor.App, error) {
				return appFunc(func(context.Context) error { return nil }), nil
			}))

			app, err := builder.Build(context.Background(), installProvider(t, tp))
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, 0, tp.shutdowns) {
				return
			}

			err = app.Run(context.Background())
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, 1, tp.shutdowns) {
				return
			}
		})

		t.Run("if the lifecycle context runs its post stop hooks", func(t *testing.T) {
			tp := &shutdownProvider{}
			builder := OTel(harbor.AppBuilderFunc[otelInitFunc](func(ctx context.Context, cfg otelInitFunc) (harbor.App, error) {
				return appFunc(func(context.Context) error { return nil }), nil
			}))

			lc := &lifecycle.Context{}
			ctx := lifecycle.NewContext(context.Background(), lc)

			app, err := builder.Build(ctx, installProvider(t, tp))
			if !assert.Nil(t, err) {
				return
			}

			err = app.Run(ctx)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, 0, tp.shutdowns) {
				return
			}

			err = lc.PostStop().Run(ctx)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, 1, tp.shutdowns) {
				return
			}
		})
	})
}
