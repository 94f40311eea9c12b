// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package appbuilder

import (
	"context"
	"errors"

	"github.com/z5labs/harbor"
	"github.com/z5labs/harbor/app"
	"github.com/z5labs/harbor/lifecycle"

	"go.opentelemetry.io/otel"
)

// OTelInitializer represents anything which can initialize the OTel SDK.
type OTelInitializer interface {
	InitializeOTel(context.Context) error
}

// OTel is a [harbor.AppBuilder] middleware which initializes the OTel SDK.
// It also ensures that the tracer provider is shutdown once the built
// [harbor.App] has stopped, as a post-stop hook when ctx carries a
// [lifecycle.Context].
func OTel[T OTelInitializer](builder harbor.AppBuilder[T]) harbor.AppBuilder[T] {
	return harbor.AppBuilderFunc[T](func(ctx context.Context, cfg T) (harbor.App, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		err := cfg.InitializeOTel(ctx)
		if err != nil {
			return nil, err
		}

		onPostStop := tryShutdown(otel.GetTracerProvider())

		base, err := builder.Build(ctx, cfg)
		if err != nil {
			shutdownErr := onPostStop.Run(ctx)
			if shutdownErr == nil {
				return nil, err
			}
			return nil, errors.Join(err, shutdownErr)
		}

		lc, ok := lifecycle.FromContext(ctx)
		if !ok {
			return app.PostRun(base, onPostStop), nil
		}

		lc.OnPostStop(onPostStop)
		return base, nil
	})
}

type shutdowner interface {
	Shutdown(context.Context) error
}

func tryShutdown(v any) lifecycle.HookFunc {
	return func(ctx context.Context) error {
		if v == nil {
			return nil
		}

		s, ok := v.(shutdowner)
		if !ok {
			return nil
		}
		return s.Shutdown(ctx)
	}
}
