// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app provides helpers for common harbor.App implementation patterns.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/z5labs/harbor"
	"github.com/z5labs/harbor/internal/try"
	"github.com/z5labs/harbor/lifecycle"
)

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Recover will wrap the given [harbor.App] with panic recovery.
// A recovered panic is returned as a [try.PanicError] joined with
// whatever error the app was returning.
func Recover(app harbor.App) harbor.App {
	return runFunc(func(ctx context.Context) (err error) {
		defer try.Recover(&err)

		return app.Run(ctx)
	})
}

// WithSignalNotifications wraps a given [harbor.App] in an implementation
// that cancels the [context.Context] that's passed to app.Run if an [os.Signal]
// is received by the running process. Cancellation is what triggers a
// graceful shutdown of the server.
func WithSignalNotifications(app harbor.App, signals ...os.Signal) harbor.App {
	return runFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// PostRun runs hook once app.Run has returned, whatever its outcome.
// The hook is given a context which is never cancelled.
func PostRun(app harbor.App, hook lifecycle.Hook) harbor.App {
	return runFunc(func(ctx context.Context) error {
		err := app.Run(ctx)
		hookErr := hook.Run(context.WithoutCancel(ctx))
		if hookErr == nil {
			return err
		}
		return errors.Join(err, hookErr)
	})
}
