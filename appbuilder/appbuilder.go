// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package appbuilder wraps the [harbor.AppBuilder] that assembles the
// server with panic recovery and OTel SDK setup.
package appbuilder

import (
	"context"

	"github.com/z5labs/harbor"
	"github.com/z5labs/harbor/internal/try"
)

// Recover converts a panic while assembling the server, for example from
// a misbehaving connector feature, into a [try.PanicError].
func Recover[T any](builder harbor.AppBuilder[T]) harbor.AppBuilder[T] {
	return harbor.AppBuilderFunc[T](func(ctx context.Context, cfg T) (_ harbor.App, err error) {
		defer try.Recover(&err)

		return builder.Build(ctx, cfg)
	})
}
