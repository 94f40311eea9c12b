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
	"github.com/z5labs/harbor/internal/try"

	"github.com/stretchr/testify/assert"
)

func TestRecover(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the underlying builder returns an error", func(t *testing.T) {
			buildErr := errors.New("failed to build")
			builder := Recover(harbor.AppBuilderFunc[struct{}](func(ctx context.Context, cfg struct{}) (harbor.App, error) {
				return nil, buildErr
			}))

			_, err := builder.Build(context.Background(), struct{}{})
			if !assert.Equal(t, buildErr, err) {
				return
			}
		})

		t.Run("if the underlying builder panics with an error value", func(t *testing.T) {
			buildErr := errors.New("failed to build")
			builder := Recover(harbor.AppBuilderFunc[struct{}](func(ctx context.Context, cfg struct{}) (harbor.App, error) {
				panic(buildErr)
			}))

			_, err := builder.Build(context.Background(), struct{}{})
			if !assert.ErrorIs(t, err, buildErr) {
				return
			}
		})

		t.Run("if the underlying builder panics with a non-error value", func(t *testing.T) {
			builder := Recover(harbor.AppBuilderFunc[struct{}](func(ctx context.Context, cfg struct{}) (harbor.App, error) {
				panic("hello world")
			}))

			_, err := builder.Build(context.Background(), struct{}{})

			var perr try.PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
			if !assert.Equal(t, "hello world", perr.Value) {
				return
			}
		})
	})
}
