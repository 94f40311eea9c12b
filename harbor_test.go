// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package harbor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/z5labs/harbor/config"
	"github.com/z5labs/harbor/lifecycle"

	"github.com/stretchr/testify/assert"
)

type appFunc func(context.Context) error

func (f appFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type sourceFunc func(config.Store) error

func (f sourceFunc) Apply(store config.Store) error {
	return f(store)
}

type testConfig struct {
	Port       int    `config:"PORT"`
	ProxyURL   string `config:"http.proxyUrl"`
	MaxThreads int    `config:"http.maxThread"`
}

func TestRun(t *testing.T) {
	t.Run("will return ConfigReadError", func(t *testing.T) {
		t.Run("if a config source fails to apply", func(t *testing.T) {
			readErr := errors.New("failed to read")
			src := sourceFunc(func(config.Store) error {
				return readErr
			})

			builder := AppBuilderFunc[testConfig](func(context.Context, testConfig) (App, error) {
				return nil, nil
			})

			err := Run(context.Background(), builder, src)

			var cerr ConfigReadError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
			if !assert.Equal(t, readErr, cerr.Unwrap()) {
				return
			}
		})
	})

	t.Run("will return ConfigUnmarshalError", func(t *testing.T) {
		t.Run("if a value does not fit the config type", func(t *testing.T) {
			builder := AppBuilderFunc[testConfig](func(context.Context, testConfig) (App, error) {
				return nil, nil
			})

			err := Run(context.Background(), builder, config.FromProperties("PORT=eighty"))

			var cerr ConfigUnmarshalError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
		})
	})

	t.Run("will return AppBuildError", func(t *testing.T) {
		t.Run("if the builder fails", func(t *testing.T) {
			buildErr := errors.New("failed to build")
			builder := AppBuilderFunc[testConfig](func(context.Context, testConfig) (App, error) {
				return nil, buildErr
			})

			err := Run(context.Background(), builder)

			var berr AppBuildError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
			if !assert.Equal(t, buildErr, berr.Unwrap()) {
				return
			}
		})
	})

	t.Run("will return AppRunError", func(t *testing.T) {
		t.Run("if the app fails", func(t *testing.T) {
			runErr := errors.New("failed to run")
			builder := AppBuilderFunc[testConfig](func(context.Context, testConfig) (App, error) {
				return appFunc(func(context.Context) error {
					return runErr
				}), nil
			})

			err := Run(context.Background(), builder)

			var rerr AppRunError
			if !assert.ErrorAs(t, err, &rerr) {
				return
			}
			if !assert.True(t, strings.Contains(rerr.Error(), "failed to run")) {
				return
			}
		})
	})

	t.Run("will decode later sources over earlier ones", func(t *testing.T) {
		t.Run("if several sources set the same key", func(t *testing.T) {
			var got testConfig
			builder := AppBuilderFunc[testConfig](func(_ context.Context, cfg testConfig) (App, error) {
				got = cfg
				return appFunc(func(context.Context) error { return nil }), nil
			})

			err := Run(
				context.Background(),
				builder,
				config.Map{"http": map[string]any{"maxThread": 200, "proxyUrl": "http://yaml"}},
				config.FromEnviron([]string{"PORT=9090"}),
				config.FromProperties("http.proxyUrl=https://flag"),
			)
			if !assert.Nil(t, err) {
				return
			}

			expected := testConfig{Port: 9090, ProxyURL: "https://flag", MaxThreads: 200}
			if !assert.Equal(t, expected, got) {
				return
			}
		})
	})

	t.Run("will give the builder a lifecycle context", func(t *testing.T) {
		t.Run("if run is called", func(t *testing.T) {
			var found bool
			builder := AppBuilderFunc[testConfig](func(ctx context.Context, _ testConfig) (App, error) {
				_, found = lifecycle.FromContext(ctx)
				return appFunc(func(context.Context) error { return nil }), nil
			})

			err := Run(context.Background(), builder)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.True(t, found) {
				return
			}
		})
	})
}
