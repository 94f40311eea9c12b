// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/z5labs/harbor/config"

	"github.com/stretchr/testify/assert"
)

func execute(t *testing.T, args ...string) (*config.Manager, error) {
	t.Helper()

	var m *config.Manager
	cmd := newRootCommand(func(_ context.Context, srcs ...config.Source) error {
		var err error
		m, err = config.Read(srcs...)
		return err
	})
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.ExecuteContext(context.Background())
	return m, err
}

func TestRootCommand(t *testing.T) {
	t.Run("will layer yaml, environment and properties", func(t *testing.T) {
		t.Run("if all three set the same key", func(t *testing.T) {
			t.Setenv("HARBOR_PUBLIC_URL", "https://templated.example.com")
			t.Setenv("http.maxThread", "150")
			t.Setenv("PORT", "9090")

			cfgFile := filepath.Join(t.TempDir(), "harbor.yaml")
			yml := `PORT: 7070
http:
  maxThread: 100
  proxyUrl: {{ env "HARBOR_PUBLIC_URL" }}
ajp:
  maxThread: 25
`
			if err := os.WriteFile(cfgFile, []byte(yml), 0o644); err != nil {
				t.Fatal(err)
			}

			m, err := execute(t, "-c", cfgFile, "-DPORT=9191", "-D", "http.enableSSL=true")
			if !assert.Nil(t, err) {
				return
			}

			if !assert.Equal(t, "9191", m.String("PORT")) {
				return
			}
			if !assert.Equal(t, "150", m.String("http.maxThread")) {
				return
			}
			if !assert.Equal(t, "25", m.String("ajp.maxThread")) {
				return
			}
			if !assert.Equal(t, "https://templated.example.com", m.String("http.proxyUrl")) {
				return
			}
			if !assert.Equal(t, "true", m.String("http.enableSSL")) {
				return
			}
		})
	})

	t.Run("will fall back to the defaults", func(t *testing.T) {
		t.Run("if nothing is configured", func(t *testing.T) {
			m, err := execute(t)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "200", m.String("ajp.maxThread")) {
				return
			}
			if !assert.Equal(t, "true", m.String("ssl.allowEphemeralKey")) {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the config file does not exist", func(t *testing.T) {
			_, err := execute(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"))
			if !assert.ErrorIs(t, err, os.ErrNotExist) {
				return
			}
		})

		t.Run("if a property has no key", func(t *testing.T) {
			_, err := execute(t, "-D", "=value")

			var perr config.InvalidPropertyError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
		})

		t.Run("if the run fails", func(t *testing.T) {
			runErr := errors.New("failed to bind")
			cmd := newRootCommand(func(context.Context, ...config.Source) error {
				return runErr
			})
			cmd.SetArgs([]string{})

			err := cmd.ExecuteContext(context.Background())
			if !assert.ErrorIs(t, err, runErr) {
				return
			}
		})

		t.Run("if positional arguments are given", func(t *testing.T) {
			_, err := execute(t, "serve")
			if !assert.Error(t, err) {
				return
			}
		})
	})
}
