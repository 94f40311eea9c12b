// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"
)

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	environ func() []string
}

// FromEnv returns a Source which will apply its config
// from the environment variables available to the
// current process.
func FromEnv() Env {
	return Env{
		environ: os.Environ,
	}
}

// FromEnviron returns a Source over a fixed "KEY=value" list,
// in the format returned by [os.Environ].
func FromEnviron(environ []string) Env {
	return Env{
		environ: func() []string { return environ },
	}
}

// Apply implements the Source interface. Environment variable names are
// used verbatim as keys, they are never split on dots.
func (src Env) Apply(store Store) error {
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			continue
		}
		err := store.Set(k, v)
		if err != nil {
			return err
		}
	}
	return nil
}
