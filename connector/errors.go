// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"errors"
	"fmt"
)

var (
	ErrPortOutOfRange     = errors.New("port must be between 1 and 65535")
	ErrUnknownProtocol    = errors.New("unknown connector protocol")
	ErrMissingScheme      = errors.New("url has no scheme")
	ErrUnsupportedCharset = errors.New("unsupported uri encoding")
	ErrNoKeyMaterial      = errors.New("tls is enabled without a key store and ephemeral keys are disallowed")
)

// ConfigurationError is returned for malformed connector settings. It is
// always fatal: startup aborts before any connector binds.
type ConfigurationError struct {
	Key   string
	Value string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid connector configuration %q: %s", e.Value, e.Cause)
	}
	return fmt.Sprintf("invalid connector configuration %s=%q: %s", e.Key, e.Value, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}
