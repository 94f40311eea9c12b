// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
)

// ExtraBindOnInit is the [Spec.Extra] key recording a deferred bind.
const ExtraBindOnInit = "bindOnInit"

type buildOptions struct {
	log                   *slog.Logger
	timeout               time.Duration
	uriEncoding           string
	useBodyEncodingForURI bool
	bindOnInit            bool
	maxThreads            int
}

// BuildOption configures [Build].
type BuildOption func(*buildOptions)

// ConnectionTimeout sets how long a new connection may take to send its
// request line. Non-positive values keep the 20s default.
func ConnectionTimeout(d time.Duration) BuildOption {
	return func(bo *buildOptions) {
		if d > 0 {
			bo.timeout = d
		}
	}
}

// URIEncoding sets the charset used to decode request URIs.
func URIEncoding(enc string) BuildOption {
	return func(bo *buildOptions) {
		bo.uriEncoding = enc
	}
}

// UseBodyEncodingForURI decodes query strings with the request body charset.
func UseBodyEncodingForURI(b bool) BuildOption {
	return func(bo *buildOptions) {
		bo.useBodyEncodingForURI = b
	}
}

// BindOnInit controls whether the socket is bound at init or at start.
func BindOnInit(b bool) BuildOption {
	return func(bo *buildOptions) {
		bo.bindOnInit = b
	}
}

// MaxThreads caps concurrent request workers. n <= 0 means no cap.
func MaxThreads(n int) BuildOption {
	return func(bo *buildOptions) {
		bo.maxThreads = n
	}
}

// Logger sets the logger used for build diagnostics.
func Logger(log *slog.Logger) BuildOption {
	return func(bo *buildOptions) {
		bo.log = log
	}
}

// Build returns a new Spec. It performs no I/O and fails only with a
// [*ConfigurationError].
func Build(protocol Protocol, port int, opts ...BuildOption) (Spec, error) {
	bo := &buildOptions{
		timeout:     DefaultConnectionTimeout,
		uriEncoding: DefaultURIEncoding,
		bindOnInit:  true,
	}
	for _, opt := range opts {
		opt(bo)
	}
	log := logging.OrDiscard(bo.log)

	caps, ok := protocolCapabilities[protocol]
	if !ok {
		return Spec{}, &ConfigurationError{Key: "protocol", Value: protocol.String(), Cause: ErrUnknownProtocol}
	}
	if port < 1 || port > 65535 {
		return Spec{}, &ConfigurationError{Key: "port", Value: strconv.Itoa(port), Cause: ErrPortOutOfRange}
	}

	enc, err := normalizeEncoding(bo.uriEncoding)
	if err != nil {
		return Spec{}, err
	}

	spec := Spec{
		Protocol:              protocol,
		Port:                  port,
		URIEncoding:           enc,
		UseBodyEncodingForURI: bo.useBodyEncodingForURI,
		ConnectionTimeout:     bo.timeout,
		Extra:                 make(map[string]string),
	}

	if bo.maxThreads > 0 {
		if caps.maxThreads {
			spec.MaxThreads = bo.maxThreads
		} else {
			log.Warn(
				"could not set max threads",
				slogfield.Connector(spec.Name()),
				slogfield.Int("max_threads", bo.maxThreads),
			)
		}
	}

	if !bo.bindOnInit {
		spec.Extra[ExtraBindOnInit] = "false"
	}
	return spec, nil
}

// ResolvePort parses a port from an external variable. An empty or
// blank value resolves to def.
func ResolvePort(key, raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Value: raw, Cause: err}
	}
	if port < 1 || port > 65535 {
		return 0, &ConfigurationError{Key: key, Value: raw, Cause: ErrPortOutOfRange}
	}
	return port, nil
}
