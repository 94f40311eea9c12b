// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package connector describes network listeners as plain values.
//
// A [Spec] is produced by [Build] and then refined by the feature
// adapters [EnableTLS], [SetReverseProxy] and [EnableCompression] and by
// [InjectProperties]. Every step returns a new Spec and never mutates its
// input, so specs can be shared freely once the server is running.
package connector

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

const (
	DefaultHTTPPort          = 8080
	DefaultAJPPort           = 8009
	DefaultConnectionTimeout = 20000 * time.Millisecond
	DefaultURIEncoding       = "UTF-8"
)

// Spec is the complete, immutable description of one connector.
type Spec struct {
	Protocol              Protocol
	Port                  int
	URIEncoding           string
	UseBodyEncodingForURI bool

	// MaxThreads caps concurrent request workers. Zero means
	// the listener default, which is unbounded.
	MaxThreads        int
	ConnectionTimeout time.Duration

	Secure bool

	// Scheme is the scheme reported to the hosted application. Empty
	// means it's derived from Secure, see [Spec.EffectiveScheme].
	Scheme string

	// ProxyPort is the port reported to the hosted application
	// instead of Port. Zero means unset.
	ProxyPort int

	TLS         TLS
	Compression Compression

	// Extra holds settings with no typed field. The listener consumes
	// the ones it understands and warns about the rest.
	Extra map[string]string
}

// TLS describes TLS termination on a connector.
type TLS struct {
	Enabled    bool
	ClientAuth bool
	TrustStore Store
	KeyStore   Store

	// AllowEphemeralKey permits a self-signed, in-memory certificate when
	// no KeyStore is configured.
	AllowEphemeralKey bool
}

// Store locates key material on disk.
type Store struct {
	Path     string
	Password string
}

// IsSet reports whether a path was configured.
func (s Store) IsSet() bool {
	return s.Path != ""
}

// Compression describes response compression on a connector.
type Compression struct {
	Enabled   bool
	MimeTypes []string
}

// Name identifies the connector in logs and metrics, e.g. "http-8080".
func (s Spec) Name() string {
	return fmt.Sprintf("%s-%d", s.Protocol.short(), s.Port)
}

// Addr is the address the connector binds.
func (s Spec) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// BindOnInit reports whether the socket is bound while the server
// initializes, as opposed to when it starts.
func (s Spec) BindOnInit() bool {
	return !strings.EqualFold(s.Extra[ExtraBindOnInit], "false")
}

// EffectiveScheme is the scheme requests on this connector report.
func (s Spec) EffectiveScheme() string {
	if s.Scheme != "" {
		return s.Scheme
	}
	if s.Secure {
		return "https"
	}
	return "http"
}

// EffectivePort is the server port requests on this connector report.
func (s Spec) EffectivePort() int {
	if s.ProxyPort > 0 {
		return s.ProxyPort
	}
	return s.Port
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	c := s
	c.Extra = maps.Clone(s.Extra)
	if c.Extra == nil {
		c.Extra = make(map[string]string)
	}
	c.Compression.MimeTypes = slices.Clone(s.Compression.MimeTypes)
	return c
}

// Validate checks the invariants a listener relies on.
func (s Spec) Validate() error {
	if _, ok := protocolCapabilities[s.Protocol]; !ok {
		return &ConfigurationError{Key: "protocol", Value: s.Protocol.String(), Cause: ErrUnknownProtocol}
	}
	if s.Port < 1 || s.Port > 65535 {
		return &ConfigurationError{Key: "port", Value: fmt.Sprint(s.Port), Cause: ErrPortOutOfRange}
	}
	if s.ProxyPort < 0 || s.ProxyPort > 65535 {
		return &ConfigurationError{Key: "proxyPort", Value: fmt.Sprint(s.ProxyPort), Cause: ErrPortOutOfRange}
	}
	return nil
}
