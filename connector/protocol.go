// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import "strings"

// Protocol is the wire protocol a connector speaks.
type Protocol int

const (
	// PrimaryHTTP is plain HTTP/1.1, optionally over TLS.
	PrimaryHTTP Protocol = iota + 1

	// BinaryProxy is the AJP/1.3 binary protocol spoken by
	// reverse proxies such as mod_jk and mod_proxy_ajp.
	BinaryProxy
)

// String returns the canonical protocol identifier.
func (p Protocol) String() string {
	switch p {
	case PrimaryHTTP:
		return "HTTP/1.1"
	case BinaryProxy:
		return "AJP/1.3"
	default:
		return "unknown"
	}
}

func (p Protocol) short() string {
	switch p {
	case PrimaryHTTP:
		return "http"
	case BinaryProxy:
		return "ajp"
	default:
		return "unknown"
	}
}

// ParseProtocol accepts "HTTP/1.1", "http", "AJP/1.3" or "ajp", ignoring case.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "http/1.1", "http":
		return PrimaryHTTP, nil
	case "ajp/1.3", "ajp":
		return BinaryProxy, nil
	}
	return 0, &ConfigurationError{Key: "protocol", Value: s, Cause: ErrUnknownProtocol}
}

// capabilities of the listener implementation backing each protocol.
type capabilities struct {
	maxThreads  bool
	compression bool
	tls         bool
}

var protocolCapabilities = map[Protocol]capabilities{
	PrimaryHTTP: {maxThreads: true, compression: true, tls: true},
	BinaryProxy: {maxThreads: true},
}

// SupportsCompression reports whether the listener for p can compress
// responses.
func (p Protocol) SupportsCompression() bool {
	return protocolCapabilities[p].compression
}

// SupportsTLS reports whether the listener for p can terminate TLS.
func (p Protocol) SupportsTLS() bool {
	return protocolCapabilities[p].tls
}
