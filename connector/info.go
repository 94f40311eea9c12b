// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"context"
	"net/http"
)

// Info describes the connector a request arrived on, as seen by the
// client. Scheme, Secure and ServerPort reflect any reverse-proxy rewrite.
type Info struct {
	Connector             string
	Protocol              Protocol
	Scheme                string
	Secure                bool
	ServerPort            int
	Proxied               bool
	URIEncoding           string
	UseBodyEncodingForURI bool
}

// Info returns the request facing view of s.
func (s Spec) Info() Info {
	return Info{
		Connector:             s.Name(),
		Protocol:              s.Protocol,
		Scheme:                s.EffectiveScheme(),
		Secure:                s.Secure,
		ServerPort:            s.EffectivePort(),
		Proxied:               s.ProxyPort > 0,
		URIEncoding:           s.URIEncoding,
		UseBodyEncodingForURI: s.UseBodyEncodingForURI,
	}
}

type infoCtxKey struct{}

// NewContext returns a copy of ctx carrying info.
func NewContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoCtxKey{}, info)
}

// InfoFromContext returns the connector info of the request being
// served.
func InfoFromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoCtxKey{}).(Info)
	return info, ok
}

// IsSecure reports whether r should be treated as arriving over a
// secure channel, either directly or behind an https proxy.
func IsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	info, ok := InfoFromContext(r.Context())
	return ok && info.Secure
}
