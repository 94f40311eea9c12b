// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"net/url"
	"strconv"
	"strings"
)

// SetReverseProxy rewrites the scheme and port spec reports so they match
// the upstream proxy at proxyBaseURL rather than the local bind address.
//
// An https scheme also marks the connector secure. An explicit port in the
// URL wins, otherwise http and https fall back to 80 and 443 and any other
// scheme leaves the proxy port unset.
func SetReverseProxy(spec Spec, proxyBaseURL string) (Spec, error) {
	u, err := url.Parse(proxyBaseURL)
	if err != nil {
		return Spec{}, &ConfigurationError{Key: "proxyUrl", Value: proxyBaseURL, Cause: err}
	}
	if u.Scheme == "" {
		return Spec{}, &ConfigurationError{Key: "proxyUrl", Value: proxyBaseURL, Cause: ErrMissingScheme}
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Spec{}, &ConfigurationError{Key: "proxyUrl", Value: proxyBaseURL, Cause: ErrPortOutOfRange}
		}
	}

	scheme := strings.ToLower(u.Scheme)

	out := spec.Clone()
	out.Scheme = scheme
	if scheme == "https" && !out.Secure {
		out.Secure = true
	}

	switch {
	case port > 0:
		out.ProxyPort = port
	case scheme == "http":
		out.ProxyPort = 80
	case scheme == "https":
		out.ProxyPort = 443
	}
	return out, nil
}
