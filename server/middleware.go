// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"compress/flate"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/z5labs/harbor/connector"
	"github.com/z5labs/harbor/pkg/slogfield"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// withInfo attaches the connector info to every request, applies the
// reverse-proxy rewrite to the request URL and host, and re-decodes the
// path in the connector's URI charset.
func withInfo(info connector.Info, next http.Handler) http.Handler {
	enc, err := connector.LookupEncoding(info.URIEncoding)
	if err != nil {
		enc = unicode.UTF8
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, ok := decodePath(enc, r.URL.Path)
		if !ok {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		r = r.Clone(connector.NewContext(r.Context(), info))
		if path != r.URL.Path {
			r.URL.Path = path
			r.URL.RawPath = ""
		}
		r.URL.Scheme = info.Scheme
		if info.Proxied {
			r.Host = proxiedHost(r.Host, info.Scheme, info.ServerPort)
		}
		next.ServeHTTP(w, r)
	})
}

// proxiedHost replaces the port of host, dropping it when it is the
// scheme's default.
func proxiedHost(host, scheme string, port int) string {
	name, _, err := net.SplitHostPort(host)
	if err != nil {
		name = strings.Trim(host, "[]")
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		if strings.Contains(name, ":") {
			return "[" + name + "]"
		}
		return name
	}
	return net.JoinHostPort(name, strconv.Itoa(port))
}

// decodePath reinterprets the percent-decoded path bytes in enc.
// net/http leaves those bytes as is, so UTF-8 only needs validating.
func decodePath(enc encoding.Encoding, p string) (string, bool) {
	if enc == unicode.UTF8 {
		return p, utf8.ValidString(p)
	}
	out, err := enc.NewDecoder().String(p)
	if err != nil || strings.ContainsRune(out, utf8.RuneError) {
		return p, false
	}
	return out, true
}

// limitWorkers bounds concurrently served requests to n. A request
// whose context ends while waiting gets 503.
func limitWorkers(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := semaphore.NewWeighted(int64(n))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sem.Acquire(r.Context(), 1); err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		defer sem.Release(1)
		next.ServeHTTP(w, r)
	})
}

// compressibleTypes drops mime patterns the compressor cannot match.
// Only exact types and a trailing "/*" wildcard are supported.
func compressibleTypes(log *slog.Logger, name string, types []string) []string {
	valid := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if strings.Contains(strings.TrimSuffix(t, "/*"), "*") || !strings.Contains(t, "/") {
			log.Warn(
				"ignoring unsupported compressible mime type",
				slogfield.Connector(name),
				slogfield.String("mime_type", t),
			)
			continue
		}
		valid = append(valid, t)
	}
	return valid
}

func compress(log *slog.Logger, name string, types []string, next http.Handler) http.Handler {
	types = compressibleTypes(log, name, types)
	if len(types) == 0 {
		log.Warn("compression enabled without any usable mime types", slogfield.Connector(name))
		return next
	}
	return middleware.NewCompressor(flate.DefaultCompression, types...).Handler(next)
}
