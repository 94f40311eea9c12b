// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInjectProperties(t *testing.T) {
	t.Run("will set typed properties", func(t *testing.T) {
		t.Run("if the keys have the prefix", func(t *testing.T) {
			spec := mustBuild(t, PrimaryHTTP, 8080)

			out := InjectProperties(nil, spec, "http.prop.", map[string]string{
				"http.prop.connectionTimeout":     "5000",
				"http.prop.maxThreads":            "50",
				"http.prop.URIEncoding":           "ISO-8859-1",
				"http.prop.useBodyEncodingForURI": "true",
				"http.prop.proxyPort":             "443",
				"http.prop.scheme":                "HTTPS",
				"http.prop.secure":                "true",
				"http.prop.bindOnInit":            "false",
				"ajp.prop.maxThreads":             "7",
				"PORT":                            "1234",
			})
			if !assert.Equal(t, 5*time.Second, out.ConnectionTimeout) {
				return
			}
			if !assert.Equal(t, 50, out.MaxThreads) {
				return
			}
			if !assert.Equal(t, "ISO-8859-1", out.URIEncoding) {
				return
			}
			if !assert.True(t, out.UseBodyEncodingForURI) {
				return
			}
			if !assert.Equal(t, 443, out.ProxyPort) {
				return
			}
			if !assert.Equal(t, "https", out.EffectiveScheme()) {
				return
			}
			if !assert.True(t, out.Secure) {
				return
			}
			if !assert.False(t, out.BindOnInit()) {
				return
			}
			if !assert.Equal(t, 8080, out.Port) {
				return
			}
		})

		t.Run("if compression is turned on for an http connector", func(t *testing.T) {
			spec := mustBuild(t, PrimaryHTTP, 8080)

			out := InjectProperties(nil, spec, "http.prop.", map[string]string{
				"http.prop.compression":          "on",
				"http.prop.compressableMimeType": "text/html,text/css",
			})
			if !assert.True(t, out.Compression.Enabled) {
				return
			}
			if !assert.Equal(t, []string{"text/html", "text/css"}, out.Compression.MimeTypes) {
				return
			}
		})
	})

	t.Run("will record unknown properties as extras", func(t *testing.T) {
		t.Run("if no setter exists for the name", func(t *testing.T) {
			spec := mustBuild(t, PrimaryHTTP, 8080)

			out := InjectProperties(nil, spec, "http.prop.", map[string]string{
				"http.prop.keepAliveTimeout": "60000",
				"http.prop.frobnicate":       "yes",
			})
			if !assert.Equal(t, "60000", out.Extra["keepAliveTimeout"]) {
				return
			}
			if !assert.Equal(t, "yes", out.Extra["frobnicate"]) {
				return
			}
			if !assert.Empty(t, spec.Extra) {
				return
			}
		})

		t.Run("if an http only property is given to an ajp connector", func(t *testing.T) {
			spec := mustBuild(t, BinaryProxy, 8009)

			out := InjectProperties(nil, spec, "ajp.prop.", map[string]string{
				"ajp.prop.compression": "on",
				"ajp.prop.secret":      "s3cr3t",
			})
			if !assert.False(t, out.Compression.Enabled) {
				return
			}
			if !assert.Equal(t, "on", out.Extra["compression"]) {
				return
			}
			if !assert.Equal(t, "s3cr3t", out.Extra["secret"]) {
				return
			}
		})
	})

	t.Run("will log a warning and continue", func(t *testing.T) {
		t.Run("if a typed property has a bad value", func(t *testing.T) {
			spec := mustBuild(t, PrimaryHTTP, 8080)

			log, buf := bufferedLogger()
			out := InjectProperties(log, spec, "http.prop.", map[string]string{
				"http.prop.maxThreads":        "lots",
				"http.prop.port":              "99999",
				"http.prop.connectionTimeout": "1500",
				"http.prop.secure":            "maybe",
			})
			if !assert.Equal(t, 3, strings.Count(buf.String(), "did not set connector property")) {
				return
			}
			if !assert.Equal(t, 1500*time.Millisecond, out.ConnectionTimeout) {
				return
			}
			if !assert.Zero(t, out.MaxThreads) {
				return
			}
			if !assert.Equal(t, 8080, out.Port) {
				return
			}
			if !assert.False(t, out.Secure) {
				return
			}
		})
	})
}
