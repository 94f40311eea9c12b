// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
)

// setter applies a single named property to a spec. It must either
// fully apply the value or leave the spec untouched.
type setter func(*Spec, string) error

var commonSetters = map[string]setter{
	"port": func(s *Spec, v string) error {
		port, err := parsePort(v)
		if err != nil {
			return err
		}
		s.Port = port
		return nil
	},
	"connectionTimeout": func(s *Spec, v string) error {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if ms <= 0 {
			return fmt.Errorf("connectionTimeout must be positive: %d", ms)
		}
		s.ConnectionTimeout = time.Duration(ms) * time.Millisecond
		return nil
	},
	"URIEncoding": func(s *Spec, v string) error {
		enc, err := normalizeEncoding(v)
		if err != nil {
			return err
		}
		s.URIEncoding = enc
		return nil
	},
	"useBodyEncodingForURI": boolSetter(func(s *Spec, b bool) { s.UseBodyEncodingForURI = b }),
	"maxThreads": func(s *Spec, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		if n < 0 {
			n = 0
		}
		s.MaxThreads = n
		return nil
	},
	"secure": boolSetter(func(s *Spec, b bool) { s.Secure = b }),
	"scheme": func(s *Spec, v string) error {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			return ErrMissingScheme
		}
		s.Scheme = v
		return nil
	},
	"proxyPort": func(s *Spec, v string) error {
		port, err := parsePort(v)
		if err != nil {
			return err
		}
		s.ProxyPort = port
		return nil
	},
	ExtraBindOnInit: boolSetter(func(s *Spec, b bool) {
		if b {
			delete(s.Extra, ExtraBindOnInit)
			return
		}
		s.Extra[ExtraBindOnInit] = "false"
	}),
}

var httpSetters = map[string]setter{
	"compression": func(s *Spec, v string) error {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "on", "true", "force":
			if len(s.Compression.MimeTypes) == 0 {
				s.Compression.MimeTypes = ParseMimeTypes(DefaultCompressibleMimeTypes)
			}
			s.Compression.Enabled = true
		case "off", "false":
			s.Compression.Enabled = false
		default:
			return fmt.Errorf("compression must be one of on, off, force: %q", v)
		}
		return nil
	},
	"compressableMimeType": func(s *Spec, v string) error {
		types := ParseMimeTypes(v)
		if len(types) == 0 {
			return fmt.Errorf("no mime types in %q", v)
		}
		s.Compression.MimeTypes = types
		return nil
	},
}

func init() {
	httpSetters["compressibleMimeType"] = httpSetters["compressableMimeType"]
}

func lookupSetter(p Protocol, name string) (setter, bool) {
	if p == PrimaryHTTP {
		if set, ok := httpSetters[name]; ok {
			return set, true
		}
	}
	set, ok := commonSetters[name]
	return set, ok
}

func boolSetter(f func(*Spec, bool)) setter {
	return func(s *Spec, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		f(s, b)
		return nil
	}
}

func parsePort(v string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, ErrPortOutOfRange
	}
	return port, nil
}

// InjectProperties applies every entry of env whose key starts with
// prefix to spec, with the prefix stripped off the key.
//
// Names with a typed setter are parsed and applied; a value that fails
// to parse is logged as a warning and skipped. Any other name is kept in
// [Spec.Extra] for the listener to consume. Injection never fails.
func InjectProperties(log *slog.Logger, spec Spec, prefix string, env map[string]string) Spec {
	log = logging.OrDiscard(log)

	keys := make([]string, 0, len(env))
	for k := range env {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := spec.Clone()
	for _, k := range keys {
		name := strings.TrimPrefix(k, prefix)
		value := env[k]
		if name == "" {
			log.Warn("did not set property with empty name", slogfield.Connector(out.Name()), slogfield.String("key", k))
			continue
		}

		set, ok := lookupSetter(out.Protocol, name)
		if !ok {
			out.Extra[name] = value
			log.Info(
				"recorded connector property",
				slogfield.Connector(out.Name()),
				slogfield.String("property", name),
				slogfield.String("value", displayValue(name, value)),
			)
			continue
		}

		err := set(&out, value)
		if err != nil {
			log.Warn(
				"did not set connector property",
				slogfield.Connector(out.Name()),
				slogfield.String("property", name),
				slogfield.String("value", displayValue(name, value)),
				slogfield.Error(err),
			)
			continue
		}
		log.Info(
			"set connector property",
			slogfield.Connector(out.Name()),
			slogfield.String("property", name),
			slogfield.String("value", displayValue(name, value)),
		)
	}
	return out
}

// displayValue masks the values of properties naming a secret.
func displayValue(name, value string) string {
	n := strings.ToLower(name)
	if strings.Contains(n, "secret") || strings.Contains(n, "password") {
		return logging.Mask
	}
	return value
}
