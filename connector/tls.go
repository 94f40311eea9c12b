// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package connector

import (
	"log/slog"
	"path/filepath"

	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
)

// TLSMaterial locates the trust and key stores used by [EnableTLS].
type TLSMaterial struct {
	TrustStore         string `config:"ssl.trustStore"`
	TrustStorePassword string `config:"ssl.trustStorePassword"`
	KeyStore           string `config:"ssl.keyStore"`
	KeyStorePassword   string `config:"ssl.keyStorePassword"`

	// AllowEphemeralKey keeps TLS usable when KeyStore is empty by
	// generating a throwaway self-signed certificate at bind time.
	AllowEphemeralKey bool `config:"ssl.allowEphemeralKey"`
}

// EnableTLS marks spec as secure and TLS terminated. Store paths are
// recorded as absolute paths only when present. Missing stores are not an
// error here, see [TLSMaterial.AllowEphemeralKey].
func EnableTLS(log *slog.Logger, spec Spec, requireClientCert bool, m TLSMaterial) Spec {
	log = logging.OrDiscard(log)

	out := spec.Clone()
	out.Secure = true
	out.TLS.Enabled = true
	out.TLS.ClientAuth = requireClientCert
	out.TLS.AllowEphemeralKey = m.AllowEphemeralKey

	if m.TrustStore != "" {
		path := absPath(m.TrustStore)
		out.TLS.TrustStore = Store{Path: path, Password: m.TrustStorePassword}
		log.Info("using trust store", slogfield.Connector(out.Name()), slogfield.String("path", path))
	}
	if m.KeyStore != "" {
		path := absPath(m.KeyStore)
		out.TLS.KeyStore = Store{Path: path, Password: m.KeyStorePassword}
		log.Info("using key store", slogfield.Connector(out.Name()), slogfield.String("path", path))
	}
	return out
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
