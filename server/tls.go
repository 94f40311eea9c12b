// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/harbor/connector"
	"github.com/z5labs/harbor/pkg/slogfield"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/pkcs12"
)

func isPKCS12(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return true
	}
	return false
}

// pemBlocks returns the PEM encoded contents of a key or trust store.
func pemBlocks(store connector.Store) ([]byte, error) {
	data, err := os.ReadFile(store.Path)
	if err != nil {
		return nil, err
	}
	if !isPKCS12(store.Path) {
		return data, nil
	}

	blocks, err := pkcs12.ToPEM(data, store.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pkcs12 store %s: %w", store.Path, err)
	}
	var out []byte
	for _, b := range blocks {
		out = append(out, pem.EncodeToMemory(b)...)
	}
	return out, nil
}

func loadKeyPair(store connector.Store) (*tls.Certificate, error) {
	data, err := pemBlocks(store)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return nil, fmt.Errorf("failed to load key store %s: %w", store.Path, err)
	}
	return &cert, nil
}

func loadCertPool(store connector.Store) (*x509.CertPool, error) {
	data, err := pemBlocks(store)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in trust store %s", store.Path)
	}
	return pool, nil
}

// ephemeralCertificate returns a self-signed certificate for localhost
// which lives only in memory.
func ephemeralCertificate() (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"harbor ephemeral"}},
		DNSNames:              []string{"localhost"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// certSource serves the current certificate and swaps it when the key
// store on disk changes.
type certSource struct {
	log   *slog.Logger
	name  string
	store connector.Store
	cert  atomic.Pointer[tls.Certificate]

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

func (cs *certSource) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return cs.cert.Load(), nil
}

func (cs *certSource) reload() error {
	cert, err := loadKeyPair(cs.store)
	if err != nil {
		return err
	}
	cs.cert.Store(cert)
	return nil
}

// watch reloads the key store whenever its file is written or replaced.
func (cs *certSource) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(cs.store.Path)); err != nil {
		w.Close()
		return err
	}
	cs.watcher = w
	cs.done = make(chan struct{})

	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		cs.watchLoop()
	}()
	return nil
}

func (cs *certSource) watchLoop() {
	target := filepath.Clean(cs.store.Path)
	for {
		select {
		case <-cs.done:
			return
		case ev, ok := <-cs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := cs.reload(); err != nil {
				cs.log.Error("failed to reload key store", slogfield.Connector(cs.name), slogfield.Error(err))
				continue
			}
			cs.log.Info("reloaded key store", slogfield.Connector(cs.name), slogfield.String("path", cs.store.Path))
		case err, ok := <-cs.watcher.Errors:
			if !ok {
				return
			}
			cs.log.Warn("key store watcher error", slogfield.Connector(cs.name), slogfield.Error(err))
		}
	}
}

func (cs *certSource) close() error {
	if cs == nil || cs.watcher == nil {
		return nil
	}
	close(cs.done)
	err := cs.watcher.Close()
	cs.wg.Wait()
	return err
}

// tlsConfig builds the server TLS configuration for spec. The returned
// certSource is non-nil when a key store is being watched.
func tlsConfig(log *slog.Logger, spec connector.Spec) (*tls.Config, *certSource, error) {
	name := spec.Name()
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	var cs *certSource
	switch {
	case spec.TLS.KeyStore.IsSet():
		cs = &certSource{log: log, name: name, store: spec.TLS.KeyStore}
		if err := cs.reload(); err != nil {
			return nil, nil, &connector.ConfigurationError{Key: "ssl.keyStore", Value: spec.TLS.KeyStore.Path, Cause: err}
		}
		if err := cs.watch(); err != nil {
			log.Warn("key store will not be reloaded on change", slogfield.Connector(name), slogfield.Error(err))
		}
		cfg.GetCertificate = cs.getCertificate
	case spec.TLS.AllowEphemeralKey:
		cert, err := ephemeralCertificate()
		if err != nil {
			return nil, nil, err
		}
		log.Warn(
			"tls enabled without a key store, serving an ephemeral self-signed certificate",
			slogfield.Connector(name),
		)
		cfg.Certificates = []tls.Certificate{*cert}
	default:
		return nil, nil, &connector.ConfigurationError{Key: "ssl.keyStore", Cause: connector.ErrNoKeyMaterial}
	}

	if spec.TLS.TrustStore.IsSet() {
		pool, err := loadCertPool(spec.TLS.TrustStore)
		if err != nil {
			cs.close()
			return nil, nil, &connector.ConfigurationError{Key: "ssl.trustStore", Value: spec.TLS.TrustStore.Path, Cause: err}
		}
		cfg.ClientCAs = pool
	}
	if spec.TLS.ClientAuth {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, cs, nil
}
