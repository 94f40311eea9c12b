// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package hello is the application hosted by harbor: a greeting at
// /hello and the public static resources everywhere else.
package hello

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"

	"github.com/z5labs/harbor/config"
	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
	"github.com/z5labs/harbor/webapp"
)

// PropertiesFile is read from the code root of the application.
var PropertiesFile = path.Join(webapp.ClassesPath, "config.properties")

// Option configures the [Deployer].
type Option func(*deployer)

// Logger sets the logger.
func Logger(log *slog.Logger) Option {
	return func(d *deployer) {
		d.log = log
	}
}

// Hostname overrides [os.Hostname].
func Hostname(f func() (string, error)) Option {
	return func(d *deployer) {
		d.hostname = f
	}
}

type deployer struct {
	log      *slog.Logger
	hostname func() (string, error)
}

// Deployer returns the [webapp.Deployer] of the hello application.
func Deployer(opts ...Option) webapp.Deployer {
	d := &deployer{
		hostname: os.Hostname,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logging.OrDiscard(d.log)
	return d
}

// Deploy implements the [webapp.Deployer] interface.
func (d *deployer) Deploy(ctx context.Context, app *webapp.Application) (http.Handler, error) {
	res := app.Resources()

	props, err := readProperties(res)
	if err != nil {
		return nil, err
	}
	host, err := d.hostname()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /hello", greeting(host, props.String("KEY1")))
	mux.Handle("/", http.FileServerFS(res.Public()))

	d.log.InfoContext(ctx, "deployed hello application", slogfield.String("hostname", host))
	return mux, nil
}

// readProperties loads the properties file. A missing file yields no
// properties.
func readProperties(fsys fs.FS) (*config.Manager, error) {
	f, err := fsys.Open(PropertiesFile)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Read()
	}
	if err != nil {
		return nil, err
	}
	m, err := config.Read(config.FromPropertiesFile(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", PropertiesFile, err)
	}
	return m, nil
}

func greeting(host, key1 string) http.Handler {
	body := fmt.Sprintf("hello world ,%s,prop key1=%s", host, key1)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := webapp.SessionFromRequest(w, r, true); ok {
			n, _ := s.Get("visits")
			visits, _ := n.(int)
			s.Set("visits", visits+1)
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, body)
	})
}
