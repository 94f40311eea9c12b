// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package webapp hosts the single web application served by harbor.
//
// An [Application] owns its resource tree, its optional session manager
// and its deployment state. Observers learn about state changes through
// [Application.OnStateChange] rather than by polling.
package webapp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/harbor/internal/try"
	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
)

// State is the deployment state of an [Application].
type State int

const (
	StateNew State = iota
	StateStarting
	StateStarted
	StateFailed
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateStarted:
		return "STARTED"
	case StateFailed:
		return "FAILED"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

var ErrEmptyMountPath = errors.New("mount path must not be empty")

// DeploymentError is returned when an application fails to start.
type DeploymentError struct {
	Path  string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e DeploymentError) Error() string {
	return fmt.Sprintf("failed to deploy application at %q: %s", displayPath(e.Path), e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e DeploymentError) Unwrap() error {
	return e.Cause
}

func displayPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Deployer builds the request handler of an application once its
// resources are in place.
type Deployer interface {
	Deploy(context.Context, *Application) (http.Handler, error)
}

// DeployerFunc is a func implementation of [Deployer].
type DeployerFunc func(context.Context, *Application) (http.Handler, error)

// Deploy implements [Deployer].
func (f DeployerFunc) Deploy(ctx context.Context, app *Application) (http.Handler, error) {
	return f(ctx, app)
}

// Option configures an [Application].
type Option func(*Application)

// SessionTimeout enables sessions which expire after d of inactivity.
func SessionTimeout(d time.Duration) Option {
	return func(a *Application) {
		a.sessionTimeout = d
	}
}

// FatalOnFailure marks a failed deployment as fatal to the whole server.
func FatalOnFailure(b bool) Option {
	return func(a *Application) {
		a.fatalOnFailure = b
	}
}

// Logger sets the logger.
func Logger(log *slog.Logger) Option {
	return func(a *Application) {
		a.log = log
	}
}

// WithSessionOptions passes options through to the session manager.
func WithSessionOptions(opts ...SessionOption) Option {
	return func(a *Application) {
		a.sessionOpts = append(a.sessionOpts, opts...)
	}
}

// Application is a deployable unit mounted at a path.
type Application struct {
	path           string
	codeRoot       string
	staticRoot     string
	sessionTimeout time.Duration
	fatalOnFailure bool
	sessionOpts    []SessionOption
	deployer       Deployer
	log            *slog.Logger

	mu        sync.Mutex
	state     State
	failure   error
	listeners []func(from, to State)

	resources *Resources
	sessions  *SessionManager
	handler   atomic.Pointer[http.Handler]
}

// New returns an application mounted at mountPath. A trailing slash is
// stripped so "/" mounts at the root, recorded as "".
func New(mountPath, codeRoot, staticRoot string, deployer Deployer, opts ...Option) (*Application, error) {
	if mountPath == "" {
		return nil, ErrEmptyMountPath
	}
	if !strings.HasPrefix(mountPath, "/") {
		mountPath = "/" + mountPath
	}

	a := &Application{
		path:       strings.TrimRight(mountPath, "/"),
		codeRoot:   codeRoot,
		staticRoot: staticRoot,
		deployer:   deployer,
		state:      StateNew,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logging.OrDiscard(a.log)
	return a, nil
}

func (a *Application) Path() string                  { return a.path }
func (a *Application) CodeRoot() string              { return a.codeRoot }
func (a *Application) StaticRoot() string            { return a.staticRoot }
func (a *Application) SessionTimeout() time.Duration { return a.sessionTimeout }
func (a *Application) FatalOnFailure() bool          { return a.fatalOnFailure }

// Resources returns the overlay of code root and static root. It is nil
// until the application starts.
func (a *Application) Resources() *Resources {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resources
}

// Sessions returns the session manager, or nil if sessions are disabled.
func (a *Application) Sessions() *SessionManager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions
}

// State returns the current deployment state.
func (a *Application) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Failure returns the error which moved the application to
// [StateFailed], if any.
func (a *Application) Failure() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure
}

// OnStateChange registers f to be called after every state transition.
// Callbacks run synchronously on the goroutine causing the transition.
func (a *Application) OnStateChange(f func(from, to State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, f)
}

func (a *Application) transition(to State, cause error) bool {
	a.mu.Lock()
	from := a.state
	if from == to {
		a.mu.Unlock()
		return false
	}
	a.state = to
	if to == StateFailed {
		a.failure = cause
	}
	listeners := append([]func(from, to State){}, a.listeners...)
	a.mu.Unlock()

	a.log.Info(
		"application state changed",
		slogfield.String("path", displayPath(a.path)),
		slogfield.State("from", from),
		slogfield.State("to", to),
	)
	for _, f := range listeners {
		f(from, to)
	}
	return true
}

// Start deploys the application. On failure the application moves to
// [StateFailed] and a [DeploymentError] is returned.
func (a *Application) Start(ctx context.Context) error {
	if st := a.State(); st != StateNew {
		return DeploymentError{Path: a.path, Cause: fmt.Errorf("cannot start application in state %s", st)}
	}
	a.transition(StateStarting, nil)

	h, err := a.deploy(ctx)
	if err != nil {
		derr := DeploymentError{Path: a.path, Cause: err}
		a.Fail(derr)
		return derr
	}
	a.handler.Store(&h)
	a.transition(StateStarted, nil)
	return nil
}

func (a *Application) deploy(ctx context.Context) (h http.Handler, err error) {
	defer try.Recover(&err)

	base, err := dirFS(a.staticRoot)
	if err != nil {
		return nil, err
	}
	code, err := dirFS(a.codeRoot)
	if err != nil {
		return nil, err
	}
	res := NewResources(base, Mount{Path: ClassesPath, FS: code})

	var sm *SessionManager
	if a.sessionTimeout > 0 {
		sm = NewSessionManager(a.sessionTimeout, append([]SessionOption{SessionLogger(a.log)}, a.sessionOpts...)...)
		if err := sm.Start(); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	a.resources = res
	a.sessions = sm
	a.mu.Unlock()

	if a.deployer == nil {
		return http.FileServerFS(res.Public()), nil
	}
	return a.deployer.Deploy(ctx, a)
}

func dirFS(dir string) (fs.FS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// Fail moves the application to [StateFailed]. It may be called at any
// time, e.g. by a handler detecting an unrecoverable condition.
func (a *Application) Fail(cause error) {
	if a.transition(StateFailed, cause) {
		a.log.Error(
			"application failed",
			slogfield.String("path", displayPath(a.path)),
			slogfield.Error(cause),
		)
	}
}

// Stop undeploys the application. Stopping an application which never
// started is a no-op.
func (a *Application) Stop(ctx context.Context) error {
	switch a.State() {
	case StateNew, StateStopping, StateStopped:
		return nil
	}
	a.transition(StateStopping, nil)
	a.handler.Store(nil)

	var err error
	if sm := a.Sessions(); sm != nil {
		err = sm.Stop(ctx)
	}
	a.transition(StateStopped, nil)
	return err
}

// ServeHTTP dispatches to the deployed handler. Requests outside the
// mount path get 404 and requests to an application which is not
// started get 503.
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hp := a.handler.Load()
	if hp == nil || a.State() != StateStarted {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	h := *hp
	if a.path != "" {
		p := r.URL.Path
		if p != a.path && !strings.HasPrefix(p, a.path+"/") {
			http.NotFound(w, r)
			return
		}
		h = http.StripPrefix(a.path, h)
	}

	if sm := a.Sessions(); sm != nil {
		cookiePath := a.path
		if cookiePath == "" {
			cookiePath = "/"
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, &sessionBinding{manager: sm, path: cookiePath})
		r = r.WithContext(ctx)
	}
	h.ServeHTTP(w, r)
}
