// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package lifecycle starts a built server, keeps it running until a
// termination request or a fatal application failure and then releases
// every connector.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/harbor/internal/fixedpool"
	"github.com/z5labs/harbor/internal/try"
	"github.com/z5labs/harbor/pkg/logging"
	"github.com/z5labs/harbor/pkg/slogfield"
	"github.com/z5labs/harbor/server"
	"github.com/z5labs/harbor/webapp"
)

// State is a [Supervisor] lifecycle state.
type State int

const (
	StateConfigured State = iota
	StateStarting
	StateRunning
	StateStoppingGraceful
	StateStoppingOnFailure
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "Configured"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStoppingGraceful:
		return "StoppingGraceful"
	case StateStoppingOnFailure:
		return "StoppingOnFailure"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DefaultShutdownTimeout bounds the graceful part of stopping. Once it
// passes, remaining connections are closed.
const DefaultShutdownTimeout = 30 * time.Second

// ErrAlreadyRun is returned by every [Supervisor.Run] call but the first.
var ErrAlreadyRun = errors.New("supervisor has already been run")

// StopError aggregates the failures to release connectors or the
// application. Every connector is attempted regardless.
type StopError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e *StopError) Error() string {
	return fmt.Sprintf("failed to stop server: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e *StopError) Unwrap() error {
	return e.Cause
}

// FailureError is returned when the server was stopped by a failure
// rather than a termination request.
type FailureError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e *FailureError) Error() string {
	return fmt.Sprintf("server stopped on failure: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e *FailureError) Unwrap() error {
	return e.Cause
}

// Connector is the part of [server.Connector] the supervisor drives.
type Connector interface {
	Name() string
	Init(context.Context) error
	Bind(context.Context) error
	Serve(context.Context) error
	Stop(context.Context) error
}

// Application is the part of [webapp.Application] the supervisor drives.
type Application interface {
	Start(context.Context) error
	Stop(context.Context) error
	FatalOnFailure() bool
	Failure() error
	OnStateChange(func(from, to webapp.State))
}

// Option configures a [Supervisor].
type Option func(*Supervisor)

// Logger sets the supervisor logger.
func Logger(log *slog.Logger) Option {
	return func(s *Supervisor) {
		s.log = log
	}
}

// ShutdownTimeout overrides [DefaultShutdownTimeout].
func ShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.shutdownTimeout = d
	}
}

// PostStop registers hooks which run once the supervisor is stopped,
// after the ones found in the run context, see [FromContext].
func PostStop(hooks ...Hook) Option {
	return func(s *Supervisor) {
		s.postStops = append(s.postStops, hooks...)
	}
}

// Supervisor runs a set of connectors and the hosted application as a
// unit.
type Supervisor struct {
	log             *slog.Logger
	conns           []Connector
	app             Application
	shutdownTimeout time.Duration
	postStops       multiHook

	ran atomic.Bool

	mu        sync.Mutex
	state     State
	observers []func(from, to State)

	stopOnce   sync.Once
	stopCh     chan struct{}
	stopReason State
	stopCause  error
}

// New returns a supervisor in [StateConfigured]. app may be nil.
func New(conns []Connector, app Application, opts ...Option) *Supervisor {
	s := &Supervisor{
		conns:           conns,
		app:             app,
		shutdownTimeout: DefaultShutdownTimeout,
		state:           StateConfigured,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDiscard(s.log)
	return s
}

// ForServer builds the connectors of srv and supervises them together
// with its hosted application.
func ForServer(ctx context.Context, srv *server.Server, opts ...Option) (*Supervisor, error) {
	built, err := srv.Build(ctx)
	if err != nil {
		return nil, err
	}

	conns := make([]Connector, 0, len(built))
	for _, c := range built {
		conns = append(conns, c)
	}

	var app Application
	if a := srv.Application(); a != nil {
		app = a
	}
	return New(conns, app, opts...), nil
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnTransition registers f to be called after every state transition,
// on the goroutine causing it.
func (s *Supervisor) OnTransition(f func(from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, f)
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	observers := append([]func(from, to State){}, s.observers...)
	s.mu.Unlock()

	s.log.Info("server state changed", slogfield.State("from", from), slogfield.State("to", to))
	for _, f := range observers {
		f(from, to)
	}
}

// Stop requests a graceful shutdown. It never blocks and may be called
// any number of times from any goroutine. Only the first stop request,
// graceful or failure triggered, decides how the server stops. Stop has
// no effect before [Supervisor.Run] is called.
func (s *Supervisor) Stop() {
	if !s.ran.Load() {
		return
	}
	s.requestStop(StateStoppingGraceful, nil)
}

func (s *Supervisor) requestStop(reason State, cause error) {
	s.stopOnce.Do(func() {
		s.stopReason = reason
		s.stopCause = cause
		close(s.stopCh)
	})
}

// Run starts the server and blocks until ctx is cancelled, [Supervisor.Stop]
// is called or a fatal failure occurs. A graceful shutdown without stop
// errors returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	s.transition(StateStarting)
	if err := s.start(ctx); err != nil {
		s.log.ErrorContext(ctx, "failed to start server", slogfield.Error(err))
		stopErr := s.release(ctx)
		s.transition(StateFailed)
		return errors.Join(err, stopErr, s.runPostStop(ctx))
	}

	serveErrs := make(chan error, len(s.conns))
	tasks := make([]fixedpool.Task, 0, len(s.conns))
	for _, c := range s.conns {
		tasks = append(tasks, func(ctx context.Context) error {
			err := serve(ctx, c)
			if err == nil {
				return nil
			}
			err = fmt.Errorf("connector %s: %w", c.Name(), err)
			serveErrs <- err
			return err
		})
	}
	served := make(chan struct{})
	go func() {
		defer close(served)

		// serve errors are already reported through serveErrs
		_ = fixedpool.Wait(ctx, tasks...)
	}()

	s.transition(StateRunning)

	select {
	case <-ctx.Done():
		s.requestStop(StateStoppingGraceful, nil)
	case err := <-serveErrs:
		s.requestStop(StateStoppingOnFailure, err)
	case <-s.stopCh:
	}
	<-s.stopCh

	reason, cause := s.stopReason, s.stopCause
	s.transition(reason)
	if cause != nil {
		s.log.ErrorContext(ctx, "stopping server on failure", slogfield.Error(cause))
	}

	stopErr := s.release(ctx)
	<-served
	s.transition(StateStopped)

	var failErr error
	if reason == StateStoppingOnFailure {
		failErr = &FailureError{Cause: cause}
	}
	return errors.Join(failErr, stopErr, s.runPostStop(ctx))
}

// start initializes every connector, deploys the application and then
// binds the connectors which deferred binding.
func (s *Supervisor) start(ctx context.Context) error {
	for _, c := range s.conns {
		if err := c.Init(ctx); err != nil {
			return err
		}
	}

	if s.app != nil {
		if s.app.FatalOnFailure() {
			s.app.OnStateChange(func(from, to webapp.State) {
				if to != webapp.StateFailed {
					return
				}
				s.requestStop(StateStoppingOnFailure, s.app.Failure())
			})
		}

		err := s.app.Start(ctx)
		if err != nil && s.app.FatalOnFailure() {
			return err
		}
		if err != nil {
			s.log.WarnContext(ctx, "application failed to deploy, connectors will answer 503", slogfield.Error(err))
		}
	}

	for _, c := range s.conns {
		if err := c.Bind(ctx); err != nil {
			return err
		}
	}
	return nil
}

func serve(ctx context.Context, c Connector) (err error) {
	defer try.Recover(&err)

	return c.Serve(ctx)
}

// release stops every connector concurrently and then the application.
// Failures are collected, never short-circuited.
func (s *Supervisor) release(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	errs := make([]error, len(s.conns)+1)
	var wg sync.WaitGroup
	for i, c := range s.conns {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := stop(ctx, c)
			if err == nil {
				return
			}
			s.log.ErrorContext(ctx, "failed to stop connector", slogfield.Connector(c.Name()), slogfield.Error(err))
			errs[i] = fmt.Errorf("connector %s: %w", c.Name(), err)
		}()
	}
	wg.Wait()

	if s.app != nil {
		if err := s.app.Stop(ctx); err != nil {
			s.log.ErrorContext(ctx, "failed to stop application", slogfield.Error(err))
			errs[len(s.conns)] = fmt.Errorf("application: %w", err)
		}
	}

	err := errors.Join(errs...)
	if err == nil {
		return nil
	}
	return &StopError{Cause: err}
}

func stop(ctx context.Context, c Connector) (err error) {
	defer try.Recover(&err)

	return c.Stop(ctx)
}

func (s *Supervisor) runPostStop(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	hooks := multiHook{}
	if lc, ok := FromContext(ctx); ok {
		hooks = append(hooks, lc.PostStop())
	}
	hooks = append(hooks, s.postStops...)
	return hooks.Run(ctx)
}
