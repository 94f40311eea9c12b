// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package lifecycle

import (
	"context"
	"errors"
	"sync"
)

// Hook represents functionality that needs to be performed
// at a specific "time" relative to a [Supervisor] run.
type Hook interface {
	Run(context.Context) error
}

// HookFunc is a func variant of the [Hook] interface.
type HookFunc func(context.Context) error

// Run implements the [Hook] interface.
func (f HookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type multiHook []Hook

func (mh multiHook) Run(ctx context.Context) error {
	errs := make([]error, 0, len(mh))
	for _, h := range mh {
		err := h.Run(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// MultiHook returns a [Hook] that's the logical concatenation
// of the provided [Hook]s. They're applied sequentially and every
// hook runs even if an earlier one fails.
func MultiHook(hooks ...Hook) Hook {
	return multiHook(hooks)
}

// Context collects hooks registered while the server is being
// assembled, e.g. tracer provider shutdown.
type Context struct {
	mu        sync.Mutex
	postStops multiHook
}

// PostStop returns the [Hook] which is meant to be executed once the
// [Supervisor] reaches [StateStopped].
func (c *Context) PostStop() Hook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(multiHook(nil), c.postStops...)
}

// OnPostStop registers the given [Hook] to be executed after the
// server has stopped. This can be called multiple times and the hooks
// run in registration order.
func (c *Context) OnPostStop(hook Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.postStops = append(c.postStops, hook)
}

type key struct{}

var contextKey = &key{}

// NewContext returns a new [context.Context] containing the lifecycle [Context].
func NewContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey, c)
}

// FromContext tries to extract a lifecycle [Context] from the given [context.Context].
func FromContext(ctx context.Context) (*Context, bool) {
	lc, ok := ctx.Value(contextKey).(*Context)
	return lc, ok
}
