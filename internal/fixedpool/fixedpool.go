// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package fixedpool runs a fixed set of tasks to completion where the
// first failure cancels the rest.
package fixedpool

import (
	"context"
	"errors"
	"sync"

	"github.com/z5labs/harbor/internal/try"
)

// Task is a unit of work run by [Wait].
type Task func(context.Context) error

// Wait runs every task in its own goroutine and blocks until all of them
// return. The context passed to the tasks is cancelled as soon as any task
// fails or panics. All task errors are joined.
func Wait(ctx context.Context, tasks ...Task) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	errCh := make(chan error, len(tasks))

	for _, task := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()

			err := run(ctx, t)
			if err == nil {
				return
			}
			errCh <- err
			cancel(err)
		}(task)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, t Task) (err error) {
	defer try.Recover(&err)

	return t(ctx)
}
