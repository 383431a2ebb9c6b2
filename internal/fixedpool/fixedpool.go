// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package fixedpool runs a fixed set of tasks to completion.
package fixedpool

import (
	"context"
	"errors"
	"sync"

	"github.com/z5labs/switchboard/internal/try"
)

// Task is a unit of work run by [Wait].
type Task func(context.Context) error

// Wait runs every task on its own goroutine and returns once all of
// them have returned. The first failure becomes the cancellation cause
// of the context the others see. Panics are reported as
// [try.PanicError]s and every error is joined.
func Wait(ctx context.Context, tasks ...Task) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	wg.Add(len(tasks))
	for _, task := range tasks {
		go func() {
			defer wg.Done()

			err := run(ctx, task)
			if err == nil {
				return
			}
			cancel(err)

			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func run(ctx context.Context, task Task) (err error) {
	defer try.Recover(&err)

	return task(ctx)
}
