// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package runtime runs a [listener.Listener] for the lifetime of a
// context and shuts it down once the context is cancelled.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/z5labs/switchboard/internal/fixedpool"
	"github.com/z5labs/switchboard/lifecycle"
	"github.com/z5labs/switchboard/listener"
	"github.com/z5labs/switchboard/pkg/noop"
	"github.com/z5labs/switchboard/pkg/slogfield"
)

// DefaultDrainTimeout is how long a graceful shutdown waits for
// accepted connections to finish before closing them.
const DefaultDrainTimeout = 10 * time.Second

const drainPollInterval = 50 * time.Millisecond

// Option configures a [Runtime].
type Option func(*Runtime)

// ForceClose skips draining: accepted connections are closed as soon
// as the context is cancelled.
func ForceClose(force bool) Option {
	return func(r *Runtime) {
		r.force = force
	}
}

// DrainTimeout bounds how long a graceful shutdown waits for accepted
// connections to finish.
func DrainTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.drainTimeout = d
	}
}

// Background runs task next to the listener. A failing task stops the
// runtime.
func Background(task func(context.Context) error) Option {
	return func(r *Runtime) {
		r.tasks = append(r.tasks, task)
	}
}

// LogHandler sets the diagnostic sink. Records are discarded by default.
func LogHandler(h slog.Handler) Option {
	return func(r *Runtime) {
		r.log = slog.New(h)
	}
}

// Runtime owns a [listener.Listener] while it runs.
type Runtime struct {
	l            *listener.Listener
	force        bool
	drainTimeout time.Duration
	tasks        []fixedpool.Task
	log          *slog.Logger
}

// New initializes a [Runtime] for l.
func New(l *listener.Listener, opts ...Option) *Runtime {
	r := &Runtime{
		l:            l,
		drainTimeout: DefaultDrainTimeout,
		log:          noop.Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is cancelled or a background task fails, then
// shuts the listener down.
//
// A graceful shutdown closes the listener, waits for accepted
// connections to finish up to the drain timeout and destroys it. With
// [ForceClose] the listener is destroyed right away. When ctx carries a
// [lifecycle.Context] the listener is also destroyed as a post run
// hook.
func (r *Runtime) Run(ctx context.Context) error {
	if lc, ok := lifecycle.FromContext(ctx); ok {
		lc.OnPostRun(lifecycle.HookFunc(r.l.Destroy))
	}

	tasks := append([]fixedpool.Task{r.waitAndShutdown}, r.tasks...)
	return withoutCanceled(fixedpool.Wait(ctx, tasks...))
}

// withoutCanceled drops context.Canceled from a joined error tree so
// the failure which triggered the cancellation is what gets reported.
func withoutCanceled(err error) error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var errs []error
		for _, e := range joined.Unwrap() {
			if e = withoutCanceled(e); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runtime) waitAndShutdown(ctx context.Context) error {
	<-ctx.Done()

	shutdownCtx := context.WithoutCancel(ctx)
	if r.force {
		r.log.InfoContext(shutdownCtx, "destroying listener")
		return r.l.Destroy(shutdownCtx)
	}

	r.log.InfoContext(shutdownCtx, "closing listener", slogfield.Int("sockets", r.l.Sockets()))
	err := r.l.Close(shutdownCtx)
	if err != nil {
		return errors.Join(err, r.l.Destroy(shutdownCtx))
	}

	if !r.drain() {
		r.log.WarnContext(
			shutdownCtx,
			"drain timeout exceeded, closing remaining connections",
			slogfield.Int("sockets", r.l.Sockets()),
			slogfield.Duration("timeout", r.drainTimeout),
		)
	}
	return r.l.Destroy(shutdownCtx)
}

// drain reports whether every accepted connection finished in time.
func (r *Runtime) drain() bool {
	deadline := time.NewTimer(r.drainTimeout)
	defer deadline.Stop()

	tick := time.NewTicker(drainPollInterval)
	defer tick.Stop()

	for {
		if r.l.Sockets() == 0 {
			return true
		}
		select {
		case <-deadline.C:
			return r.l.Sockets() == 0
		case <-tick.C:
		}
	}
}
