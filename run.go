// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package switchboard

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/z5labs/switchboard/config"
	"github.com/z5labs/switchboard/internal/try"
	"github.com/z5labs/switchboard/lifecycle"
)

// Runtime is anything which runs until its context is cancelled.
type Runtime interface {
	Run(context.Context) error
}

// RuntimeFunc is a func implementation of [Runtime].
type RuntimeFunc func(context.Context) error

// Run implements the [Runtime] interface.
func (f RuntimeFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Builder initializes a [Runtime] from a decoded config.
type Builder[T any] interface {
	Build(ctx context.Context, cfg T) (Runtime, error)
}

// BuilderFunc is a func implementation of [Builder].
type BuilderFunc[T any] func(context.Context, T) (Runtime, error)

// Build implements the [Builder] interface.
func (f BuilderFunc[T]) Build(ctx context.Context, cfg T) (Runtime, error) {
	return f(ctx, cfg)
}

// Run reads the config sources, decodes them into T, builds the
// [Runtime] and runs it. Later sources override earlier ones.
//
// The runtime runs with a [lifecycle.Context] in its context; every
// post run hook registered on it runs once the runtime returns.
func Run[T any](ctx context.Context, builder Builder[T], srcs ...config.Source) error {
	m, err := config.Read(srcs...)
	if err != nil {
		return ConfigReadError{Cause: err}
	}

	var cfg T
	err = m.Unmarshal(&cfg)
	if err != nil {
		return ConfigUnmarshalError{Cause: err}
	}

	lc := &lifecycle.Context{}
	ctx = lifecycle.NewContext(ctx, lc)

	rt, err := builder.Build(ctx, cfg)
	if err != nil {
		return errors.Join(BuildError{Cause: err}, lc.PostRun().Run(ctx))
	}

	// Hooks may be registered while rt runs so they are collected late.
	postRun := lifecycle.HookFunc(func(ctx context.Context) error {
		return lc.PostRun().Run(ctx)
	})
	err = WithPostRun(rt, postRun).Run(ctx)
	if err != nil {
		return RunError{Cause: err}
	}
	return nil
}

// RecoverPanics turns a panic inside rt into a [try.PanicError].
func RecoverPanics(rt Runtime) Runtime {
	return RuntimeFunc(func(ctx context.Context) (err error) {
		defer try.Recover(&err)

		return rt.Run(ctx)
	})
}

// NotifyOnSignal cancels the context passed to rt once one of the
// signals is received.
func NotifyOnSignal(rt Runtime, signals ...os.Signal) Runtime {
	return RuntimeFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return rt.Run(sigCtx)
	})
}

// WithPostRun runs hook after rt returns, even if rt panics.
// The hook error is joined with the one of rt.
func WithPostRun(rt Runtime, hook lifecycle.Hook) Runtime {
	return RuntimeFunc(func(ctx context.Context) (err error) {
		defer func() {
			if hook == nil {
				return
			}
			err = errors.Join(err, hook.Run(context.WithoutCancel(ctx)))
		}()

		return rt.Run(ctx)
	})
}
