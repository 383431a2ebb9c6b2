// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/z5labs/switchboard/config/key"
)

// DefaultEnvPrefix is the prefix used by [FromEnv] when none is given.
const DefaultEnvPrefix = "SWITCHBOARD_"

// Env represents a Source where its underlying values
// are extracted from environment variables.
//
// Only variables starting with the prefix are applied. The prefix is
// trimmed and the rest is split on "__" into nested keys, so
// SWITCHBOARD_TLS__CERTFILE sets tls.certfile.
type Env struct {
	prefix  string
	environ func() []string
}

// EnvOption configures an [Env] source.
type EnvOption func(*Env)

// EnvPrefix overrides [DefaultEnvPrefix].
func EnvPrefix(prefix string) EnvOption {
	return func(e *Env) {
		e.prefix = prefix
	}
}

// Environ replaces the function used to list environment variables.
func Environ(f func() []string) EnvOption {
	return func(e *Env) {
		e.environ = f
	}
}

// FromEnv returns a Source which will apply its config
// from the environment variables available to the
// current process.
func FromEnv(opts ...EnvOption) Env {
	e := Env{
		prefix:  DefaultEnvPrefix,
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, ok := strings.CutPrefix(k, src.prefix)
		if !ok || name == "" {
			continue
		}

		chain := key.Split(name, "__")
		if len(chain) == 0 {
			continue
		}

		err := store.Set(chain, v)
		if err != nil {
			return err
		}
	}
	return nil
}
