// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTextTemplate(t *testing.T) {
	t.Run("will substitute template funcs", func(t *testing.T) {
		t.Run("if they are registered", func(t *testing.T) {
			env := map[string]string{"CERT_FILE": "/etc/tls/a.crt"}
			r := RenderTextTemplate(
				strings.NewReader(`tls: {certFile: "{{ env "CERT_FILE" }}"}`),
				TemplateFunc("env", func(k string) string { return env[k] }),
			)

			b, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, `tls: {certFile: "/etc/tls/a.crt"}`, string(b))
		})
	})

	t.Run("will honor custom delimiters", func(t *testing.T) {
		t.Run("if the document uses them", func(t *testing.T) {
			r := RenderTextTemplate(
				strings.NewReader(`env: "<< stage >>" # {{ untouched }}`),
				TemplateDelims("<<", ">>"),
				TemplateFunc("stage", func() string { return "production" }),
			)

			b, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, `env: "production" # {{ untouched }}`, string(b))
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the underlying reader fails", func(t *testing.T) {
			readErr := errors.New("failed to read")
			r := RenderTextTemplate(readFunc(func([]byte) (int, error) {
				return 0, readErr
			}))

			_, err := io.ReadAll(r)
			assert.ErrorIs(t, err, readErr)
		})

		t.Run("if the template does not parse", func(t *testing.T) {
			r := RenderTextTemplate(strings.NewReader(`listen: [{{ port`))

			_, err := io.ReadAll(r)

			var perr TextTemplateParseError
			require.ErrorAs(t, err, &perr)
			assert.Error(t, perr.Unwrap())
		})

		t.Run("if a template func panics", func(t *testing.T) {
			r := RenderTextTemplate(
				strings.NewReader(`listen: [{{ port }}]`),
				TemplateFunc("port", func() string {
					panic("no port")
				}),
			)

			_, err := io.ReadAll(r)

			var eerr TextTemplateExecError
			require.ErrorAs(t, err, &eerr)
			assert.Error(t, eerr.Unwrap())
		})
	})
}
