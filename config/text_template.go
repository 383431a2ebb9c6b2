// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"text/template"
)

// RenderTextTemplateOption configures a [TextTemplateRenderer].
type RenderTextTemplateOption func(*TextTemplateRenderer)

// TemplateFunc makes f callable as name inside the config template.
func TemplateFunc(name string, f any) RenderTextTemplateOption {
	return func(ttr *TextTemplateRenderer) {
		ttr.funcs[name] = f
	}
}

// TemplateDelims replaces the {{ and }} action delimiters. An empty
// delimiter keeps the default.
func TemplateDelims(left, right string) RenderTextTemplateOption {
	return func(ttr *TextTemplateRenderer) {
		ttr.leftDelim = left
		ttr.rightDelim = right
	}
}

// TextTemplateRenderer reads a config document as a text/template and
// yields the rendered result. Rendering happens on the first Read, after
// which the underlying reader is closed if it implements io.Closer.
//
// It lets config files reference values such as certificate paths
// from the environment, e.g. {{ env "SWITCHBOARD_CERT_FILE" }}.
type TextTemplateRenderer struct {
	r          io.Reader
	leftDelim  string
	rightDelim string
	funcs      template.FuncMap

	render func() (*bytes.Reader, error)
}

// RenderTextTemplate returns a renderer for the template read from r.
func RenderTextTemplate(r io.Reader, opts ...RenderTextTemplateOption) *TextTemplateRenderer {
	ttr := &TextTemplateRenderer{
		r:     r,
		funcs: make(template.FuncMap),
	}
	for _, opt := range opts {
		opt(ttr)
	}
	ttr.render = sync.OnceValues(ttr.execute)
	return ttr
}

// TextTemplateParseError occurs when the config template fails to be parsed.
type TextTemplateParseError struct {
	Cause error
}

// Error implements the error interface.
func (e TextTemplateParseError) Error() string {
	return fmt.Sprintf("failed to parse config template: %s", e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e TextTemplateParseError) Unwrap() error {
	return e.Cause
}

// TextTemplateExecError occurs when the config template fails to
// execute, e.g. because a template func panicked.
type TextTemplateExecError struct {
	Cause error
}

// Error implements the error interface.
func (e TextTemplateExecError) Error() string {
	return fmt.Sprintf("failed to exec config template: %s", e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e TextTemplateExecError) Unwrap() error {
	return e.Cause
}

// Read implements the io.Reader interface.
func (ttr *TextTemplateRenderer) Read(b []byte) (int, error) {
	rendered, err := ttr.render()
	if err != nil {
		return 0, err
	}
	return rendered.Read(b)
}

func (ttr *TextTemplateRenderer) execute() (*bytes.Reader, error) {
	src, err := ttr.readSource()
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("config").
		Delims(ttr.leftDelim, ttr.rightDelim).
		Funcs(ttr.funcs).
		Parse(src)
	if err != nil {
		return nil, TextTemplateParseError{Cause: err}
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, nil)
	if err != nil {
		return nil, TextTemplateExecError{Cause: err}
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// readSource drains and closes the underlying reader. A failed close
// after a complete read is not an error.
func (ttr *TextTemplateRenderer) readSource() (string, error) {
	if c, ok := ttr.r.(io.Closer); ok {
		defer c.Close()
	}

	b, err := io.ReadAll(ttr.r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
