// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dispatch

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
)

// EnvDevelopment is the environment in which error details are
// written to responses.
const EnvDevelopment = "development"

// FinalOptions are handed to the [Finalizer] by the router.
type FinalOptions struct {
	Env     string
	OnError ErrorFunc
}

// Finalizer produces the response for a request which reached the end
// of the layer stack without a caller supplied continuation.
type Finalizer interface {
	Finalize(err error, w http.ResponseWriter, r *http.Request, opts FinalOptions)
}

// FinalizerFunc is a func implementation of [Finalizer].
type FinalizerFunc func(error, http.ResponseWriter, *http.Request, FinalOptions)

// Finalize implements the [Finalizer] interface.
func (f FinalizerFunc) Finalize(err error, w http.ResponseWriter, r *http.Request, opts FinalOptions) {
	f(err, w, r, opts)
}

// StatusCoder is implemented by errors which carry their own HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// DefaultFinalizer responds 404 "Cannot METHOD /path" without an error.
// With an error it calls OnError and responds with the status carried
// by the error, or 500. The error text is only exposed in the
// development environment.
var DefaultFinalizer Finalizer = FinalizerFunc(finalize)

func finalize(err error, w http.ResponseWriter, r *http.Request, opts FinalOptions) {
	if err == nil {
		body := fmt.Sprintf("Cannot %s %s", r.Method, html.EscapeString(pathOf(r)))
		writeFinal(w, http.StatusNotFound, body)
		return
	}

	if opts.OnError != nil {
		opts.OnError(err, w, r)
	}

	status := http.StatusInternalServerError
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code < 600 {
			status = code
		}
	}

	body := http.StatusText(status)
	if opts.Env == EnvDevelopment {
		body = html.EscapeString(err.Error())
	}
	writeFinal(w, status, body)
}

func writeFinal(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", "default-src 'none'")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func pathOf(r *http.Request) string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}
