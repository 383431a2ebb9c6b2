// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dispatch

import (
	"net/http"
	"strings"
)

// Handler handles a request without a pending error. It either
// responds or calls next.
type Handler interface {
	Handle(c *Context, next Next)
}

// HandlerFunc is a func implementation of [Handler].
type HandlerFunc func(*Context, Next)

// Handle implements the [Handler] interface.
func (f HandlerFunc) Handle(c *Context, next Next) {
	f(c, next)
}

// ErrorHandler handles a request with a pending error. Calling next
// with nil clears the error.
type ErrorHandler interface {
	HandleError(err error, c *Context, next Next)
}

// ErrorHandlerFunc is a func implementation of [ErrorHandler].
type ErrorHandlerFunc func(error, *Context, Next)

// HandleError implements the [ErrorHandler] interface.
func (f ErrorHandlerFunc) HandleError(err error, c *Context, next Next) {
	f(err, c, next)
}

// Dispatchable is anything exposing a normalized dispatch entry point,
// such as a [Router].
type Dispatchable interface {
	Dispatch(c *Context)
}

// Mount adapts a [Dispatchable] into a [Handler]. The parent
// continuation becomes the explicit next of the nested dispatch.
func Mount(d Dispatchable) Handler {
	return HandlerFunc(func(c *Context, next Next) {
		d.Dispatch(c.child(next))
	})
}

// HTTP adapts a plain [http.Handler]. It never calls its continuation.
func HTTP(h http.Handler) Handler {
	return HandlerFunc(func(c *Context, _ Next) {
		h.ServeHTTP(c.Response, c.Request)
	})
}

// Method is the verb label recorded for a [Layer].
type Method string

const (
	MethodAll    Method = "ALL"
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

// Layer is a single entry of a [Router] stack.
type Layer struct {
	mountPath  string
	handler    Handler
	errHandler ErrorHandler
	method     Method
	webSocket  bool
}

func newLayer(path string, method Method, ws bool) Layer {
	return Layer{
		mountPath: strings.TrimSuffix(path, "/"),
		method:    method,
		webSocket: ws,
	}
}

// Path reports the mount path. The root is reported as "/".
func (l Layer) Path() string {
	if l.mountPath == "" {
		return "/"
	}
	return l.mountPath
}

// Method reports the verb label the layer was registered with. It is
// informational only and never checked during dispatch.
func (l Layer) Method() Method {
	return l.method
}

// IsWebSocket reports whether the layer only receives WebSocket requests.
func (l Layer) IsWebSocket() bool {
	return l.webSocket
}

// IsErrorHandler reports whether the layer only runs with a pending error.
func (l Layer) IsErrorHandler() bool {
	return l.errHandler != nil
}

// match reports whether path falls under the mount path. The prefix
// comparison ignores case and the prefix must end at "/", "." or the
// end of path.
func (l Layer) match(path string) bool {
	n := len(l.mountPath)
	if len(path) < n || !strings.EqualFold(path[:n], l.mountPath) {
		return false
	}
	if len(path) == n {
		return true
	}
	c := path[n]
	return c == '/' || c == '.'
}
