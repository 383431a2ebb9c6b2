// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dispatch

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Next advances dispatch to the following layer. A nil error clears
// any pending error, a non-nil error becomes the pending error.
type Next func(error)

// ErrorFunc receives the error which reached the end of the layer
// stack of a top level dispatch.
type ErrorFunc func(err error, w http.ResponseWriter, r *http.Request)

// Context is the normalized form of a single request travelling
// through a [Router].
type Context struct {
	ID uuid.UUID

	Request  *http.Request
	Response http.ResponseWriter

	// WebSocket is set when the request completed a WebSocket upgrade.
	// Response is nil in that case.
	WebSocket *websocket.Conn

	// OriginalURL is the request URL as received, before any mount
	// path was stripped.
	OriginalURL *url.URL

	next    Next
	onError ErrorFunc
	nested  bool
}

// ContextOption customizes a [Context] built by [FromHTTP] or [FromWebSocket].
type ContextOption func(*Context)

// WithNext sets the continuation invoked once the layer stack is
// exhausted, in place of the [Finalizer].
func WithNext(next Next) ContextOption {
	return func(c *Context) {
		c.next = next
	}
}

// WithOnError sets the callback the [Finalizer] reports errors to.
func WithOnError(f ErrorFunc) ContextOption {
	return func(c *Context) {
		c.onError = f
	}
}

// FromHTTP builds a [Context] for a plain HTTP request.
func FromHTTP(w http.ResponseWriter, r *http.Request, opts ...ContextOption) *Context {
	c := &Context{
		ID:       uuid.New(),
		Request:  r,
		Response: w,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromWebSocket builds a [Context] for an upgraded WebSocket connection
// and the request which initiated it.
func FromWebSocket(conn *websocket.Conn, r *http.Request, opts ...ContextOption) *Context {
	c := &Context{
		ID:        uuid.New(),
		Request:   r,
		WebSocket: conn,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsWebSocket reports whether the request is WebSocket typed.
func (c *Context) IsWebSocket() bool {
	return c.WebSocket != nil
}

// child shares everything with c except the continuation.
func (c *Context) child(next Next) *Context {
	cc := *c
	cc.next = next
	cc.nested = true
	return &cc
}
