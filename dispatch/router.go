// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/z5labs/switchboard/internal/try"
	"github.com/z5labs/switchboard/pkg/noop"
	"github.com/z5labs/switchboard/pkg/otelslog"
	"github.com/z5labs/switchboard/pkg/slogfield"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a [Router].
type Option func(*Router)

// LogHandler sets the diagnostic sink. Records are discarded by default.
func LogHandler(h slog.Handler) Option {
	return func(rt *Router) {
		rt.log = otelslog.New(h)
	}
}

// Env is handed to the [Finalizer]. It defaults to [EnvDevelopment].
func Env(env string) Option {
	return func(rt *Router) {
		rt.env = env
	}
}

// Final replaces [DefaultFinalizer].
func Final(f Finalizer) Option {
	return func(rt *Router) {
		rt.final = f
	}
}

// TracerProvider sets where dispatch spans are created. The global
// provider is used by default.
func TracerProvider(tp trace.TracerProvider) Option {
	return func(rt *Router) {
		rt.tracer = tp.Tracer("dispatch")
	}
}

// Router is an ordered stack of path scoped layers. Layers may be
// appended while requests are being dispatched.
type Router struct {
	log    *slog.Logger
	env    string
	final  Finalizer
	tracer trace.Tracer

	mu    sync.RWMutex
	stack []Layer
}

// New initializes an empty [Router].
func New(opts ...Option) *Router {
	rt := &Router{
		log:    noop.Logger(),
		env:    EnvDevelopment,
		final:  DefaultFinalizer,
		tracer: otel.Tracer("dispatch"),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Use appends a request layer matching every verb under path.
// An empty path means "/".
func (rt *Router) Use(path string, h Handler) {
	rt.add(path, MethodAll, false, h, nil)
}

// UseError appends an error layer under path.
func (rt *Router) UseError(path string, h ErrorHandler) {
	rt.add(path, MethodAll, false, nil, h)
}

// Get appends a request layer labelled GET. The label is not enforced.
func (rt *Router) Get(path string, h Handler) {
	rt.add(path, MethodGet, false, h, nil)
}

// Post appends a request layer labelled POST. The label is not enforced.
func (rt *Router) Post(path string, h Handler) {
	rt.add(path, MethodPost, false, h, nil)
}

// Put appends a request layer labelled PUT. The label is not enforced.
func (rt *Router) Put(path string, h Handler) {
	rt.add(path, MethodPut, false, h, nil)
}

// Delete appends a request layer labelled DELETE. The label is not enforced.
func (rt *Router) Delete(path string, h Handler) {
	rt.add(path, MethodDelete, false, h, nil)
}

// WS appends a layer which only receives WebSocket requests.
func (rt *Router) WS(path string, h Handler) {
	rt.add(path, MethodGet, true, h, nil)
}

// WSError appends an error layer which only receives WebSocket requests.
func (rt *Router) WSError(path string, h ErrorHandler) {
	rt.add(path, MethodGet, true, nil, h)
}

func (rt *Router) add(path string, method Method, ws bool, h Handler, eh ErrorHandler) {
	if h == nil && eh == nil {
		panic("dispatch: nil handler")
	}
	if path == "" {
		path = "/"
	}
	l := newLayer(path, method, ws)
	l.handler = h
	l.errHandler = eh

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.stack = append(rt.stack, l)
}

// Layers returns a snapshot of the stack in dispatch order.
func (rt *Router) Layers() []Layer {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]Layer(nil), rt.stack...)
}

func (rt *Router) layer(i int) (Layer, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if i >= len(rt.stack) {
		return Layer{}, false
	}
	return rt.stack[i], true
}

// ServeHTTP implements the [http.Handler] interface.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.Dispatch(FromHTTP(w, r))
}

// ServeWebSocket receives upgraded connections from a listener.
func (rt *Router) ServeWebSocket(conn *websocket.Conn, r *http.Request) {
	rt.Dispatch(FromWebSocket(conn, r))
}

// Handle implements the [Handler] interface so a Router can be mounted
// inside another one. The parent continuation runs once this stack is
// exhausted.
func (rt *Router) Handle(c *Context, next Next) {
	rt.Dispatch(c.child(next))
}

// Dispatch walks the layer stack for c. It returns once a handler
// responds without calling its continuation or the stack is exhausted.
func (rt *Router) Dispatch(c *Context) {
	u := c.Request.URL
	if c.OriginalURL == nil && u != nil {
		orig := *u
		c.OriginalURL = &orig
	}

	var f frame
	if u != nil && u.IsAbs() {
		f.protoHost = u.Scheme + "://" + u.Host
	}

	if c.nested {
		rt.run(c, f)
		return
	}

	ctx, span := rt.tracer.Start(
		c.Request.Context(),
		"switchboard.dispatch",
		trace.WithAttributes(
			attribute.String("switchboard.request_id", c.ID.String()),
			attribute.String("switchboard.original_url", c.OriginalURL.String()),
			attribute.Bool("switchboard.websocket", c.IsWebSocket()),
		),
	)
	defer span.End()

	ctx = otelslog.ContextWithRequestID(ctx, c.ID.String())
	c.Request = c.Request.WithContext(ctx)
	rt.run(c, f)
}

// frame is the walk state carried from one step to the next.
type frame struct {
	index      int
	err        error
	protoHost  string
	removed    string
	rawPath    string
	slashAdded bool
}

func (rt *Router) run(c *Context, f frame) {
	u := c.Request.URL
	if f.slashAdded {
		u.Path = u.Path[1:]
		f.slashAdded = false
	}
	if f.removed != "" {
		u.Path = f.removed + u.Path
		u.RawPath = f.rawPath
		f.removed = ""
		f.rawPath = ""
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	l, ok := rt.layer(f.index)
	if !ok {
		rt.finish(c, f.err)
		return
	}

	skip := func() {
		f.index++
		rt.run(c, f)
	}

	if l.webSocket != c.IsWebSocket() {
		skip()
		return
	}
	if !l.match(path) {
		skip()
		return
	}
	if (f.err != nil) != l.IsErrorHandler() {
		skip()
		return
	}

	if l.mountPath != "" {
		f.removed = u.Path[:len(l.mountPath)]
		f.rawPath = u.RawPath
		u.Path = u.Path[len(l.mountPath):]
		u.RawPath = ""
		if f.protoHost == "" && !strings.HasPrefix(u.Path, "/") {
			u.Path = "/" + u.Path
			f.slashAdded = true
		}
	}

	var called atomic.Bool
	next := func(err error) {
		if !called.CompareAndSwap(false, true) {
			return
		}
		nf := f
		nf.index++
		nf.err = err
		rt.run(c, nf)
	}

	pending := f.err
	err := try.Call(func() {
		if pending != nil {
			l.errHandler.HandleError(pending, c, next)
			return
		}
		l.handler.Handle(c, next)
	})
	if err != nil {
		rt.log.ErrorContext(
			c.Request.Context(),
			"recovered from panic in handler",
			slogfield.RequestID(c.ID.String()),
			slogfield.Path(l.Path()),
			slogfield.Error(err),
		)
		next(panicked(err))
	}
}

// panicked turns a recovered panic into the pending error. A handler
// which panics with an error forwards that error unchanged.
func panicked(err error) error {
	var perr PanicError
	if !errors.As(err, &perr) {
		return err
	}
	if e, ok := perr.Value.(error); ok {
		return e
	}
	return perr
}

// finish is the terminal step of a walk.
func (rt *Router) finish(c *Context, err error) {
	if c.next != nil {
		c.next(err)
		return
	}

	ctx := c.Request.Context()
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if c.IsWebSocket() {
		perr := ProtocolMismatchError{Path: c.OriginalURL.Path}
		rt.log.WarnContext(
			ctx,
			"closing unhandled websocket connection",
			slogfield.RequestID(c.ID.String()),
			slogfield.Error(perr),
		)
		c.WebSocket.Close()
		return
	}

	onError := c.onError
	if onError == nil {
		onError = rt.logError
	}
	rt.final.Finalize(err, c.Response, c.Request, FinalOptions{
		Env:     rt.env,
		OnError: onError,
	})
}

func (rt *Router) logError(err error, w http.ResponseWriter, r *http.Request) {
	rt.log.ErrorContext(
		r.Context(),
		"unhandled error",
		slogfield.Path(r.URL.Path),
		slogfield.Error(err),
	)
}
