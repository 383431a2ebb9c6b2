// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/z5labs/switchboard/pkg/slogfield"

	"golang.org/x/net/http2"
)

// engine owns accepted connections of one protocol family.
type engine interface {
	// serve takes ownership of conn. It returns false if the engine
	// has been disabled, in which case the caller still owns conn.
	serve(conn net.Conn) bool

	// disable stops the engine from taking new connections. Connections
	// already handed over are left to finish.
	disable()

	// destroy releases every resource held by the engine.
	destroy() error
}

// connListener is a net.Listener fed by the accept hook instead of
// an OS socket, so http.Server can serve connections one at a time.
type connListener struct {
	addr  net.Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func newConnListener() *connListener {
	return &connListener{
		addr:  engineAddr{},
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// Accept implements the [net.Listener] interface.
func (cl *connListener) Accept() (net.Conn, error) {
	select {
	case <-cl.done:
		return nil, net.ErrClosed
	case c := <-cl.conns:
		return c, nil
	}
}

// Close implements the [net.Listener] interface.
func (cl *connListener) Close() error {
	cl.once.Do(func() {
		close(cl.done)
	})
	return nil
}

// Addr implements the [net.Listener] interface.
func (cl *connListener) Addr() net.Addr {
	return cl.addr
}

func (cl *connListener) hand(c net.Conn) bool {
	select {
	case <-cl.done:
		return false
	default:
	}
	select {
	case <-cl.done:
		return false
	case cl.conns <- c:
		return true
	}
}

type engineAddr struct{}

func (engineAddr) Network() string { return "switchboard" }
func (engineAddr) String() string  { return "switchboard" }

// httpEngine serves HTTP/1.x on plaintext or already handshaken TLS
// connections.
type httpEngine struct {
	srv *http.Server
	cl  *connListener
}

func newHTTPEngine(baseCtx context.Context, h http.Handler, log *slog.Logger) *httpEngine {
	e := &httpEngine{
		srv: &http.Server{
			Handler: h,
			BaseContext: func(net.Listener) context.Context {
				return baseCtx
			},
			ErrorLog: slog.NewLogLogger(log.Handler(), slog.LevelWarn),
			// h2 connections never reach this server.
			TLSNextProto: make(map[string]func(*http.Server, *tls.Conn, http.Handler)),
		},
		cl: newConnListener(),
	}
	go func() {
		err := e.srv.Serve(e.cl)
		if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http engine stopped unexpectedly", slogfield.Error(err))
		}
	}()
	return e
}

func (e *httpEngine) serve(conn net.Conn) bool {
	return e.cl.hand(conn)
}

func (e *httpEngine) disable() {
	e.cl.Close()
}

func (e *httpEngine) destroy() error {
	e.cl.Close()
	return e.srv.Close()
}

// tlsEngine terminates TLS and then serves HTTP/2 when negotiated via
// ALPN, falling back to HTTP/1.1 when allowed.
type tlsEngine struct {
	baseCtx   context.Context
	cfg       *tls.Config
	handler   http.Handler
	h2        *http2.Server
	h1        *httpEngine
	disabled  atomic.Bool
	onFailure func(net.Conn, error)
	onDrop    func(net.Conn, string)
}

type tlsEngineConfig struct {
	baseCtx    context.Context
	tls        *tls.Config
	handler    http.Handler
	http2      bool
	allowHTTP1 bool
	log        *slog.Logger
	onFailure  func(net.Conn, error)
	onDrop     func(net.Conn, string)
}

func newTLSEngine(cfg tlsEngineConfig) *tlsEngine {
	e := &tlsEngine{
		baseCtx:   cfg.baseCtx,
		cfg:       cfg.tls,
		handler:   cfg.handler,
		onFailure: cfg.onFailure,
		onDrop:    cfg.onDrop,
	}
	switch {
	case cfg.http2 && cfg.allowHTTP1:
		e.cfg.NextProtos = []string{http2.NextProtoTLS, "http/1.1"}
	case cfg.http2:
		e.cfg.NextProtos = []string{http2.NextProtoTLS}
	default:
		e.cfg.NextProtos = []string{"http/1.1"}
	}
	if cfg.http2 {
		e.h2 = &http2.Server{}
	}
	if !cfg.http2 || cfg.allowHTTP1 {
		e.h1 = newHTTPEngine(cfg.baseCtx, cfg.handler, cfg.log)
	}
	return e
}

func (e *tlsEngine) serve(conn net.Conn) bool {
	if e.disabled.Load() {
		return false
	}
	go e.handshake(conn)
	return true
}

func (e *tlsEngine) handshake(conn net.Conn) {
	tc := tls.Server(conn, e.cfg)
	err := tc.HandshakeContext(e.baseCtx)
	if err != nil {
		tc.Close()
		e.onFailure(conn, err)
		return
	}

	proto := tc.ConnectionState().NegotiatedProtocol
	if proto == http2.NextProtoTLS && e.h2 != nil {
		var base *http.Server
		if e.h1 != nil {
			base = e.h1.srv
		}
		e.h2.ServeConn(tc, &http2.ServeConnOpts{
			Context:    e.baseCtx,
			Handler:    e.handler,
			BaseConfig: base,
		})
		return
	}
	if e.h1 == nil {
		tc.Close()
		e.onDrop(conn, dropNoProto)
		return
	}
	if !e.h1.serve(tc) {
		tc.Close()
		e.onDrop(conn, dropClosed)
	}
}

func (e *tlsEngine) disable() {
	e.disabled.Store(true)
	if e.h1 != nil {
		e.h1.disable()
	}
}

func (e *tlsEngine) destroy() error {
	e.disable()
	if e.h1 != nil {
		return e.h1.destroy()
	}
	return nil
}
