// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package listener accepts raw connections and hands them to the
// protocol engine matching the kind of the listen socket which
// accepted them.
//
// Plaintext listeners feed a plain HTTP/1.1 engine. TLS listeners feed
// either an HTTP/2 engine (with optional HTTP/1.1 fallback negotiated
// through ALPN) or, when HTTP/2 is disabled, a TLS HTTP/1.1 engine.
// Every HTTP family engine forwards WebSocket upgrade requests to a
// single shared WebSocket engine. Certificates are picked per client
// through Server Name Indication from the identities registered with
// [Listener.AddContext].
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
	"time"

	"github.com/z5labs/switchboard/address"
	"github.com/z5labs/switchboard/identity"
	"github.com/z5labs/switchboard/internal/sockets"
	"github.com/z5labs/switchboard/pkg/slogfield"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const maxAcceptDelay = time.Second

// activeListener is the side table entry of a bound OS listen socket.
type activeListener struct {
	target address.Target
	ln     net.Listener
	done   chan struct{}
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// Listener binds listen sockets and demultiplexes their connections.
type Listener struct {
	log    *slog.Logger
	listen ListenFunc

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active map[string]*activeListener
	locks  map[string]*idLock

	closeOnce sync.Once
	closed    atomic.Bool

	sockets    *sockets.Registry
	identities *identity.Store
	metrics    *metrics

	httpEngine engine
	tlsEngine  engine
	ws         *wsEngine

	reqHandler atomic.Pointer[http.Handler]
	wsHandler  atomic.Pointer[WebSocketHandler]

	errMu   sync.RWMutex
	onError []func(error)
}

// New initializes a [Listener].
//
// The plain HTTP engine is created unless disabled by WithHTTP(false).
// The HTTP/2 engine is created unless disabled by WithHTTP2(false). When
// it is disabled, a TLS HTTP/1.1 engine is created instead unless
// disabled by WithHTTPS(false). A WebSocket engine is always created.
func New(opts ...Option) (*Listener, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		log:        slog.New(o.logHandler),
		listen:     o.listen,
		baseCtx:    baseCtx,
		cancel:     cancel,
		active:     make(map[string]*activeListener),
		locks:      make(map[string]*idLock),
		identities: &identity.Store{},
		metrics:    m,
		ws:         newWSEngine(o.checkOrigin),
	}
	l.sockets = sockets.New(sockets.OnChange(func(n int) {
		l.metrics.active.Set(float64(n))
	}))

	var (
		creds CredentialsFunc
		h2    bool
	)
	switch {
	case o.http2:
		creds, h2 = o.http2Creds, true
	case o.https:
		creds = o.httpsCreds
	}
	// Resolved before any engine starts serving.
	var tlsCfg *tls.Config
	if o.http2 || o.https {
		tlsCfg, err = l.tlsConfig(creds)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	handler := otelhttp.NewHandler(
		http.HandlerFunc(l.serveHTTP),
		"switchboard",
		otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
	)

	if o.http {
		l.httpEngine = newHTTPEngine(baseCtx, handler, l.log)
	}
	if tlsCfg != nil {
		l.tlsEngine = newTLSEngine(tlsEngineConfig{
			baseCtx:    baseCtx,
			tls:        tlsCfg,
			handler:    handler,
			http2:      h2,
			allowHTTP1: o.allowHTTP1,
			log:        l.log,
			onFailure:  l.handshakeFailed,
			onDrop:     l.drop,
		})
	}

	if o.reqHandler != nil {
		l.OnRequest(o.reqHandler)
	}
	if o.wsHandler != nil {
		l.OnWebSocket(o.wsHandler)
	}

	for hostname, cred := range o.contexts {
		err := l.AddContext(hostname, cred)
		if err != nil {
			l.Destroy(context.Background())
			return nil, err
		}
	}
	for _, spec := range o.listenSpecs {
		err := l.Listen(context.Background(), spec)
		if err != nil {
			l.Destroy(context.Background())
			return nil, err
		}
	}
	return l, nil
}

func (l *Listener) tlsConfig(creds CredentialsFunc) (*tls.Config, error) {
	cfg := &tls.Config{}
	if creds != nil {
		base, err := creds(l)
		if err != nil {
			return nil, err
		}
		if base != nil {
			cfg = base.Clone()
		}
	}
	cfg.GetCertificate = l.identities.GetCertificate
	return cfg, nil
}

// OnRequest sets the handler for every HTTP request served by any engine.
func (l *Listener) OnRequest(h http.Handler) {
	l.reqHandler.Store(&h)
}

// OnWebSocket sets the handler for every completed WebSocket upgrade.
func (l *Listener) OnWebSocket(h WebSocketHandler) {
	l.wsHandler.Store(&h)
}

// OnError subscribes f to every per connection failure.
func (l *Listener) OnError(f func(error)) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	l.onError = append(l.onError, f)
}

func (l *Listener) emitError(ctx context.Context, err error) {
	l.log.WarnContext(ctx, "listener error", slogfield.Error(err))

	l.errMu.RLock()
	subs := l.onError
	l.errMu.RUnlock()
	for _, f := range subs {
		f(err)
	}
}

func (l *Listener) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		l.upgrade(w, r)
		return
	}
	h := l.reqHandler.Load()
	if h == nil {
		http.NotFound(w, r)
		return
	}
	(*h).ServeHTTP(w, r)
}

// AddContext registers a TLS identity for hostname. Raw credential
// material is materialized first.
func (l *Listener) AddContext(hostname string, cred identity.Credential) error {
	err := l.identities.Add(hostname, cred)
	if err != nil {
		return err
	}
	l.log.Debug("added tls identity", slogfield.Hostname(hostname))
	return nil
}

// RemoveContext removes the TLS identity for hostname.
func (l *Listener) RemoveContext(hostname string) {
	l.identities.Remove(hostname)
}

// Listen binds every target spec resolves to. An existing listener
// with the same ID is unbound first. Targets are bound in order and
// the errors of the ones which failed are joined.
func (l *Listener) Listen(ctx context.Context, spec address.Spec) error {
	if l.closed.Load() {
		return ErrClosed
	}

	targets, err := address.Resolve(l, spec)
	errs := []error{err}
	for _, target := range targets {
		err := l.bind(ctx, target)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Listener) bind(ctx context.Context, target address.Target) error {
	unlock := l.lockID(target.ID)
	defer unlock()

	err := l.unbind(ctx, target.ID)
	if err != nil {
		return err
	}

	ln, err := l.listen(ctx, target.Network(), target.ListenAddress())
	if err != nil {
		l.log.ErrorContext(ctx, "failed to bind", slogfield.ListenerID(target.ID), slogfield.Error(err))
		return BindError{Target: target, Cause: err}
	}

	al := &activeListener{
		target: target,
		ln:     ln,
		done:   make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		ln.Close()
		return ErrClosed
	}
	l.active[target.ID] = al
	l.mu.Unlock()

	l.log.InfoContext(
		ctx,
		"listening",
		slogfield.ListenerID(target.ID),
		slogfield.ListenerKind(string(target.Kind)),
		slogfield.String("addr", ln.Addr().String()),
	)

	go l.acceptLoop(al)
	return nil
}

// Unlisten unbinds every target the specs resolve to. Without any
// spec every active listener is unbound. Accepted connections are not
// affected.
func (l *Listener) Unlisten(ctx context.Context, specs ...address.Spec) error {
	if len(specs) == 0 {
		return l.UnlistenID(ctx, l.ids()...)
	}

	var (
		ids  []string
		errs []error
	)
	for _, spec := range specs {
		targets, err := address.Resolve(l, spec)
		if err != nil {
			errs = append(errs, err)
		}
		for _, t := range targets {
			ids = append(ids, t.ID)
		}
	}
	errs = append(errs, l.UnlistenID(ctx, ids...))
	return errors.Join(errs...)
}

// UnlistenID unbinds the listeners with the given IDs. Unknown IDs are
// ignored.
func (l *Listener) UnlistenID(ctx context.Context, ids ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			unlock := l.lockID(id)
			defer unlock()
			return l.unbind(gctx, id)
		})
	}
	return g.Wait()
}

// unbind must be called with the ID lock held.
func (l *Listener) unbind(ctx context.Context, id string) error {
	l.mu.Lock()
	al, ok := l.active[id]
	delete(l.active, id)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	err := al.ln.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		l.log.WarnContext(ctx, "failed to close listen socket", slogfield.ListenerID(id), slogfield.Error(err))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-al.done:
	}
	l.log.InfoContext(ctx, "stopped listening", slogfield.ListenerID(id))
	return nil
}

func (l *Listener) lockID(id string) func() {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &idLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()

		l.mu.Lock()
		defer l.mu.Unlock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, id)
		}
	}
}

func (l *Listener) ids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	return ids
}

func (l *Listener) acceptLoop(al *activeListener) {
	defer close(al.done)

	var tempDelay time.Duration
	for {
		conn, err := al.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if te, ok := err.(interface{ Temporary() bool }); ok && te.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > maxAcceptDelay {
					tempDelay = maxAcceptDelay
				}
				l.log.Warn(
					"accept failed, retrying",
					slogfield.ListenerID(al.target.ID),
					slogfield.Duration("delay", tempDelay),
					slogfield.Error(err),
				)
				time.Sleep(tempDelay)
				continue
			}
			l.emitError(l.baseCtx, AcceptError{ID: al.target.ID, Cause: err})
			return
		}
		tempDelay = 0
		l.onConnection(al, conn)
	}
}

// onConnection is the accept hook.
func (l *Listener) onConnection(al *activeListener, conn net.Conn) {
	tracked := l.sockets.Track(conn)
	kind := al.target.Kind
	l.metrics.accepted.WithLabelValues(string(kind)).Inc()

	var e engine
	switch kind {
	case address.KindTLS:
		e = l.tlsEngine
	case address.KindTCP:
		e = l.httpEngine
	}
	if e == nil {
		tracked.Close()
		l.drop(conn, dropNoEngine)
		return
	}
	if !e.serve(tracked) {
		tracked.Close()
		l.drop(conn, dropClosed)
	}
}

func (l *Listener) drop(conn net.Conn, reason string) {
	l.metrics.dropped.WithLabelValues(reason).Inc()
	l.log.Debug(
		"dropped connection",
		slogfield.RemoteAddr(conn.RemoteAddr()),
		slogfield.String("reason", reason),
	)
}

func (l *Listener) handshakeFailed(conn net.Conn, err error) {
	l.metrics.handshakeFailures.Inc()
	l.emitError(l.baseCtx, HandshakeError{RemoteAddr: conn.RemoteAddr(), Cause: err})
}

// Close disables every protocol engine, clears the TLS identities and
// unbinds every active listener. Accepted connections are left to
// finish on their own.
func (l *Listener) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed.Store(true)
		l.mu.Unlock()

		if l.httpEngine != nil {
			l.httpEngine.disable()
		}
		if l.tlsEngine != nil {
			l.tlsEngine.disable()
		}
		l.identities.Clear()

		err = l.UnlistenID(ctx, l.ids()...)
	})
	return err
}

// Destroy does everything Close does and then forcibly closes every
// accepted connection.
func (l *Listener) Destroy(ctx context.Context) error {
	errs := []error{l.Close(ctx)}
	errs = append(errs, l.sockets.CloseAll())
	if l.httpEngine != nil {
		errs = append(errs, l.httpEngine.destroy())
	}
	if l.tlsEngine != nil {
		errs = append(errs, l.tlsEngine.destroy())
	}
	l.cancel()
	return errors.Join(errs...)
}

// Addrs reports the bound address of every active listener by ID.
func (l *Listener) Addrs() map[string]net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	addrs := make(map[string]net.Addr, len(l.active))
	for id, al := range l.active {
		addrs[id] = al.ln.Addr()
	}
	return addrs
}

// Addr returns the bound address of the first target spec resolves to.
func (l *Listener) Addr(spec address.Spec) (net.Addr, bool) {
	targets, err := address.Resolve(l, spec)
	if err != nil || len(targets) == 0 {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	al, ok := l.active[targets[0].ID]
	if !ok {
		return nil, false
	}
	return al.ln.Addr(), true
}

// Sockets reports the number of tracked accepted connections.
func (l *Listener) Sockets() int {
	return l.sockets.Len()
}

// Healthy implements the health.Metric interface. A listener is healthy
// while it is open and has at least one bound socket.
func (l *Listener) Healthy(ctx context.Context) bool {
	if l.closed.Load() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active) > 0
}
