// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"

	"github.com/z5labs/switchboard/address"
	"github.com/z5labs/switchboard/identity"
	"github.com/z5labs/switchboard/pkg/noop"

	"github.com/prometheus/client_golang/prometheus"
)

// CredentialsFunc builds the TLS config of an encrypted engine. It is
// called once, from [New], with the listener under construction.
type CredentialsFunc func(*Listener) (*tls.Config, error)

// StaticCredentials returns a CredentialsFunc which always yields cfg.
func StaticCredentials(cfg *tls.Config) CredentialsFunc {
	return func(*Listener) (*tls.Config, error) {
		return cfg, nil
	}
}

// ListenFunc creates an OS listen socket.
type ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

type options struct {
	http        bool
	https       bool
	http2       bool
	allowHTTP1  bool
	httpsCreds  CredentialsFunc
	http2Creds  CredentialsFunc
	listen      ListenFunc
	listenSpecs []address.Spec
	contexts    map[string]identity.Credential
	checkOrigin func(*http.Request) bool
	reqHandler  http.Handler
	wsHandler   WebSocketHandler
	registerer  prometheus.Registerer
	logHandler  slog.Handler
}

// Option configures a [Listener].
type Option func(*options)

// WithHTTP toggles the plain HTTP engine. Enabled by default.
func WithHTTP(enabled bool) Option {
	return func(o *options) {
		o.http = enabled
	}
}

// WithHTTPS toggles the TLS HTTP/1.1 engine. It is only created when
// the HTTP/2 engine is disabled. Enabled by default.
func WithHTTPS(enabled bool) Option {
	return func(o *options) {
		o.https = enabled
	}
}

// WithHTTP2 toggles the HTTP/2 over TLS engine. Enabled by default and
// takes priority over the HTTPS engine.
func WithHTTP2(enabled bool) Option {
	return func(o *options) {
		o.http2 = enabled
	}
}

// WithAllowHTTP1 controls whether the HTTP/2 engine falls back to
// HTTP/1.1 for clients which do not negotiate h2. Enabled by default.
func WithAllowHTTP1(allow bool) Option {
	return func(o *options) {
		o.allowHTTP1 = allow
	}
}

// WithHTTPSCredentials sets the TLS config source of the HTTPS engine.
func WithHTTPSCredentials(f CredentialsFunc) Option {
	return func(o *options) {
		o.httpsCreds = f
	}
}

// WithHTTP2Credentials sets the TLS config source of the HTTP/2 engine.
func WithHTTP2Credentials(f CredentialsFunc) Option {
	return func(o *options) {
		o.http2Creds = f
	}
}

// WithListenFunc replaces the function used to open OS listen sockets.
//
// Default is [net.ListenConfig.Listen].
func WithListenFunc(f ListenFunc) Option {
	return func(o *options) {
		o.listen = f
	}
}

// WithListen binds spec as part of [New].
func WithListen(spec address.Spec) Option {
	return func(o *options) {
		o.listenSpecs = append(o.listenSpecs, spec)
	}
}

// WithContext registers a TLS identity as part of [New].
func WithContext(hostname string, cred identity.Credential) Option {
	return func(o *options) {
		o.contexts[hostname] = cred
	}
}

// WithWebSocketCheckOrigin sets the origin policy of WebSocket upgrades.
//
// Default rejects cross origin requests.
func WithWebSocketCheckOrigin(f func(*http.Request) bool) Option {
	return func(o *options) {
		o.checkOrigin = f
	}
}

// WithRequestHandler sets the request handler before any socket is
// bound. See [Listener.OnRequest].
func WithRequestHandler(h http.Handler) Option {
	return func(o *options) {
		o.reqHandler = h
	}
}

// WithWebSocketHandler sets the WebSocket handler before any socket is
// bound. See [Listener.OnWebSocket].
func WithWebSocketHandler(h WebSocketHandler) Option {
	return func(o *options) {
		o.wsHandler = h
	}
}

// WithRegisterer registers the listener metrics with reg.
//
// Metrics are still collected but never exported without one.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithLogHandler sets the handler for the listener's diagnostic logs,
// such as accept failures and dropped connections. By default nothing
// is logged.
func WithLogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

func defaultOptions() *options {
	var lc net.ListenConfig
	return &options{
		http:       true,
		https:      true,
		http2:      true,
		allowHTTP1: true,
		listen:     lc.Listen,
		contexts:   make(map[string]identity.Credential),
		logHandler: noop.LogHandler{},
	}
}
