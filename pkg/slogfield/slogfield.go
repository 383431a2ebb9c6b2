// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield standardizes the attribute keys used across switchboard logs.
package slogfield

import (
	"log/slog"
	"net"
	"time"
)

// Any returns an slog.Attr for the supplied value.
func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Bool returns an slog.Attr for a bool.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// ListenerID is the canonical id of a bound listen target.
func ListenerID(id string) slog.Attr {
	return slog.String("listener_id", id)
}

// ListenerKind is the protocol tag of a listener, e.g. "tcp" or "tls".
func ListenerKind(kind string) slog.Attr {
	return slog.String("listener_kind", kind)
}

// RemoteAddr returns the peer address of a connection. A nil address
// is logged as an empty string.
func RemoteAddr(addr net.Addr) slog.Attr {
	if addr == nil {
		return slog.String("remote_addr", "")
	}
	return slog.String("remote_addr", addr.String())
}

// Hostname is a TLS server name.
func Hostname(name string) slog.Attr {
	return slog.String("hostname", name)
}

// RequestID identifies a single dispatch.
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Path is the request path as seen by the logging layer.
func Path(p string) slog.Attr {
	return slog.String("path", p)
}
