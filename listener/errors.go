// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"errors"
	"fmt"
	"net"

	"github.com/z5labs/switchboard/address"
)

// ErrClosed is returned by operations on a closed [Listener].
var ErrClosed = errors.New("listener: closed")

// BindError reports a listen target which could not be bound.
type BindError struct {
	Target address.Target
	Cause  error
}

// Error implements the [error] interface.
func (e BindError) Error() string {
	return fmt.Sprintf("listener: failed to bind %s: %s", e.Target.ID, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e BindError) Unwrap() error {
	return e.Cause
}

// HandshakeError reports a failed TLS handshake. Only the affected
// connection is closed.
type HandshakeError struct {
	RemoteAddr net.Addr
	Cause      error
}

// Error implements the [error] interface.
func (e HandshakeError) Error() string {
	return fmt.Sprintf("listener: tls handshake with %s failed: %s", addrString(e.RemoteAddr), e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e HandshakeError) Unwrap() error {
	return e.Cause
}

// AcceptError reports a permanent failure of an accept loop. The
// listener for ID stops accepting but stays registered until unbound.
type AcceptError struct {
	ID    string
	Cause error
}

// Error implements the [error] interface.
func (e AcceptError) Error() string {
	return fmt.Sprintf("listener: accept on %s failed: %s", e.ID, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e AcceptError) Unwrap() error {
	return e.Cause
}

// UpgradeError reports a failed WebSocket upgrade.
type UpgradeError struct {
	Path  string
	Cause error
}

// Error implements the [error] interface.
func (e UpgradeError) Error() string {
	return fmt.Sprintf("listener: websocket upgrade of %s failed: %s", e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e UpgradeError) Unwrap() error {
	return e.Cause
}

// MetricsError reports a collector which could not be registered.
type MetricsError struct {
	Cause error
}

// Error implements the [error] interface.
func (e MetricsError) Error() string {
	return fmt.Sprintf("listener: failed to register metrics: %s", e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e MetricsError) Unwrap() error {
	return e.Cause
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	return addr.String()
}
