// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sockets tracks accepted connections for shutdown accounting.
package sockets

import (
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// Option configures a [Registry].
type Option func(*Registry)

// OnChange registers f to be called with the registry size after
// every track or untrack. f runs with the registry locked, so reported
// sizes arrive in order, and it must not call back into the registry.
func OnChange(f func(n int)) Option {
	return func(r *Registry) {
		r.onChange = f
	}
}

// Registry holds every live accepted connection, keyed by its remote
// endpoint.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	seq      atomic.Uint64
	onChange func(int)
}

// New initializes a [Registry].
func New(opts ...Option) *Registry {
	r := &Registry{
		conns:    make(map[string]*Conn),
		onChange: func(int) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Conn is a tracked connection. Closing it removes it from its
// registry exactly once.
type Conn struct {
	net.Conn

	key    string
	reg    *Registry
	once   sync.Once
	closed atomic.Bool
}

// Key returns the registry key of c.
func (c *Conn) Key() string {
	return c.key
}

// Closed reports whether Close has been called on c.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close closes the underlying connection and untracks it.
func (c *Conn) Close() error {
	c.closed.Store(true)
	c.once.Do(func() {
		c.reg.untrack(c)
	})
	return c.Conn.Close()
}

// Track registers conn and returns the tracked wrapper, which must be
// used in place of conn from now on.
//
// TCP peers are keyed by "ip:port". Unix socket peers have no port so
// their key gets a sequence suffix, as do colliding TCP keys.
func (r *Registry) Track(conn net.Conn) *Conn {
	key, unique := keyOf(conn.RemoteAddr())

	r.mu.Lock()
	if !unique {
		key = key + "#" + strconv.FormatUint(r.seq.Add(1), 10)
	}
	if _, exists := r.conns[key]; exists {
		key = key + "#" + strconv.FormatUint(r.seq.Add(1), 10)
	}
	c := &Conn{
		Conn: conn,
		key:  key,
		reg:  r,
	}
	r.conns[key] = c
	r.onChange(len(r.conns))
	r.mu.Unlock()

	return c
}

func (r *Registry) untrack(c *Conn) {
	r.mu.Lock()
	cur, ok := r.conns[c.key]
	if !ok || cur != c {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c.key)
	r.onChange(len(r.conns))
	r.mu.Unlock()
}

// Len reports the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Keys returns the keys of every tracked connection in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.conns))
	for k := range r.conns {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// CloseAll forcibly closes every tracked connection and empties the
// registry.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	clear(r.conns)
	r.onChange(0)
	r.mu.Unlock()

	var errs []error
	for _, c := range conns {
		err := c.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func keyOf(addr net.Addr) (string, bool) {
	if addr == nil {
		return "unknown", false
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port)), true
	case *net.UnixAddr:
		return "unix:" + a.Name, false
	default:
		return addr.Network() + ":" + addr.String(), false
	}
}
