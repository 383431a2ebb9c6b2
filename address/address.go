// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package address normalizes listen targets into canonical descriptors.
//
// A listen target may be given as a bare port, a socket path, a
// [Descriptor], a [Func] which computes one of those from the owning
// listener or a [List] of any of them. Every resolved [Target] carries an
// ID which is stable across equivalent specs, so listeners can use it
// as the key for idempotent (re)binding.
package address

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind tags a bound listener with the kind of traffic it terminates.
type Kind string

const (
	// KindTCP listeners carry plaintext traffic.
	KindTCP Kind = "tcp"

	// KindTLS listeners carry encrypted traffic.
	KindTLS Kind = "tls"
)

// Spec is any value accepted by [Resolve].
type Spec interface {
	isSpec()
}

// Port is a bare TCP port. Port 0 requests an ephemeral port.
type Port int

func (Port) isSpec() {}

// Path is a filesystem path for a unix domain socket.
type Path string

func (Path) isSpec() {}

// Descriptor is the long form of a listen target.
//
// Path wins over Port and Host when both are set. Hostname is an alias
// for Host and is only consulted when Host is empty.
type Descriptor struct {
	Type     string
	Port     int
	Host     string
	Hostname string
	Path     string
}

func (Descriptor) isSpec() {}

// Func computes a Spec from the listener which owns it.
type Func func(owner any) Spec

func (Func) isSpec() {}

// List is resolved element by element.
type List []Spec

func (List) isSpec() {}

// Addr is the resolved address of a listen target.
type Addr struct {
	Port *int   `json:"port,omitempty"`
	Host string `json:"host,omitempty"`
	Path string `json:"path,omitempty"`
}

// Target is a fully resolved listen target.
type Target struct {
	// ID is the JSON serialization of Address.
	ID      string
	Kind    Kind
	Address Addr
}

// Network returns the network name to pass to [net.Listen].
func (t Target) Network() string {
	if t.Address.Path != "" {
		return "unix"
	}
	return "tcp"
}

// ListenAddress returns the address to pass to [net.Listen].
func (t Target) ListenAddress() string {
	if t.Address.Path != "" {
		return t.Address.Path
	}
	port := 0
	if t.Address.Port != nil {
		port = *t.Address.Port
	}
	return net.JoinHostPort(t.Address.Host, strconv.Itoa(port))
}

// UnknownTypeError is returned when a [Descriptor] names a type which
// is neither tcp nor tls.
type UnknownTypeError struct {
	Type string
}

// Error implements the [error] interface.
func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("address: unknown listener type: %q", e.Type)
}

// ErrNilFunc is returned when a [Func] spec is nil.
var ErrNilFunc = errors.New("address: nil func spec")

// maxFuncDepth bounds chains of Funcs returning Funcs.
const maxFuncDepth = 32

// Resolve normalizes spec into one or more targets. A nil spec resolves
// to an ephemeral tcp port.
//
// Every element of a [List] is resolved independently. Targets which
// resolved successfully are returned alongside the joined errors of
// the ones that did not.
func Resolve(owner any, spec Spec) ([]Target, error) {
	return resolve(owner, spec, 0)
}

func resolve(owner any, spec Spec, depth int) ([]Target, error) {
	switch s := spec.(type) {
	case nil:
		return []Target{newTarget(KindTCP, Addr{Port: intPtr(0)})}, nil
	case Port:
		return []Target{newTarget(KindTCP, Addr{Port: intPtr(int(s))})}, nil
	case Path:
		if s == "" {
			return resolve(owner, nil, depth)
		}
		return []Target{newTarget(KindTCP, Addr{Path: string(s)})}, nil
	case Descriptor:
		t, err := resolveDescriptor(s)
		if err != nil {
			return nil, err
		}
		return []Target{t}, nil
	case *Descriptor:
		if s == nil {
			return resolve(owner, nil, depth)
		}
		return resolve(owner, *s, depth)
	case Func:
		if s == nil {
			return nil, ErrNilFunc
		}
		if depth >= maxFuncDepth {
			return nil, fmt.Errorf("address: func specs nested deeper than %d", maxFuncDepth)
		}
		return resolve(owner, s(owner), depth+1)
	case List:
		var (
			targets []Target
			errs    []error
		)
		for _, elem := range s {
			ts, err := resolve(owner, elem, depth)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			targets = append(targets, ts...)
		}
		return targets, errors.Join(errs...)
	default:
		return nil, fmt.Errorf("address: unsupported spec type: %T", spec)
	}
}

func resolveDescriptor(d Descriptor) (Target, error) {
	kind, err := kindOf(d.Type)
	if err != nil {
		return Target{}, err
	}
	if d.Path != "" {
		return newTarget(kind, Addr{Path: d.Path}), nil
	}
	host := d.Host
	if host == "" {
		host = d.Hostname
	}
	return newTarget(kind, Addr{Port: intPtr(d.Port), Host: host}), nil
}

func kindOf(typ string) (Kind, error) {
	switch strings.ToLower(typ) {
	case "", "tcp":
		return KindTCP, nil
	case "tls", "ssl":
		return KindTLS, nil
	default:
		return "", UnknownTypeError{Type: typ}
	}
}

func newTarget(kind Kind, addr Addr) Target {
	// Addr only holds strings and an int so marshaling can not fail.
	b, _ := json.Marshal(addr)
	return Target{
		ID:      string(b),
		Kind:    kind,
		Address: addr,
	}
}

func intPtr(n int) *int {
	return &n
}
