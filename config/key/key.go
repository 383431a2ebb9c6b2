// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package key names config values, e.g. tls.certFile.
package key

import "strings"

// Keyer is implemented by every key type a Store accepts.
type Keyer interface {
	Key() string
}

// Name is a single key segment.
type Name string

// Key implements the [Keyer] interface.
func (k Name) Key() string {
	return string(k)
}

// Chain is a path of nested keys, outermost first.
type Chain []Keyer

// Key implements the [Keyer] interface. Segments are joined with ".".
func (k Chain) Key() string {
	var sb strings.Builder
	for i, seg := range k {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(seg.Key())
	}
	return sb.String()
}

// Split turns s into a Chain, dropping empty segments, so
// Split("TLS__CERTFILE", "__") is Chain{Name("TLS"), Name("CERTFILE")}.
func Split(s, sep string) Chain {
	var chain Chain
	for _, part := range strings.Split(s, sep) {
		if part == "" {
			continue
		}
		chain = append(chain, Name(part))
	}
	return chain
}
