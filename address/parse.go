// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Parse converts the textual form of a listen target, as found in
// config files and on the command line, into a Spec.
//
//	8080                 Port(8080)
//	:8080, host:8080     tcp Descriptor
//	tcp://host:8080      tcp Descriptor
//	tls://host:8443      tls Descriptor (ssl:// is accepted too)
//	unix:///run/s.sock   Path("/run/s.sock")
//
// Anything else is treated as a socket path.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Port(0), nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 65535 {
			return nil, fmt.Errorf("address: port out of range: %d", n)
		}
		return Port(n), nil
	}

	scheme, rest, hasScheme := strings.Cut(s, "://")
	if !hasScheme {
		if d, ok := parseHostPort("tcp", s); ok {
			return d, nil
		}
		return Path(s), nil
	}

	switch strings.ToLower(scheme) {
	case "unix":
		return Path(rest), nil
	case "tcp", "tls", "ssl":
		d, ok := parseHostPort(scheme, rest)
		if !ok {
			return nil, fmt.Errorf("address: invalid host:port in %q", s)
		}
		return d, nil
	default:
		return nil, UnknownTypeError{Type: scheme}
	}
}

func parseHostPort(typ, s string) (Descriptor, bool) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Descriptor{}, false
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return Descriptor{}, false
	}
	return Descriptor{Type: typ, Port: n, Host: host}, true
}
