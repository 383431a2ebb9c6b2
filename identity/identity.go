// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package identity stores per hostname TLS certificates and answers
// Server Name Indication lookups.
package identity

import (
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Identity binds a certificate to the hostname it is served for.
type Identity struct {
	Hostname    string
	Certificate *tls.Certificate
}

// NoCertificateError is returned from [Store.GetCertificate] when a
// client asks for a hostname which has no registered identity.
type NoCertificateError struct {
	Hostname string
}

// Error implements the [error] interface.
func (e NoCertificateError) Error() string {
	return fmt.Sprintf("identity: no certificate for hostname: %s", e.Hostname)
}

// InvalidCredentialError wraps failures to materialize a [Credential].
type InvalidCredentialError struct {
	Hostname string
	Cause    error
}

// Error implements the [error] interface.
func (e InvalidCredentialError) Error() string {
	return fmt.Sprintf("identity: invalid credential for hostname: %s: %s", e.Hostname, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e InvalidCredentialError) Unwrap() error {
	return e.Cause
}

// Store maps hostnames to certificates. The zero value is ready to use.
//
// Hostnames are compared case-insensitively and a trailing dot is
// ignored. The last identity stored for a hostname wins.
type Store struct {
	mu    sync.RWMutex
	certs map[string]*tls.Certificate
}

// Add materializes cred and stores it for hostname.
func (s *Store) Add(hostname string, cred Credential) error {
	if cred == nil {
		return InvalidCredentialError{Hostname: hostname, Cause: ErrNilCredential}
	}
	cert, err := cred.TLSCertificate()
	if err != nil {
		return InvalidCredentialError{Hostname: hostname, Cause: err}
	}
	s.Set(Identity{Hostname: hostname, Certificate: cert})
	return nil
}

// Set stores id, replacing any identity for the same hostname.
func (s *Store) Set(id Identity) {
	key := normalize(id.Hostname)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.certs == nil {
		s.certs = make(map[string]*tls.Certificate)
	}
	s.certs[key] = id.Certificate
}

// Remove deletes the identity for hostname, if any.
func (s *Store) Remove(hostname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certs, normalize(hostname))
}

// Lookup returns the certificate stored for hostname.
func (s *Store) Lookup(hostname string) (*tls.Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[normalize(hostname)]
	return cert, ok
}

// Clear removes every identity.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.certs)
}

// Len reports the number of stored identities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs)
}

// Hostnames returns the stored hostnames in sorted order.
func (s *Store) Hostnames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.certs))
	for name := range s.certs {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// GetCertificate has the signature of [tls.Config.GetCertificate].
//
// A ClientHello without a server name yields (nil, nil) so crypto/tls
// falls back to the static certificates of the config. A server name
// without a stored identity fails the handshake with a [NoCertificateError].
func (s *Store) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if hello.ServerName == "" {
		return nil, nil
	}
	cert, ok := s.Lookup(hello.ServerName)
	if !ok {
		return nil, NoCertificateError{Hostname: hello.ServerName}
	}
	return cert, nil
}

func normalize(hostname string) string {
	return strings.TrimSuffix(strings.ToLower(hostname), ".")
}
