// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package identity

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
)

// ErrNilCredential is the cause reported when a nil [Credential] is added.
var ErrNilCredential = errors.New("identity: nil credential")

// ErrNoCertificate is returned when credential material contains no
// certificate.
var ErrNoCertificate = errors.New("identity: credential has no certificate")

// Credential is raw or prebuilt TLS material which can be turned into
// a certificate ready for serving.
type Credential interface {
	TLSCertificate() (*tls.Certificate, error)
}

// CredentialFunc is a func implementation of [Credential].
type CredentialFunc func() (*tls.Certificate, error)

// TLSCertificate implements the [Credential] interface.
func (f CredentialFunc) TLSCertificate() (*tls.Certificate, error) {
	return f()
}

// Certificate wraps an already built certificate.
type Certificate struct {
	Cert *tls.Certificate
}

// TLSCertificate implements the [Credential] interface.
func (c Certificate) TLSCertificate() (*tls.Certificate, error) {
	if c.Cert == nil || len(c.Cert.Certificate) == 0 {
		return nil, ErrNoCertificate
	}
	return c.Cert, nil
}

// PEM is PEM encoded credential material. Certificates found in CA are
// appended to the served chain after the leaf.
type PEM struct {
	Cert []byte
	Key  []byte
	CA   []byte
}

// TLSCertificate implements the [Credential] interface.
func (p PEM) TLSCertificate() (*tls.Certificate, error) {
	cert, err := tls.X509KeyPair(p.Cert, p.Key)
	if err != nil {
		return nil, err
	}
	chain, err := decodeCertificates(p.CA)
	if err != nil {
		return nil, err
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return &cert, nil
}

// Files names PEM encoded credential material on disk. CAFile is optional.
type Files struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// TLSCertificate implements the [Credential] interface.
func (f Files) TLSCertificate() (*tls.Certificate, error) {
	certPEM, err := os.ReadFile(f.CertFile)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(f.KeyFile)
	if err != nil {
		return nil, err
	}
	var caPEM []byte
	if f.CAFile != "" {
		caPEM, err = os.ReadFile(f.CAFile)
		if err != nil {
			return nil, err
		}
	}
	return PEM{Cert: certPEM, Key: keyPEM, CA: caPEM}.TLSCertificate()
}

// KeyPair is parsed credential material.
type KeyPair struct {
	Leaf  *x509.Certificate
	Chain []*x509.Certificate
	Key   crypto.PrivateKey
}

// TLSCertificate implements the [Credential] interface.
func (kp KeyPair) TLSCertificate() (*tls.Certificate, error) {
	if kp.Leaf == nil {
		return nil, ErrNoCertificate
	}
	if kp.Key == nil {
		return nil, errors.New("identity: key pair has no private key")
	}
	cert := &tls.Certificate{
		Certificate: [][]byte{kp.Leaf.Raw},
		PrivateKey:  kp.Key,
		Leaf:        kp.Leaf,
	}
	for _, c := range kp.Chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

func decodeCertificates(b []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for len(b) > 0 {
		var block *pem.Block
		block, b = pem.Decode(b)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, nil
}
