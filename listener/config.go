// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"crypto/tls"
	"errors"

	"github.com/z5labs/switchboard/address"
	"github.com/z5labs/switchboard/config"
	"github.com/z5labs/switchboard/identity"
)

// FromConfig translates the config file schema into listener options.
// The Kubernetes and Env sections are not listener concerns and are
// ignored.
func FromConfig(cfg config.Listener) ([]Option, error) {
	var opts []Option
	if cfg.HTTP != nil {
		opts = append(opts, WithHTTP(*cfg.HTTP))
	}
	if cfg.HTTPS != nil {
		opts = append(opts, WithHTTPS(*cfg.HTTPS))
	}
	if cfg.HTTP2 != nil {
		opts = append(opts, WithHTTP2(*cfg.HTTP2))
	}
	if cfg.AllowHTTP1 != nil {
		opts = append(opts, WithAllowHTTP1(*cfg.AllowHTTP1))
	}

	if cfg.TLS.CertFile != "" || cfg.TLS.KeyFile != "" {
		cert, err := identity.Files{
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
			CAFile:   cfg.TLS.CAFile,
		}.TLSCertificate()
		if err != nil {
			return nil, err
		}
		creds := StaticCredentials(&tls.Config{
			Certificates: []tls.Certificate{*cert},
		})
		opts = append(opts, WithHTTP2Credentials(creds), WithHTTPSCredentials(creds))
	}

	for _, c := range cfg.Contexts {
		if c.Hostname == "" {
			return nil, errors.New("listener: tls context without hostname")
		}
		opts = append(opts, WithContext(c.Hostname, identity.Files{
			CertFile: c.CertFile,
			KeyFile:  c.KeyFile,
			CAFile:   c.CAFile,
		}))
	}

	var specs address.List
	for _, s := range cfg.Listen {
		spec, err := address.Parse(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) > 0 {
		opts = append(opts, WithListen(specs))
	}
	return opts, nil
}
