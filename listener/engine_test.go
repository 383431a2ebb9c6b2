// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/z5labs/switchboard/address"
	"github.com/z5labs/switchboard/identity"
	"github.com/z5labs/switchboard/internal/testcert"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

var tlsLoopback = address.Descriptor{Type: "tls", Host: "127.0.0.1"}

func identityFor(t *testing.T, hostname string) identity.Identity {
	m := testcert.Generate(t, hostname)
	return identity.Identity{Hostname: hostname, Certificate: m.TLS}
}

func protoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	})
}

func clientTLS(serverName string, pool *x509.CertPool) *tls.Config {
	return &tls.Config{
		ServerName: serverName,
		RootCAs:    pool,
	}
}

func fetch(t *testing.T, rt http.RoundTripper, url string) (*http.Response, string, error) {
	t.Helper()

	client := &http.Client{Transport: rt, Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	return resp, string(b), err
}

func TestTLSEngine_SNI(t *testing.T) {
	t.Run("will fail the handshake", func(t *testing.T) {
		t.Run("if no identity matches the requested hostname", func(t *testing.T) {
			other := testcert.Generate(t, "b.example")
			errCh := make(chan error, 1)
			reg := prometheus.NewRegistry()

			l := newTestListener(
				t,
				WithRegisterer(reg),
				WithContext("b.example", identity.Certificate{Cert: other.TLS}),
			)
			l.OnError(func(err error) {
				select {
				case errCh <- err:
				default:
				}
			})
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))

			_, err := tls.Dial("tcp", mustAddr(t, l, tlsLoopback), clientTLS("a.example", testcert.Pool(other)))
			require.Error(t, err)

			select {
			case err := <-errCh:
				var herr HandshakeError
				if !assert.ErrorAs(t, err, &herr) {
					return
				}
				var cerr identity.NoCertificateError
				if assert.ErrorAs(t, err, &cerr) {
					assert.Equal(t, "a.example", cerr.Hostname)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("expected a handshake error")
			}
			assert.Equal(t, float64(1), testutil.ToFloat64(l.metrics.handshakeFailures))
		})

		t.Run("if the identity was removed", func(t *testing.T) {
			m := testcert.Generate(t, "a.example")
			l := newTestListener(t, WithContext("a.example", identity.Certificate{Cert: m.TLS}))
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))
			addr := mustAddr(t, l, tlsLoopback)

			conn, err := tls.Dial("tcp", addr, clientTLS("a.example", testcert.Pool(m)))
			require.NoError(t, err)
			conn.Close()

			l.RemoveContext("a.example")

			_, err = tls.Dial("tcp", addr, clientTLS("a.example", testcert.Pool(m)))
			assert.Error(t, err)
		})
	})

	t.Run("will serve the matching certificate", func(t *testing.T) {
		t.Run("if the identity is added after the listener is bound", func(t *testing.T) {
			a := testcert.Generate(t, "a.example")
			b := testcert.Generate(t, "b.example")

			l := newTestListener(t)
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))
			addr := mustAddr(t, l, tlsLoopback)

			_, err := tls.Dial("tcp", addr, clientTLS("a.example", testcert.Pool(a)))
			require.Error(t, err)

			require.NoError(t, l.AddContext("A.example.", identity.Certificate{Cert: a.TLS}))
			require.NoError(t, l.AddContext("b.example", identity.PEM{Cert: b.CertPEM, Key: b.KeyPEM}))

			for _, m := range []testcert.Material{a, b} {
				host := m.Leaf.DNSNames[0]
				conn, err := tls.Dial("tcp", addr, clientTLS(host, testcert.Pool(m)))
				if !assert.NoError(t, err, host) {
					continue
				}
				certs := conn.ConnectionState().PeerCertificates
				if assert.NotEmpty(t, certs) {
					assert.Equal(t, m.Leaf.Raw, certs[0].Raw)
				}
				conn.Close()
			}
		})

		t.Run("if the client sends no server name", func(t *testing.T) {
			m := testcert.Generate(t, "127.0.0.1")

			l := newTestListener(t, WithHTTP2Credentials(StaticCredentials(&tls.Config{
				Certificates: []tls.Certificate{*m.TLS},
			})))
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))

			conn, err := tls.Dial("tcp", mustAddr(t, l, tlsLoopback), clientTLS("127.0.0.1", testcert.Pool(m)))
			require.NoError(t, err)
			defer conn.Close()
			assert.Equal(t, m.Leaf.Raw, conn.ConnectionState().PeerCertificates[0].Raw)
		})
	})

	t.Run("will fail to create the listener", func(t *testing.T) {
		t.Run("if a context credential is invalid", func(t *testing.T) {
			_, err := New(WithContext("a.example", identity.PEM{Cert: []byte("nope")}))

			var ierr identity.InvalidCredentialError
			assert.ErrorAs(t, err, &ierr)
		})
	})
}

func TestTLSEngine_ALPN(t *testing.T) {
	m := testcert.Generate(t, "a.example")
	pool := testcert.Pool(m)
	cred := identity.Certificate{Cert: m.TLS}

	t.Run("will serve http/2", func(t *testing.T) {
		t.Run("if the client negotiates h2", func(t *testing.T) {
			l := newTestListener(t, WithContext("a.example", cred))
			l.OnRequest(protoHandler())
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))

			resp, body, err := fetch(t, &http2.Transport{
				TLSClientConfig: clientTLS("a.example", pool),
			}, "https://"+mustAddr(t, l, tlsLoopback)+"/")
			require.NoError(t, err)
			assert.Equal(t, 2, resp.ProtoMajor)
			assert.Equal(t, "HTTP/2.0", body)
		})
	})

	t.Run("will fall back to http/1.1", func(t *testing.T) {
		t.Run("if the client does not negotiate h2", func(t *testing.T) {
			l := newTestListener(t, WithContext("a.example", cred))
			l.OnRequest(protoHandler())
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))

			resp, body, err := fetch(t, &http.Transport{
				TLSClientConfig: clientTLS("a.example", pool),
			}, "https://"+mustAddr(t, l, tlsLoopback)+"/")
			require.NoError(t, err)
			assert.Equal(t, 1, resp.ProtoMajor)
			assert.Equal(t, "HTTP/1.1", body)
		})
	})

	t.Run("will drop the connection", func(t *testing.T) {
		t.Run("if http/1.1 is not allowed and the client does not negotiate h2", func(t *testing.T) {
			reg := prometheus.NewRegistry()
			l := newTestListener(t, WithContext("a.example", cred), WithAllowHTTP1(false), WithRegisterer(reg))
			l.OnRequest(protoHandler())
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))

			_, _, err := fetch(t, &http.Transport{
				TLSClientConfig: clientTLS("a.example", pool),
			}, "https://"+mustAddr(t, l, tlsLoopback)+"/")
			require.Error(t, err)

			assert.Eventually(t, func() bool {
				return testutil.ToFloat64(l.metrics.dropped.WithLabelValues(dropNoProto)) == 1
			}, 5*time.Second, 10*time.Millisecond)
		})
	})

	t.Run("will only serve http/1.1", func(t *testing.T) {
		t.Run("if http/2 is disabled", func(t *testing.T) {
			l := newTestListener(t, WithContext("a.example", cred), WithHTTP2(false))
			l.OnRequest(protoHandler())
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))
			addr := mustAddr(t, l, tlsLoopback)

			resp, body, err := fetch(t, &http.Transport{
				TLSClientConfig: clientTLS("a.example", pool),
			}, "https://"+addr+"/")
			require.NoError(t, err)
			assert.Equal(t, 1, resp.ProtoMajor)
			assert.Equal(t, "HTTP/1.1", body)

			_, _, err = fetch(t, &http2.Transport{
				TLSClientConfig: clientTLS("a.example", pool),
			}, "https://"+addr+"/")
			assert.Error(t, err)
		})
	})

	t.Run("will drop tls connections", func(t *testing.T) {
		t.Run("if every tls engine is disabled", func(t *testing.T) {
			reg := prometheus.NewRegistry()
			l := newTestListener(t, WithHTTP2(false), WithHTTPS(false), WithRegisterer(reg))
			require.NoError(t, l.Listen(context.Background(), tlsLoopback))

			_, err := tls.Dial("tcp", mustAddr(t, l, tlsLoopback), clientTLS("a.example", pool))
			require.Error(t, err)

			assert.Eventually(t, func() bool {
				return testutil.ToFloat64(l.metrics.dropped.WithLabelValues(dropNoEngine)) == 1
			}, 5*time.Second, 10*time.Millisecond)
		})
	})
}
