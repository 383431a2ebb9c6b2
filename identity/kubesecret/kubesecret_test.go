// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kubesecret

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/z5labs/switchboard/identity"
	"github.com/z5labs/switchboard/internal/testcert"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"
)

type storeSink struct {
	identity.Store
}

func (s *storeSink) AddContext(hostname string, cred identity.Credential) error {
	return s.Add(hostname, cred)
}

func (s *storeSink) RemoveContext(hostname string) {
	s.Remove(hostname)
}

func tlsSecret(t *testing.T, name string, labels, annotations map[string]string, hosts ...string) *corev1.Secret {
	m := testcert.Generate(t, hosts...)
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   "default",
			Labels:      labels,
			Annotations: annotations,
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			corev1.TLSCertKey:       m.CertPEM,
			corev1.TLSPrivateKeyKey: m.KeyPEM,
		},
	}
}

func TestSource_Load(t *testing.T) {
	t.Run("will add every hostname", func(t *testing.T) {
		t.Run("if the secret has the hostnames annotation", func(t *testing.T) {
			client := fake.NewSimpleClientset(
				tlsSecret(t, "a", nil, map[string]string{HostnamesAnnotation: "a.example, www.a.example"}, "a.example"),
			)

			var sink storeSink
			n, err := New(client, Namespace("default")).Load(context.Background(), &sink)
			require.Nil(t, err)
			assert.Equal(t, 2, n)
			assert.Equal(t, []string{"a.example", "www.a.example"}, sink.Hostnames())
		})

		t.Run("if the certificate carries dns names", func(t *testing.T) {
			client := fake.NewSimpleClientset(
				tlsSecret(t, "b", nil, nil, "b.example"),
			)

			var sink storeSink
			n, err := New(client).Load(context.Background(), &sink)
			require.Nil(t, err)
			assert.Equal(t, 1, n)

			_, ok := sink.Lookup("b.example")
			assert.True(t, ok)
		})
	})

	t.Run("will only load secrets", func(t *testing.T) {
		t.Run("if they match the label selector", func(t *testing.T) {
			client := fake.NewSimpleClientset(
				tlsSecret(t, "a", map[string]string{"switchboard.io/sni": "true"}, nil, "a.example"),
				tlsSecret(t, "b", nil, nil, "b.example"),
			)

			var sink storeSink
			_, err := New(client, LabelSelector("switchboard.io/sni=true")).Load(context.Background(), &sink)
			require.Nil(t, err)
			assert.Equal(t, []string{"a.example"}, sink.Hostnames())
		})

		t.Run("if they are of type kubernetes.io/tls", func(t *testing.T) {
			opaque := tlsSecret(t, "opaque", nil, nil, "o.example")
			opaque.Type = corev1.SecretTypeOpaque
			client := fake.NewSimpleClientset(opaque)

			var sink storeSink
			n, err := New(client).Load(context.Background(), &sink)
			require.Nil(t, err)
			assert.Equal(t, 0, n)
		})
	})

	t.Run("will return a SecretError", func(t *testing.T) {
		t.Run("if the private key is missing", func(t *testing.T) {
			broken := tlsSecret(t, "broken", nil, nil, "x.example")
			delete(broken.Data, corev1.TLSPrivateKeyKey)
			client := fake.NewSimpleClientset(
				broken,
				tlsSecret(t, "ok", nil, nil, "ok.example"),
			)

			var sink storeSink
			n, err := New(client).Load(context.Background(), &sink)

			var serr SecretError
			if !assert.ErrorAs(t, err, &serr) {
				return
			}
			assert.Equal(t, "broken", serr.Name)
			assert.Equal(t, 1, n)
		})
	})
}

func TestSource_Watch(t *testing.T) {
	t.Run("will track secrets", func(t *testing.T) {
		t.Run("if they are added and deleted", func(t *testing.T) {
			client := fake.NewSimpleClientset(
				tlsSecret(t, "a", nil, nil, "a.example"),
			)

			var once sync.Once
			watching := make(chan struct{})
			client.PrependWatchReactor("*", func(action clienttesting.Action) (bool, watch.Interface, error) {
				w, err := client.Tracker().Watch(action.GetResource(), action.GetNamespace())
				if err != nil {
					return false, nil, err
				}
				once.Do(func() { close(watching) })
				return true, w, nil
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var sink storeSink
			src := New(client, Namespace("default"))

			errCh := make(chan error, 1)
			go func() {
				errCh <- src.Watch(ctx, &sink)
			}()

			assert.Eventually(t, func() bool {
				_, ok := sink.Lookup("a.example")
				return ok
			}, 5*time.Second, 10*time.Millisecond)

			select {
			case <-watching:
			case <-time.After(5 * time.Second):
				t.Fatal("informer never started watching")
			}

			err := client.CoreV1().Secrets("default").Delete(ctx, "a", metav1.DeleteOptions{})
			require.Nil(t, err)

			assert.Eventually(t, func() bool {
				return sink.Len() == 0
			}, 5*time.Second, 10*time.Millisecond)

			cancel()
			assert.Nil(t, <-errCh)
		})
	})
}
