// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package kubesecret sources TLS identities from Kubernetes secrets of
// type kubernetes.io/tls.
//
// The hostnames a secret serves are read from the [HostnamesAnnotation]
// annotation, a comma separated list. Secrets without the annotation
// serve the DNS names found in their certificate.
package kubesecret

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/z5labs/switchboard/identity"
	"github.com/z5labs/switchboard/pkg/noop"
	"github.com/z5labs/switchboard/pkg/slogfield"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// HostnamesAnnotation lists the hostnames a secret is served for.
const HostnamesAnnotation = "switchboard.io/hostnames"

// Sink receives identities. *listener.Listener implements it.
type Sink interface {
	AddContext(hostname string, cred identity.Credential) error
	RemoveContext(hostname string)
}

// Source lists and watches TLS secrets.
type Source struct {
	client        kubernetes.Interface
	namespace     string
	labelSelector string
	resync        time.Duration
	log           *slog.Logger

	mu    sync.Mutex
	hosts map[string][]string
}

// Option configures a [Source].
type Option func(*Source)

// Namespace restricts the source to a single namespace. The default
// watches every namespace the client can see.
func Namespace(ns string) Option {
	return func(s *Source) {
		s.namespace = ns
	}
}

// LabelSelector restricts the source to secrets matching selector.
func LabelSelector(selector string) Option {
	return func(s *Source) {
		s.labelSelector = selector
	}
}

// Resync sets the informer resync period used by [Source.Watch].
func Resync(d time.Duration) Option {
	return func(s *Source) {
		s.resync = d
	}
}

// LogHandler sets the handler used for diagnostics.
func LogHandler(h slog.Handler) Option {
	return func(s *Source) {
		s.log = slog.New(h)
	}
}

// New initializes a [Source].
func New(client kubernetes.Interface, opts ...Option) *Source {
	s := &Source{
		client:    client,
		namespace: metav1.NamespaceAll,
		resync:    10 * time.Minute,
		log:       noop.Logger(),
		hosts:     make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SecretError reports a secret which could not be turned into identities.
type SecretError struct {
	Namespace string
	Name      string
	Cause     error
}

// Error implements the [error] interface.
func (e SecretError) Error() string {
	return fmt.Sprintf("kubesecret: secret %s/%s: %s", e.Namespace, e.Name, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e SecretError) Unwrap() error {
	return e.Cause
}

// Load lists the matching secrets once and adds their identities to
// sink. It returns the number of hostnames added. Secrets which fail
// to load are skipped and their errors joined.
func (s *Source) Load(ctx context.Context, sink Sink) (int, error) {
	list, err := s.client.CoreV1().Secrets(s.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: s.labelSelector,
	})
	if err != nil {
		return 0, fmt.Errorf("kubesecret: failed to list secrets: %w", err)
	}

	var (
		added int
		errs  []error
	)
	for i := range list.Items {
		n, err := s.apply(sink, &list.Items[i])
		added += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return added, errors.Join(errs...)
}

// Watch keeps sink in sync with the matching secrets until ctx is
// cancelled. Added and updated secrets replace the identities of their
// hostnames, deleted secrets remove them.
func (s *Source) Watch(ctx context.Context, sink Sink) error {
	factory := informers.NewSharedInformerFactoryWithOptions(
		s.client,
		s.resync,
		informers.WithNamespace(s.namespace),
		informers.WithTweakListOptions(func(lo *metav1.ListOptions) {
			lo.LabelSelector = s.labelSelector
		}),
	)
	informer := factory.Core().V1().Secrets().Informer()

	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) {
			s.onUpsert(ctx, sink, obj)
		},
		UpdateFunc: func(_, obj any) {
			s.onUpsert(ctx, sink, obj)
		},
		DeleteFunc: func(obj any) {
			if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
				obj = tomb.Obj
			}
			secret, ok := obj.(*corev1.Secret)
			if !ok {
				return
			}
			s.remove(sink, secret)
		},
	})
	if err != nil {
		return err
	}

	factory.Start(ctx.Done())
	defer factory.Shutdown()

	synced := factory.WaitForCacheSync(ctx.Done())
	for typ, ok := range synced {
		if !ok && ctx.Err() == nil {
			return fmt.Errorf("kubesecret: informer cache for %v failed to sync", typ)
		}
	}

	<-ctx.Done()
	return nil
}

func (s *Source) onUpsert(ctx context.Context, sink Sink, obj any) {
	secret, ok := obj.(*corev1.Secret)
	if !ok {
		return
	}
	_, err := s.apply(sink, secret)
	if err != nil {
		s.log.WarnContext(ctx, "failed to apply tls secret", slogfield.Error(err))
	}
}

func (s *Source) apply(sink Sink, secret *corev1.Secret) (int, error) {
	if secret.Type != corev1.SecretTypeTLS {
		return 0, nil
	}

	secretErr := func(err error) error {
		return SecretError{Namespace: secret.Namespace, Name: secret.Name, Cause: err}
	}

	certPEM, ok := secret.Data[corev1.TLSCertKey]
	if !ok {
		return 0, secretErr(fmt.Errorf("missing %s", corev1.TLSCertKey))
	}
	keyPEM, ok := secret.Data[corev1.TLSPrivateKeyKey]
	if !ok {
		return 0, secretErr(fmt.Errorf("missing %s", corev1.TLSPrivateKeyKey))
	}

	hostnames, err := hostnamesOf(secret, certPEM)
	if err != nil {
		return 0, secretErr(err)
	}
	if len(hostnames) == 0 {
		return 0, secretErr(errors.New("no hostnames"))
	}

	cred := identity.PEM{
		Cert: certPEM,
		Key:  keyPEM,
		CA:   secret.Data["ca.crt"],
	}
	cert, err := cred.TLSCertificate()
	if err != nil {
		return 0, secretErr(err)
	}

	key := secretKey(secret)
	s.mu.Lock()
	previous := s.hosts[key]
	s.hosts[key] = hostnames
	s.mu.Unlock()

	for _, name := range stale(previous, hostnames) {
		sink.RemoveContext(name)
	}

	var errs []error
	added := 0
	for _, name := range hostnames {
		err := sink.AddContext(name, identity.Certificate{Cert: cert})
		if err != nil {
			errs = append(errs, secretErr(err))
			continue
		}
		added++
		s.log.Info(
			"loaded tls identity",
			slogfield.Hostname(name),
			slogfield.String("secret", key),
		)
	}
	return added, errors.Join(errs...)
}

func (s *Source) remove(sink Sink, secret *corev1.Secret) {
	key := secretKey(secret)

	s.mu.Lock()
	hostnames := s.hosts[key]
	delete(s.hosts, key)
	s.mu.Unlock()

	for _, name := range hostnames {
		sink.RemoveContext(name)
		s.log.Info(
			"removed tls identity",
			slogfield.Hostname(name),
			slogfield.String("secret", key),
		)
	}
}

func secretKey(secret *corev1.Secret) string {
	return secret.Namespace + "/" + secret.Name
}

func hostnamesOf(secret *corev1.Secret, certPEM []byte) ([]string, error) {
	if v, ok := secret.Annotations[HostnamesAnnotation]; ok {
		var names []string
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
		return names, nil
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errors.New("certificate is not PEM encoded")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	return leaf.DNSNames, nil
}

// stale returns the names in prev which are absent from next.
func stale(prev, next []string) []string {
	var out []string
	for _, p := range prev {
		found := false
		for _, n := range next {
			if strings.EqualFold(p, n) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, p)
		}
	}
	return out
}
