// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package listener

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	dropNoEngine = "no_engine"
	dropClosed   = "closed"
	dropNoProto  = "no_protocol"
)

type metrics struct {
	accepted          *prometheus.CounterVec
	active            prometheus.Gauge
	dropped           *prometheus.CounterVec
	handshakeFailures prometheus.Counter
}

// newMetrics creates the listener collectors. A nil registerer leaves
// them unregistered. Collectors already registered with reg, for example
// by another Listener, are shared.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		accepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "switchboard",
				Subsystem: "listener",
				Name:      "connections_accepted_total",
				Help:      "Total number of accepted connections by listener kind.",
			},
			[]string{"kind"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "switchboard",
				Subsystem: "listener",
				Name:      "tracked_sockets",
				Help:      "Number of accepted connections which are still open.",
			},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "switchboard",
				Subsystem: "listener",
				Name:      "connections_dropped_total",
				Help:      "Total number of connections closed without being served.",
			},
			[]string{"reason"},
		),
		handshakeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "switchboard",
				Subsystem: "listener",
				Name:      "tls_handshake_failures_total",
				Help:      "Total number of failed TLS handshakes.",
			},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.accepted, err = register(reg, m.accepted); err != nil {
		return nil, err
	}
	if m.active, err = register(reg, m.active); err != nil {
		return nil, err
	}
	if m.dropped, err = register(reg, m.dropped); err != nil {
		return nil, err
	}
	if m.handshakeFailures, err = register(reg, m.handshakeFailures); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		var zero T
		return zero, MetricsError{Cause: err}
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		var zero T
		return zero, MetricsError{Cause: err}
	}
	return existing, nil
}
