// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health composes readiness signals, such as a listener having
// at least one bound socket, and exposes them over HTTP.
package health

import (
	"context"
	"sync/atomic"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc is a func implementation of [Metric].
type MetricFunc func(context.Context) bool

// Healthy implements the [Metric] interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Binary is a [Metric] which is either healthy or not.
// The zero value is healthy.
type Binary struct {
	unhealthy atomic.Bool
}

// Toggle flips the state of Binary.
func (m *Binary) Toggle() {
	for {
		old := m.unhealthy.Load()
		if m.unhealthy.CompareAndSwap(old, !old) {
			return
		}
	}
}

// Set marks the metric healthy or unhealthy.
func (m *Binary) Set(healthy bool) {
	m.unhealthy.Store(!healthy)
}

// Healthy implements the [Metric] interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	return !m.unhealthy.Load()
}

type andMetric []Metric

func (ms andMetric) Healthy(ctx context.Context) bool {
	for _, m := range ms {
		if !m.Healthy(ctx) {
			return false
		}
	}
	return true
}

// And is healthy when every metric is. With no metrics it is healthy.
func And(metrics ...Metric) Metric {
	return andMetric(metrics)
}

type orMetric []Metric

func (ms orMetric) Healthy(ctx context.Context) bool {
	for _, m := range ms {
		if m.Healthy(ctx) {
			return true
		}
	}
	return false
}

// Or is healthy when at least one metric is.
func Or(metrics ...Metric) Metric {
	return orMetric(metrics)
}

// Not negates m.
func Not(m Metric) Metric {
	return MetricFunc(func(ctx context.Context) bool {
		return !m.Healthy(ctx)
	})
}
