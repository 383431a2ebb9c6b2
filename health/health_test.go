// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	healthy   = MetricFunc(func(context.Context) bool { return true })
	unhealthy = MetricFunc(func(context.Context) bool { return false })
)

func TestBinary(t *testing.T) {
	t.Run("will be healthy", func(t *testing.T) {
		t.Run("if it is the zero value", func(t *testing.T) {
			var m Binary
			assert.True(t, m.Healthy(context.Background()))
		})

		t.Run("if it is toggled twice", func(t *testing.T) {
			var m Binary
			m.Toggle()
			m.Toggle()
			assert.True(t, m.Healthy(context.Background()))
		})
	})

	t.Run("will be unhealthy", func(t *testing.T) {
		t.Run("if it is toggled once", func(t *testing.T) {
			var m Binary
			m.Toggle()
			assert.False(t, m.Healthy(context.Background()))
		})

		t.Run("if it is set unhealthy", func(t *testing.T) {
			var m Binary
			m.Set(false)
			assert.False(t, m.Healthy(context.Background()))
		})
	})
}

func TestCombinators(t *testing.T) {
	testCases := []struct {
		Name    string
		Metric  Metric
		Healthy bool
	}{
		{Name: "and of healthy metrics", Metric: And(healthy, healthy), Healthy: true},
		{Name: "and with one unhealthy metric", Metric: And(healthy, unhealthy), Healthy: false},
		{Name: "empty and", Metric: And(), Healthy: true},
		{Name: "or with one healthy metric", Metric: Or(unhealthy, healthy), Healthy: true},
		{Name: "or of unhealthy metrics", Metric: Or(unhealthy, unhealthy), Healthy: false},
		{Name: "not of healthy", Metric: Not(healthy), Healthy: false},
		{Name: "nested", Metric: And(Or(unhealthy, healthy), Not(unhealthy)), Healthy: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			assert.Equal(t, testCase.Healthy, testCase.Metric.Healthy(context.Background()))
		})
	}
}

type metricHandler struct {
	Metric
	http.Handler
}

func TestHandler(t *testing.T) {
	t.Run("will return the metric itself", func(t *testing.T) {
		t.Run("if it implements http.Handler", func(t *testing.T) {
			m := metricHandler{
				Metric: healthy,
				Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusAccepted)
				}),
			}

			w := httptest.NewRecorder()
			Handler(m).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusAccepted, w.Code)
		})
	})

	t.Run("will respond 200", func(t *testing.T) {
		t.Run("if the metric is healthy", func(t *testing.T) {
			w := httptest.NewRecorder()
			Handler(healthy).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "OK", w.Body.String())
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
		})
	})

	t.Run("will respond 503", func(t *testing.T) {
		t.Run("if the metric is unhealthy", func(t *testing.T) {
			w := httptest.NewRecorder()
			Handler(unhealthy).ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/healthz", nil))

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Empty(t, w.Body.String())
		})
	})
}
