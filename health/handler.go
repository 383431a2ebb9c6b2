// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"io"
	"net/http"
)

// Handler reports m over HTTP: 200 when healthy, 503 otherwise.
// HEAD requests get the status without a body.
//
// If m already implements [http.Handler] it is returned as is.
func Handler(m Metric) http.Handler {
	if h, ok := m.(http.Handler); ok {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusServiceUnavailable
		if m.Healthy(r.Context()) {
			status = http.StatusOK
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		if r.Method == http.MethodHead {
			return
		}
		io.WriteString(w, http.StatusText(status))
	})
}
