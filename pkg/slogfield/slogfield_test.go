// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package slogfield

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJsonHandler(t *testing.T) {
	testCases := []struct {
		Name     string
		Attr     slog.Attr
		Key      string
		Expected any
	}{
		{
			Name:     "bool",
			Attr:     Bool("value", true),
			Key:      "value",
			Expected: true,
		},
		{
			Name:     "duration",
			Attr:     Duration("value", 5*time.Second),
			Key:      "value",
			Expected: float64(5 * time.Second),
		},
		{
			Name:     "error",
			Attr:     Error(errors.New("boom")),
			Key:      "error",
			Expected: "boom",
		},
		{
			Name:     "int",
			Attr:     Int("value", 7),
			Key:      "value",
			Expected: float64(7),
		},
		{
			Name:     "listener id",
			Attr:     ListenerID(`{"port":8080}`),
			Key:      "listener_id",
			Expected: `{"port":8080}`,
		},
		{
			Name:     "listener kind",
			Attr:     ListenerKind("tls"),
			Key:      "listener_kind",
			Expected: "tls",
		},
		{
			Name:     "remote addr",
			Attr:     RemoteAddr(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}),
			Key:      "remote_addr",
			Expected: "127.0.0.1:5000",
		},
		{
			Name:     "nil remote addr",
			Attr:     RemoteAddr(nil),
			Key:      "remote_addr",
			Expected: "",
		},
		{
			Name:     "hostname",
			Attr:     Hostname("a.example"),
			Key:      "hostname",
			Expected: "a.example",
		},
		{
			Name:     "request id",
			Attr:     RequestID("abc"),
			Key:      "request_id",
			Expected: "abc",
		},
		{
			Name:     "path",
			Attr:     Path("/health"),
			Key:      "path",
			Expected: "/health",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))
			log.LogAttrs(context.Background(), slog.LevelInfo, "test", testCase.Attr)

			var res map[string]any
			err := json.Unmarshal(buf.Bytes(), &res)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, testCase.Expected, res[testCase.Key]) {
				return
			}
		})
	}
}
