// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/z5labs/switchboard/address"
	"github.com/z5labs/switchboard/lifecycle"
	"github.com/z5labs/switchboard/listener"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loopback = address.Descriptor{Host: "127.0.0.1"}

// connected returns a listener which already served one request on
// the returned keep-alive connection.
func connected(t *testing.T) (*listener.Listener, net.Conn) {
	t.Helper()

	l, err := listener.New(
		listener.WithRequestHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})),
		listener.WithListen(loopback),
	)
	require.NoError(t, err)
	t.Cleanup(func() { l.Destroy(context.Background()) })

	addr, ok := l.Addr(loopback)
	require.True(t, ok)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = fmt.Fprint(conn, "GET / HTTP/1.1\r\nHost: switchboard\r\n\r\n")
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 1, l.Sockets())

	return l, conn
}

func runAsync(ctx context.Context, r *Runtime) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(ctx)
	}()
	return errCh
}

func wait(t *testing.T, errCh <-chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not return")
		return nil
	}
}

func TestRuntime_Run(t *testing.T) {
	t.Run("will close remaining connections", func(t *testing.T) {
		t.Run("if they outlive the drain timeout", func(t *testing.T) {
			l, conn := connected(t)

			ctx, cancel := context.WithCancel(context.Background())
			errCh := runAsync(ctx, New(l, DrainTimeout(100*time.Millisecond)))
			cancel()

			require.NoError(t, wait(t, errCh))
			assert.Equal(t, 0, l.Sockets())
			assert.False(t, l.Healthy(context.Background()))

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err := conn.Read(make([]byte, 1))
			assert.Error(t, err)
		})

		t.Run("if force close is set", func(t *testing.T) {
			l, _ := connected(t)

			ctx, cancel := context.WithCancel(context.Background())
			errCh := runAsync(ctx, New(l, ForceClose(true), DrainTimeout(time.Hour)))
			cancel()

			require.NoError(t, wait(t, errCh))
			assert.Equal(t, 0, l.Sockets())
		})
	})

	t.Run("will return before the drain timeout", func(t *testing.T) {
		t.Run("if every connection finished", func(t *testing.T) {
			l, conn := connected(t)

			ctx, cancel := context.WithCancel(context.Background())
			errCh := runAsync(ctx, New(l, DrainTimeout(time.Hour)))
			cancel()

			conn.Close()
			require.NoError(t, wait(t, errCh))
			assert.Equal(t, 0, l.Sockets())
		})
	})

	t.Run("will return the background task error", func(t *testing.T) {
		t.Run("if a background task fails", func(t *testing.T) {
			l, _ := connected(t)
			taskErr := errors.New("watch failed")

			blocked := func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}
			failing := func(ctx context.Context) error {
				return taskErr
			}

			r := New(l, ForceClose(true), Background(blocked), Background(failing))
			err := wait(t, runAsync(context.Background(), r))

			assert.ErrorIs(t, err, taskErr)
			assert.NotErrorIs(t, err, context.Canceled)
			assert.Equal(t, 0, l.Sockets())
		})
	})

	t.Run("will register a post run hook", func(t *testing.T) {
		t.Run("if the context carries a lifecycle", func(t *testing.T) {
			l, _ := connected(t)
			lc := &lifecycle.Context{}

			ctx, cancel := context.WithCancel(lifecycle.NewContext(context.Background(), lc))
			errCh := runAsync(ctx, New(l, DrainTimeout(time.Millisecond)))
			cancel()
			require.NoError(t, wait(t, errCh))

			err := lc.PostRun().Run(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 0, l.Sockets())
		})
	})
}
