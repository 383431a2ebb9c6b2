// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package dispatch

import (
	"fmt"

	"github.com/z5labs/switchboard/internal/try"
)

// PanicError is the pending error produced by a handler which panicked.
type PanicError = try.PanicError

// ProtocolMismatchError is logged when a WebSocket request reaches the
// end of the layer stack. The connection is closed.
type ProtocolMismatchError struct {
	Path string
}

// Error implements the [builtin.error] interface.
func (e ProtocolMismatchError) Error() string {
	return fmt.Sprintf("no websocket layer matched path: %s", e.Path)
}
