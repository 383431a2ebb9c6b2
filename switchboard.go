// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package switchboard

import (
	"github.com/z5labs/switchboard/dispatch"
	"github.com/z5labs/switchboard/listener"
)

// App is a [dispatch.Router] which can create listeners feeding it.
type App struct {
	*dispatch.Router
}

// New initializes an [App] with an empty layer stack.
func New(opts ...dispatch.Option) *App {
	return &App{
		Router: dispatch.New(opts...),
	}
}

// Listen creates a [listener.Listener] whose requests and WebSocket
// connections are dispatched through the app. The handlers are in
// place before any listen socket is bound.
func (a *App) Listen(opts ...listener.Option) (*listener.Listener, error) {
	base := []listener.Option{
		listener.WithRequestHandler(a.Router),
		listener.WithWebSocketHandler(a.Router),
	}
	return listener.New(append(base, opts...)...)
}
