// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package switchboard pairs a protocol multiplexing [listener.Listener]
// with a path scoped [dispatch.Router].
//
// One listener accepts plain HTTP, HTTPS, HTTP/2 and WebSocket traffic on
// any number of sockets. Every request and every upgraded connection is
// walked through the same ordered layer stack:
//
//	app := switchboard.New()
//	app.Use("/api", dispatch.HTTP(api))
//	app.WS("/chat", chat)
//
//	l, err := app.Listen(
//	    listener.WithListen(address.List{address.Port(8080), address.Descriptor{Type: "tls", Port: 8443}}),
//	    listener.WithContext("a.example", identity.Files{CertFile: "a.crt", KeyFile: "a.key"}),
//	)
//
// [Run] adds the process plumbing: config sources are read and decoded,
// the runtime is built from the config and run until an OS signal
// arrives.
package switchboard
