// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package dispatch routes requests through an ordered stack of path
// scoped layers.
//
// A layer matches when its mount path is a case-insensitive prefix of
// the request path ending at "/", "." or the end of the path, so "/a"
// matches "/a", "/a/b" and "/a.json" but not "/ab". The mount path is
// stripped while the layer runs and restored before the next layer
// sees the request.
//
// WebSocket layers, registered with [Router.WS], only see upgraded
// connections and every other layer only sees plain requests. Error
// layers only run while an error is pending and request layers only
// run while none is. A handler passes an error forward by calling its
// continuation with it. A panic with an error is forwarded the same way
// and any other panic value is wrapped in a [PanicError].
//
//	rt := dispatch.New()
//	rt.Use("/api", dispatch.HTTP(api))
//	rt.UseError("/", dispatch.ErrorHandlerFunc(func(err error, c *dispatch.Context, next dispatch.Next) {
//		http.Error(c.Response, "oops", http.StatusInternalServerError)
//	}))
//
// Verb labels recorded by [Router.Get] and friends are not enforced.
package dispatch
