// Package server provides HTTP routing, middleware and the loopback listener that receives the Spotify
// login redirect.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] added first runs outermost. [BasicRouter] registers method patterns on an [http.ServeMux].
//
// # Login Callback
//
// [CallbackHandler] receives the authorization redirect of one PKCE attempt. It checks the state
// parameter, hands the code to a [CompleteFunc] exactly once and redirects the browser to "/" so the code
// does not linger in the address bar. "/" then renders a success page.
//
// [CallbackServer] binds the configured loopback address (127.0.0.1:3000 by default), serves the
// handler and shuts down once the result is in.
//
// # Handler Interface
//
// A [Handler] is an [http.Handler] that also lists the mux patterns it serves.
package server
