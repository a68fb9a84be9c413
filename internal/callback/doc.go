// Package callback implements the ephemeral loopback listener that receives
// the identity provider's redirect during a desktop sign-in.
//
// A Server lives for exactly one authentication attempt:
//
//	srv := callback.NewServer(callback.Config{PortLow: 8000, PortHigh: 8020})
//	port, err := srv.Start(ctx)         // binds 127.0.0.1:<port>
//	authURL := build(srv.RedirectURI())  // http://127.0.0.1:<port>/callback
//	result := <-srv.Results()            // first redirect only
//
// The server answers every request to /callback with one of three static
// pages (success, provider error, malformed) and stops itself a short grace
// period after the first one so the browser can render the page. Cancelling
// the context passed to Start stops it immediately.
package callback
