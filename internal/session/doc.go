// Package session implements the authentication lifecycle of the desktop
// application: signed out, authenticating, signed in.
//
// A Session is created once per process with its collaborators injected
// (provider client, credential store, usage fetcher, notifier) and shared by
// pointer. It guarantees a single pending browser sign-in at a time:
//
//	sess, _ := session.New(session.Dependencies{Provider: client, Store: store})
//	sess.LoadPersisted(ctx)    // validate a saved credential at startup
//	sess.Initiate(ctx)         // start a browser sign-in
//	...                        // outcome arrives as auth-success or auth-error
//	sess.SignOut()
//
// Interactive failures are reported as auth-error events carrying a message
// from UserMessage and the typed error. Failures while validating a saved
// credential are not reported; the session just stays signed out.
package session
