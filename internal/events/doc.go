// Package events defines the notifications the authentication session sends
// to the rest of the application, and the notifiers that carry them.
//
// Event types:
//
//   - auth-status-changed: any state transition
//   - auth-success: sign-in completed, or the user was already signed in
//   - auth-error: an interactive sign-in failed; Message is user facing
//   - auth-signed-out: the credential was removed
//   - usage-updated: fresh quota data is available
//
// Delivery is fire-and-forget. ChannelNotifier never blocks the session; it
// drops events when the subscriber falls behind. Messages are rendered by a
// MessageTemplateEngine whose templates can be overridden per type.
package events
