package events

import (
	"time"

	"deskauth/pkg/auth"
)

// Type names a notification emitted by the authentication session.
type Type string

const (
	// TypeAuthStatusChanged is emitted on every state transition.
	TypeAuthStatusChanged Type = "auth-status-changed"

	// TypeAuthSuccess is emitted when a sign-in completes or is already in place.
	TypeAuthSuccess Type = "auth-success"

	// TypeAuthError is emitted when an interactive sign-in fails.
	TypeAuthError Type = "auth-error"

	// TypeAuthSignedOut is emitted after a sign-out.
	TypeAuthSignedOut Type = "auth-signed-out"

	// TypeUsageUpdated is emitted after usage data was fetched.
	TypeUsageUpdated Type = "usage-updated"
)

// Severity classifies an event for display.
type Severity string

const (
	// SeverityNormal indicates normal, non-problematic events.
	SeverityNormal Severity = "Normal"

	// SeverityWarning indicates events that may require attention.
	SeverityWarning Severity = "Warning"
)

// Event is a single notification delivered to collaborators.
type Event struct {
	Type     Type
	Severity Severity

	// Message is human readable and safe to show to the user.
	Message string

	// Status is the session snapshot at emission time.
	Status auth.Status

	// Usage is set for TypeUsageUpdated.
	Usage *auth.UsageInfo

	// Err is the typed failure behind a TypeAuthError event.
	Err error

	// FlowID correlates events of one sign-in attempt. Empty outside a flow.
	FlowID string

	Time time.Time
}

// Data holds the values substituted into message templates.
type Data struct {
	// User is the display name of the signed-in user.
	User string

	// Error is the human-readable failure description.
	Error string

	// Remaining and Total describe usage quota.
	Remaining int
	Total     int
}

// severityFor returns the severity of an event type.
func severityFor(t Type) Severity {
	if t == TypeAuthError {
		return SeverityWarning
	}
	return SeverityNormal
}

// New builds an event with its message rendered from the default templates.
func New(t Type, status auth.Status, data Data) Event {
	return Event{
		Type:     t,
		Severity: severityFor(t),
		Message:  defaultEngine.Render(t, data),
		Status:   status,
		Time:     time.Now(),
	}
}
