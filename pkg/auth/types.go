package auth

// State is the lifecycle state of an authentication session.
type State string

const (
	// StateSignedOut means no credential is held.
	StateSignedOut State = "signed_out"

	// StateAuthenticating means a browser sign-in is pending.
	StateAuthenticating State = "authenticating"

	// StateSignedIn means a session token is held and was validated.
	StateSignedIn State = "signed_in"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// UserProfile is the identity returned by the provider's userinfo endpoint.
type UserProfile struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	PictureURL string `json:"picture,omitempty"`
}

// DisplayName returns the most human-friendly identifier available.
func (u *UserProfile) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// Status is a point-in-time snapshot of a session, safe to hand to other goroutines.
type Status struct {
	State            State        `json:"state"`
	IsAuthenticated  bool         `json:"isAuthenticated"`
	IsAuthenticating bool         `json:"isAuthenticating"`
	User             *UserProfile `json:"user,omitempty"`
}

// Summary returns the short prefix shown in the overlay status line.
func (s Status) Summary() string {
	switch {
	case s.IsAuthenticated && s.User != nil:
		return "Signed in | "
	case s.IsAuthenticating:
		return "Authenticating... | "
	default:
		return "Not signed in | "
	}
}

// UsageInfo describes the remaining API quota of the signed-in account.
type UsageInfo struct {
	RequestsRemaining int `json:"requests_remaining"`
	TotalRequests     int `json:"total_requests"`
}
