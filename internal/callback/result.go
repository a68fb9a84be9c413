package callback

import "net/url"

// Kind tags the variant of a callback Result.
type Kind int

const (
	// KindCode is a redirect carrying an authorization code.
	KindCode Kind = iota

	// KindProviderError is a redirect carrying an OAuth error.
	KindProviderError

	// KindMalformed is a redirect carrying neither a code nor an error.
	KindMalformed
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindProviderError:
		return "provider_error"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the parsed provider redirect. It is produced once per server.
type Result struct {
	Kind Kind

	// Code and State are set for KindCode.
	Code  string
	State string

	// Error and ErrorDescription are set for KindProviderError.
	Error            string
	ErrorDescription string
}

// IsError returns true if the provider reported an error.
func (r Result) IsError() bool {
	return r.Kind == KindProviderError
}

// ParseResult classifies the redirect query. An error parameter wins over a code.
func ParseResult(query url.Values) Result {
	result := Result{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	switch {
	case result.Error != "":
		result.Kind = KindProviderError
	case result.Code != "":
		result.Kind = KindCode
	default:
		result.Kind = KindMalformed
	}
	return result
}
