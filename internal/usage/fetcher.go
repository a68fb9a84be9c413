package usage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"deskauth/internal/oauth"
	"deskauth/internal/retry"
	"deskauth/pkg/auth"
)

// Backend is the subset of the API client the fetcher needs.
type Backend interface {
	Health(ctx context.Context) error
	Usage(ctx context.Context, accessToken string) (*auth.UsageInfo, error)
}

// TokenSource yields the current bearer token. ok is false when nobody is
// signed in.
type TokenSource interface {
	SessionToken() (token string, ok bool)
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func() (string, bool)

// SessionToken calls f().
func (f TokenSourceFunc) SessionToken() (string, bool) {
	return f()
}

// Fetcher retrieves usage data with a bounded retry. Failures are never
// returned to the caller; they yield a nil result.
type Fetcher struct {
	backend Backend
	policy  retry.Policy
	group   singleflight.Group
}

// NewFetcher creates a fetcher. A zero policy selects retry.DefaultPolicy.
func NewFetcher(backend Backend, policy retry.Policy) *Fetcher {
	if policy.MaxAttempts == 0 && policy.Delay == 0 {
		policy = retry.DefaultPolicy("usage fetch")
	}
	if policy.Name == "" {
		policy.Name = "usage fetch"
	}
	return &Fetcher{backend: backend, policy: policy}
}

// FetchWithRetry returns the usage of the signed-in user, or nil when no one
// is signed in, the backend is down, or every attempt failed.
// Concurrent calls for the same token share one fetch.
func (f *Fetcher) FetchWithRetry(ctx context.Context, src TokenSource) *auth.UsageInfo {
	if src == nil {
		return nil
	}
	token, ok := src.SessionToken()
	if !ok || token == "" {
		return nil
	}

	v, _, _ := f.group.Do(token, func() (interface{}, error) {
		return f.fetch(ctx, token), nil
	})

	info, _ := v.(*auth.UsageInfo)
	return info
}

func (f *Fetcher) fetch(ctx context.Context, token string) *auth.UsageInfo {
	if err := f.backend.Health(ctx); err != nil {
		slog.Debug("Backend health check failed, skipping usage fetch", "error", err.Error())
		return nil
	}

	info, err := retry.Do(ctx, f.policy, func(ctx context.Context, attempt int) (*auth.UsageInfo, error) {
		info, err := f.backend.Usage(ctx, token)
		if err != nil && isPermanent(err) {
			return nil, retry.Permanent(err)
		}
		return info, err
	})
	if err != nil {
		slog.Debug("Usage fetch failed", "error", err.Error())
		return nil
	}

	slog.Debug("Usage fetched",
		"requests_remaining", info.RequestsRemaining,
		"total_requests", info.TotalRequests)
	return info
}

// isPermanent reports whether retrying err cannot help: client errors other
// than timeouts and rate limits, and undecodable bodies.
func isPermanent(err error) bool {
	if errors.Is(err, oauth.ErrMalformedResponse) {
		return true
	}

	var statusErr *oauth.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}

	switch statusErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500
}
