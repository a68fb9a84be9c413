package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"deskauth/internal/browser"
	"deskauth/internal/callback"
	"deskauth/internal/credentials"
	"deskauth/internal/events"
	"deskauth/internal/oauth"
	"deskauth/internal/retry"
	"deskauth/internal/usage"
	"deskauth/pkg/auth"
)

// Provider is the set of OAuth operations the session drives.
type Provider interface {
	AuthorizationURL(redirectURI, state string) string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.TokenResponse, error)
	FetchUserInfo(ctx context.Context, accessToken string) (*auth.UserProfile, error)
	Introspect(ctx context.Context, token string) (bool, error)
}

// CredentialStore persists the session credential.
type CredentialStore interface {
	Load() (*credentials.Credential, error)
	Save(cred *credentials.Credential) error
	Clear() error
	Watch(ctx context.Context, fn func(credentials.Change)) error
}

// UsageFetcher retrieves usage data for the signed-in user.
type UsageFetcher interface {
	FetchWithRetry(ctx context.Context, src usage.TokenSource) *auth.UsageInfo
}

// CallbackServer is the loopback listener of one sign-in attempt.
type CallbackServer interface {
	Start(ctx context.Context) (int, error)
	Results() <-chan callback.Result
	RedirectURI() string
	Stop()
}

// Dependencies are the collaborators of a Session. Provider and Store are
// required; the rest have defaults.
type Dependencies struct {
	Provider Provider
	Store    CredentialStore

	// Usage is optional. Without it FetchUsage returns nil.
	Usage UsageFetcher

	// Notifier receives session events. Defaults to events.Discard.
	Notifier events.Notifier

	// OpenBrowser opens the authorization URL. Defaults to browser.Open.
	OpenBrowser browser.Opener

	// NewServer creates the callback server of an attempt. Defaults to a
	// callback.Server on the default port range.
	NewServer func() CallbackServer

	// Timeout bounds how long an attempt waits for the redirect.
	// Defaults to callback.DefaultTimeout.
	Timeout time.Duration

	// IntrospectRetry is applied to transport failures while validating a
	// persisted credential. Defaults to retry.DefaultPolicy.
	IntrospectRetry retry.Policy
}

// authState is the in-memory session. isAuthenticated implies sessionToken
// is set, and pendingState is only set while isAuthenticating.
type authState struct {
	sessionToken     string
	refreshToken     string
	user             *auth.UserProfile
	isAuthenticated  bool
	isAuthenticating bool
	pendingState     string
}

// flow is one pending browser sign-in.
type flow struct {
	id          string
	state       string
	server      CallbackServer
	redirectURI string
	authURL     string

	ctx    context.Context
	cancel context.CancelFunc
}

// Session owns the authentication state of the process. It is safe for
// concurrent use. Create it once with New and share the pointer.
type Session struct {
	deps Dependencies

	mu        sync.Mutex
	state     authState
	flow      *flow
	lastUsage *auth.UsageInfo
	closed    bool

	// lingering is the server of the last finished flow, which may still be
	// inside its shutdown grace period.
	lingering CallbackServer

	// baseCtx lives until Close and parents background work.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a session.
func New(deps Dependencies) (*Session, error) {
	if deps.Provider == nil {
		return nil, errors.New("session requires a provider")
	}
	if deps.Store == nil {
		return nil, errors.New("session requires a credential store")
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Discard
	}
	if deps.OpenBrowser == nil {
		deps.OpenBrowser = browser.Open
	}
	if deps.NewServer == nil {
		deps.NewServer = func() CallbackServer {
			return callback.NewServer(callback.Config{})
		}
	}
	if deps.Timeout <= 0 {
		deps.Timeout = callback.DefaultTimeout
	}
	if deps.IntrospectRetry.MaxAttempts == 0 && deps.IntrospectRetry.Delay == 0 {
		deps.IntrospectRetry = retry.DefaultPolicy("token introspection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		deps:       deps,
		baseCtx:    ctx,
		baseCancel: cancel,
	}, nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() auth.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() auth.Status {
	status := auth.Status{
		IsAuthenticated:  s.state.isAuthenticated,
		IsAuthenticating: s.state.isAuthenticating,
	}
	switch {
	case s.state.isAuthenticating:
		status.State = auth.StateAuthenticating
	case s.state.isAuthenticated:
		status.State = auth.StateSignedIn
	default:
		status.State = auth.StateSignedOut
	}
	if s.state.isAuthenticated && s.state.user != nil {
		user := *s.state.user
		status.User = &user
	}
	return status
}

// SessionToken returns the bearer token while signed in.
func (s *Session) SessionToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.isAuthenticated {
		return "", false
	}
	return s.state.sessionToken, true
}

// AuthorizationURL returns the URL of the pending sign-in, for hosts that
// cannot open a browser.
func (s *Session) AuthorizationURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flow == nil {
		return "", false
	}
	return s.flow.authURL, true
}

// LastUsage returns the most recently fetched usage data, or nil.
func (s *Session) LastUsage() *auth.UsageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastUsage == nil {
		return nil
	}
	u := *s.lastUsage
	return &u
}

// Initiate starts a browser sign-in. It returns once the callback listener is
// up and the browser was asked to open; the outcome is reported through the
// notifier. When already signed in it only re-announces auth-success.
func (s *Session) Initiate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.isAuthenticated {
		status := s.statusLocked()
		s.mu.Unlock()

		ev := events.New(events.TypeAuthSuccess, status, events.Data{User: status.User.DisplayName()})
		ev.Message = "You are already signed in!"
		s.deps.Notifier.Notify(ev)
		return nil
	}
	if s.state.isAuthenticating {
		s.mu.Unlock()
		slog.Debug("Authentication already in progress, ignoring initiate")
		return ErrAuthInProgress
	}

	// Claim the flow before any other work so concurrent callers are rejected.
	s.state.isAuthenticating = true
	if s.lingering != nil {
		s.lingering.Stop()
		s.lingering = nil
	}

	f, err := s.startFlowLocked()
	if err != nil {
		s.state.isAuthenticating = false
		s.state.pendingState = ""
		status := s.statusLocked()
		s.mu.Unlock()

		slog.Warn("Failed to start authentication", "error", err.Error())
		s.notifyError(status, "", err)
		return err
	}
	status := s.statusLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	slog.Info("Authentication started", "flow_id", f.id, "redirect_uri", f.redirectURI)
	s.notify(events.TypeAuthStatusChanged, status, f.id)

	if err := s.deps.OpenBrowser(f.authURL); err != nil {
		// The flow stays pending; the host can show AuthorizationURL instead.
		slog.Warn("Failed to open browser for authentication", "flow_id", f.id, "error", err.Error())
	}

	go s.runFlow(f)
	return nil
}

func (s *Session) startFlowLocked() (*flow, error) {
	state, err := oauth.GenerateState()
	if err != nil {
		return nil, err
	}

	server := s.deps.NewServer()
	if _, err := server.Start(s.baseCtx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.deps.Timeout)
	redirectURI := server.RedirectURI()
	f := &flow{
		id:          uuid.NewString(),
		state:       state,
		server:      server,
		redirectURI: redirectURI,
		authURL:     s.deps.Provider.AuthorizationURL(redirectURI, state),
		ctx:         ctx,
		cancel:      cancel,
	}

	s.flow = f
	s.state.pendingState = state
	return f, nil
}

// runFlow waits for the redirect or the end of the flow.
func (s *Session) runFlow(f *flow) {
	defer s.wg.Done()
	defer f.cancel()

	select {
	case result := <-f.server.Results():
		s.handleCallback(f, result)
	case <-f.ctx.Done():
		s.handleFlowDone(f)
	}
}

// currentLocked reports whether f is still the pending flow.
func (s *Session) currentLocked(f *flow) bool {
	return s.flow == f && f.ctx.Err() == nil
}

// abortLocked ends the pending flow f and returns to signed out.
func (s *Session) abortLocked(f *flow) {
	s.flow = nil
	s.lingering = f.server
	s.state.isAuthenticating = false
	s.state.pendingState = ""
	f.cancel()
}

// handleFlowDone handles the flow context ending without a redirect.
func (s *Session) handleFlowDone(f *flow) {
	s.mu.Lock()
	if s.flow != f {
		s.mu.Unlock()
		return
	}
	if !errors.Is(f.ctx.Err(), context.DeadlineExceeded) {
		s.abortLocked(f)
		s.mu.Unlock()
		f.server.Stop()
		return
	}

	// Stop the listener and transition before anyone hears about it.
	f.server.Stop()
	s.abortLocked(f)
	status := s.statusLocked()
	s.mu.Unlock()

	err := &TimeoutError{After: s.deps.Timeout}
	slog.Warn("Authentication timed out", "flow_id", f.id, "timeout", s.deps.Timeout.String())
	s.notify(events.TypeAuthStatusChanged, status, f.id)
	s.notifyError(status, f.id, err)
}

func (s *Session) handleCallback(f *flow, result callback.Result) {
	s.mu.Lock()
	if !s.currentLocked(f) {
		s.mu.Unlock()
		slog.Warn("Discarding OAuth callback for a flow that is no longer pending",
			"flow_id", f.id, "kind", result.Kind.String())
		if errors.Is(f.ctx.Err(), context.DeadlineExceeded) {
			s.handleFlowDone(f)
		}
		return
	}

	var failure error
	switch result.Kind {
	case callback.KindProviderError:
		slog.Warn("OAuth authorization failed",
			"flow_id", f.id,
			"error", result.Error,
			"error_description", result.ErrorDescription)
		failure = &ProviderDeclinedError{Code: result.Error, Description: result.ErrorDescription}
	case callback.KindMalformed:
		slog.Warn("OAuth callback carried no authorization code", "flow_id", f.id)
		failure = ErrNoAuthorizationCode
	default:
		if !oauth.StateMatches(s.state.pendingState, result.State) {
			slog.Warn("SECURITY_AUDIT: OAuth state mismatch detected - possible CSRF attack",
				"flow_id", f.id,
				"expected_state_len", len(s.state.pendingState),
				"received_state_len", len(result.State))
			failure = &CSRFViolationError{}
		}
	}

	if failure != nil {
		s.abortLocked(f)
		status := s.statusLocked()
		s.mu.Unlock()

		s.notify(events.TypeAuthStatusChanged, status, f.id)
		s.notifyError(status, f.id, failure)
		return
	}

	// The state is single use.
	s.state.pendingState = ""
	s.mu.Unlock()

	s.completeSignIn(f, result.Code)
}

// completeSignIn exchanges the code and, if the flow is still current,
// commits the new credential.
func (s *Session) completeSignIn(f *flow, code string) {
	token, user, err := s.exchange(f.ctx, code, f.redirectURI)

	s.mu.Lock()
	if s.flow != f {
		s.mu.Unlock()
		slog.Debug("Discarding sign-in result for a cancelled flow", "flow_id", f.id)
		return
	}
	if err != nil {
		if errors.Is(f.ctx.Err(), context.DeadlineExceeded) {
			err = &TimeoutError{After: s.deps.Timeout}
		}
		s.abortLocked(f)
		status := s.statusLocked()
		s.mu.Unlock()

		slog.Warn("OAuth sign-in failed", "flow_id", f.id, "error", err.Error())
		s.notify(events.TypeAuthStatusChanged, status, f.id)
		s.notifyError(status, f.id, err)
		return
	}

	s.state = authState{
		sessionToken:    token.AccessToken,
		refreshToken:    token.RefreshToken,
		user:            user,
		isAuthenticated: true,
	}
	s.flow = nil
	s.lingering = f.server
	f.cancel()
	s.persistLocked()
	status := s.statusLocked()
	s.mu.Unlock()

	slog.Info("OAuth authentication successful", "flow_id", f.id, "user_id", user.ID)
	s.notify(events.TypeAuthStatusChanged, status, f.id)
	s.deps.Notifier.Notify(withFlow(
		events.New(events.TypeAuthSuccess, status, events.Data{User: user.DisplayName()}), f.id))

	s.startUsageFetch()
}

func (s *Session) exchange(ctx context.Context, code, redirectURI string) (*oauth.TokenResponse, *auth.UserProfile, error) {
	token, err := s.deps.Provider.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.deps.Provider.FetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	return token, user, nil
}

// persistLocked saves the in-memory credential. A failure keeps the session
// signed in for this process only.
func (s *Session) persistLocked() {
	cred := &credentials.Credential{
		SessionToken:    s.state.sessionToken,
		RefreshToken:    s.state.refreshToken,
		User:            s.state.user,
		IsAuthenticated: s.state.isAuthenticated,
	}
	if err := s.deps.Store.Save(cred); err != nil {
		slog.Warn("Failed to persist credential, session will not survive a restart", "error", err.Error())
	}
}

// LoadPersisted restores a saved credential after validating it with the
// provider. Invalid or unverifiable credentials are discarded without
// reporting an error; only a failure to read the store is returned.
func (s *Session) LoadPersisted(ctx context.Context) (auth.Status, error) {
	cred, err := s.deps.Store.Load()
	if err != nil {
		return s.Status(), err
	}
	if !cred.Usable() {
		return s.Status(), nil
	}

	s.mu.Lock()
	if s.closed || s.state.isAuthenticated || s.state.isAuthenticating {
		status := s.statusLocked()
		s.mu.Unlock()
		return status, nil
	}
	s.state.sessionToken = cred.SessionToken
	s.state.refreshToken = cred.RefreshToken
	s.state.user = cred.User
	s.mu.Unlock()

	active, err := retry.Do(ctx, s.deps.IntrospectRetry, func(ctx context.Context, attempt int) (bool, error) {
		active, err := s.deps.Provider.Introspect(ctx, cred.SessionToken)
		if err != nil && !oauth.IsNetworkError(err) {
			return false, retry.Permanent(err)
		}
		return active, err
	})

	var user *auth.UserProfile
	if err == nil && active {
		user, err = s.deps.Provider.FetchUserInfo(ctx, cred.SessionToken)
		if err != nil {
			slog.Debug("Failed to refresh user profile, keeping stored profile", "error", err.Error())
			user, err = cred.User, nil
		}
	}

	s.mu.Lock()

	// Someone signed in, started a sign-in or signed out meanwhile.
	if s.closed || s.state.isAuthenticated || s.state.isAuthenticating || s.state.sessionToken != cred.SessionToken {
		status := s.statusLocked()
		s.mu.Unlock()
		return status, nil
	}

	// A cancelled caller or a missing profile says nothing about the
	// credential itself, so the file is kept for the next attempt.
	cancelled := ctx.Err() != nil
	noProfile := err == nil && active && user == nil
	if err != nil || !active || noProfile {
		keep := cancelled || noProfile
		switch {
		case cancelled:
			slog.Debug("Credential validation cancelled, keeping stored credential")
		case noProfile:
			slog.Debug("No user profile available for stored credential, keeping it for the next attempt")
		case err != nil:
			slog.Debug("Stored credential could not be validated, signing out", "error", err.Error())
		default:
			slog.Debug("Stored credential is no longer active, signing out")
		}
		s.state = authState{}
		if !keep {
			if clearErr := s.deps.Store.Clear(); clearErr != nil {
				slog.Warn("Failed to remove stale credential", "error", clearErr.Error())
			}
		}
		status := s.statusLocked()
		s.mu.Unlock()
		return status, nil
	}

	s.state.user = user
	s.state.isAuthenticated = true
	s.persistLocked()
	status := s.statusLocked()
	s.mu.Unlock()

	slog.Info("Restored authenticated session", "user_id", user.ID)
	s.notify(events.TypeAuthStatusChanged, status, "")
	s.startUsageFetch()
	return status, nil
}

// SignOut ends any pending sign-in, forgets the session and deletes the
// persisted credential.
func (s *Session) SignOut() error {
	s.mu.Lock()
	f := s.flow
	s.flow = nil
	s.state = authState{}
	s.lastUsage = nil
	err := s.deps.Store.Clear()
	status := s.statusLocked()
	s.mu.Unlock()

	if f != nil {
		f.cancel()
		f.server.Stop()
	}

	if err != nil {
		slog.Warn("Failed to delete credential during sign-out", "error", err.Error())
	}
	slog.Info("Signed out")
	s.notify(events.TypeAuthStatusChanged, status, "")
	s.notify(events.TypeAuthSignedOut, status, "")
	return err
}

// FetchUsage fetches usage data for the signed-in user. It returns nil when
// signed out or when the backend cannot provide it.
func (s *Session) FetchUsage(ctx context.Context) *auth.UsageInfo {
	if s.deps.Usage == nil {
		return nil
	}

	info := s.deps.Usage.FetchWithRetry(ctx, s)
	if info == nil {
		return nil
	}

	s.mu.Lock()
	if !s.state.isAuthenticated {
		s.mu.Unlock()
		return nil
	}
	s.lastUsage = info
	status := s.statusLocked()
	s.mu.Unlock()

	ev := events.New(events.TypeUsageUpdated, status, events.Data{
		Remaining: info.RequestsRemaining,
		Total:     info.TotalRequests,
	})
	u := *info
	ev.Usage = &u
	s.deps.Notifier.Notify(ev)
	return info
}

// startUsageFetch fetches usage in the background. The WaitGroup Add happens
// under the lock so that it is ordered before any Close.
func (s *Session) startUsageFetch() {
	if s.deps.Usage == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.FetchUsage(s.baseCtx)
	}()
}

// WatchCredentials keeps the session in step with changes made to the
// credential file by other processes until ctx is done.
func (s *Session) WatchCredentials(ctx context.Context) error {
	return s.deps.Store.Watch(ctx, func(change credentials.Change) {
		switch change {
		case credentials.ChangeRemoved:
			s.handleExternalRemoval()
		case credentials.ChangeWritten:
			s.mu.Lock()
			idle := !s.closed && !s.state.isAuthenticated && !s.state.isAuthenticating
			s.mu.Unlock()
			if idle {
				if _, err := s.LoadPersisted(ctx); err != nil {
					slog.Debug("Failed to load externally written credential", "error", err.Error())
				}
			}
		}
	})
}

func (s *Session) handleExternalRemoval() {
	cred, err := s.deps.Store.Load()
	if err != nil || cred != nil {
		return
	}

	s.mu.Lock()
	if !s.state.isAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state = authState{}
	s.lastUsage = nil
	status := s.statusLocked()
	s.mu.Unlock()

	slog.Info("Credential removed by another process, signing out")
	s.notify(events.TypeAuthStatusChanged, status, "")
	s.notify(events.TypeAuthSignedOut, status, "")
}

// Close cancels any pending sign-in and waits for background work. The
// persisted credential is left in place.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	f := s.flow
	s.flow = nil
	s.state.isAuthenticating = false
	s.state.pendingState = ""
	lingering := s.lingering
	s.lingering = nil
	s.mu.Unlock()

	if f != nil {
		f.cancel()
		f.server.Stop()
	}
	if lingering != nil {
		lingering.Stop()
	}
	s.baseCancel()
	s.wg.Wait()
}

func (s *Session) notify(t events.Type, status auth.Status, flowID string) {
	s.deps.Notifier.Notify(withFlow(events.New(t, status, events.Data{}), flowID))
}

func (s *Session) notifyError(status auth.Status, flowID string, err error) {
	ev := events.New(events.TypeAuthError, status, events.Data{Error: UserMessage(err)})
	ev.Message = UserMessage(err)
	ev.Err = err
	s.deps.Notifier.Notify(withFlow(ev, flowID))
}

func withFlow(ev events.Event, flowID string) events.Event {
	ev.FlowID = flowID
	return ev
}
