package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskauth/internal/callback"
	"deskauth/internal/credentials"
	"deskauth/internal/events"
	"deskauth/internal/oauth"
	"deskauth/internal/retry"
	"deskauth/internal/usage"
	"deskauth/pkg/auth"
)

type fakeProvider struct {
	mu sync.Mutex

	token       *oauth.TokenResponse
	exchangeErr error
	user        *auth.UserProfile
	userErr     error
	active      bool
	introErrs   []error

	exchanges    int
	introspects  int
	exchangeGate chan struct{}
}

func (p *fakeProvider) AuthorizationURL(redirectURI, state string) string {
	return oauth.BuildAuthorizationURL("https://auth.example.com", "test-client", redirectURI, state)
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*oauth.TokenResponse, error) {
	p.mu.Lock()
	p.exchanges++
	gate := p.exchangeGate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.token, nil
}

func (p *fakeProvider) FetchUserInfo(ctx context.Context, accessToken string) (*auth.UserProfile, error) {
	if p.userErr != nil {
		return nil, p.userErr
	}
	u := *p.user
	return &u, nil
}

func (p *fakeProvider) Introspect(ctx context.Context, token string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.introspects++
	if p.introspects <= len(p.introErrs) {
		return false, p.introErrs[p.introspects-1]
	}
	return p.active, nil
}

func (p *fakeProvider) counts() (exchanges, introspects int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges, p.introspects
}

type fakeServer struct {
	port     int
	results  chan callback.Result
	startErr error
	stops    atomic.Int32
}

func newFakeServer(port int) *fakeServer {
	return &fakeServer{port: port, results: make(chan callback.Result, 1)}
}

func (s *fakeServer) Start(ctx context.Context) (int, error) {
	if s.startErr != nil {
		return 0, s.startErr
	}
	return s.port, nil
}

func (s *fakeServer) Results() <-chan callback.Result { return s.results }

func (s *fakeServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", s.port)
}

func (s *fakeServer) Stop() { s.stops.Add(1) }

type fakeUsage struct {
	calls atomic.Int32
	info  *auth.UsageInfo
}

func (u *fakeUsage) FetchWithRetry(ctx context.Context, src usage.TokenSource) *auth.UsageInfo {
	u.calls.Add(1)
	if _, ok := src.SessionToken(); !ok {
		return nil
	}
	return u.info
}

type harness struct {
	session  *Session
	provider *fakeProvider
	store    *credentials.Store
	notifier *events.ChannelNotifier
	usage    *fakeUsage

	mu      sync.Mutex
	servers []*fakeServer
	opened  []string
}

func newHarness(t *testing.T, modify func(*Dependencies)) *harness {
	t.Helper()

	store, err := credentials.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	h := &harness{
		provider: &fakeProvider{
			token:  &oauth.TokenResponse{AccessToken: "T1", RefreshToken: "R1"},
			user:   &auth.UserProfile{ID: "u1", Name: "Ann"},
			active: true,
		},
		store:    store,
		notifier: events.NewChannelNotifier(256),
		usage:    &fakeUsage{info: &auth.UsageInfo{RequestsRemaining: 42, TotalRequests: 100}},
	}

	deps := Dependencies{
		Provider: h.provider,
		Store:    store,
		Usage:    h.usage,
		Notifier: h.notifier,
		OpenBrowser: func(u string) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.opened = append(h.opened, u)
			return nil
		},
		NewServer: func() CallbackServer {
			h.mu.Lock()
			defer h.mu.Unlock()
			srv := newFakeServer(8000 + len(h.servers))
			h.servers = append(h.servers, srv)
			return srv
		},
		Timeout:         time.Minute,
		IntrospectRetry: retry.Policy{MaxAttempts: 3, Delay: time.Millisecond},
	}
	if modify != nil {
		modify(&deps)
	}

	sess, err := New(deps)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	h.session = sess
	return h
}

func (h *harness) server(t *testing.T, i int) *fakeServer {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(t, len(h.servers), i)
	return h.servers[i]
}

func (h *harness) serverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.servers)
}

func (h *harness) openedURLs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}

// pendingState returns the state embedded in the last opened authorization URL.
func (h *harness) pendingState(t *testing.T) string {
	t.Helper()
	opened := h.openedURLs()
	require.NotEmpty(t, opened)
	u, err := url.Parse(opened[len(opened)-1])
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// waitFor returns the next event of type typ, skipping others.
func (h *harness) waitFor(t *testing.T, typ events.Type) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.notifier.Events():
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
			return events.Event{}
		}
	}
}

func (h *harness) assertNoCredential(t *testing.T) {
	t.Helper()
	cred, err := h.store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Dependencies{Store: &credentials.Store{}})
	assert.Error(t, err)
	_, err = New(Dependencies{Provider: &fakeProvider{}})
	assert.Error(t, err)
}

func TestInitiate_SuccessfulSignIn(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.session.Initiate(context.Background()))
	status := h.session.Status()
	assert.Equal(t, auth.StateAuthenticating, status.State)
	assert.True(t, status.IsAuthenticating)

	authURL, ok := h.session.AuthorizationURL()
	require.True(t, ok)
	assert.Equal(t, h.openedURLs()[0], authURL)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/callback", u.Query().Get("redirect_uri"))

	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "abc123", State: h.pendingState(t)}

	success := h.waitFor(t, events.TypeAuthSuccess)
	assert.Contains(t, success.Message, "Ann")
	require.NotNil(t, success.Status.User)
	assert.Equal(t, "Ann", success.Status.User.Name)

	status = h.session.Status()
	assert.Equal(t, auth.StateSignedIn, status.State)
	assert.True(t, status.IsAuthenticated)
	assert.False(t, status.IsAuthenticating)
	assert.Equal(t, "Signed in | ", status.Summary())

	cred, err := h.store.Load()
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "T1", cred.SessionToken)
	assert.Equal(t, "R1", cred.RefreshToken)
	assert.True(t, cred.IsAuthenticated)
	assert.Equal(t, "u1", cred.User.ID)

	updated := h.waitFor(t, events.TypeUsageUpdated)
	require.NotNil(t, updated.Usage)
	assert.Equal(t, 42, updated.Usage.RequestsRemaining)
	assert.Equal(t, 42, h.session.LastUsage().RequestsRemaining)

	_, ok = h.session.AuthorizationURL()
	assert.False(t, ok)
}

func TestInitiate_StateMismatchIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))

	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "abc123", State: "forged"}

	e := h.waitFor(t, events.TypeAuthError)
	var csrf *CSRFViolationError
	assert.ErrorAs(t, e.Err, &csrf)
	assert.Equal(t, events.SeverityWarning, e.Severity)

	status := h.session.Status()
	assert.False(t, status.IsAuthenticated)
	assert.False(t, status.IsAuthenticating)
	h.assertNoCredential(t)

	exchanges, _ := h.provider.counts()
	assert.Zero(t, exchanges)
}

func TestInitiate_ProviderDeclined(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))

	h.server(t, 0).results <- callback.Result{
		Kind:             callback.KindProviderError,
		Error:            "access_denied",
		ErrorDescription: "User cancelled",
	}

	e := h.waitFor(t, events.TypeAuthError)
	assert.Contains(t, e.Message, "User cancelled")
	var declined *ProviderDeclinedError
	require.ErrorAs(t, e.Err, &declined)
	assert.Equal(t, "User cancelled", declined.Description)

	assert.Equal(t, auth.StateSignedOut, h.session.Status().State)
	h.assertNoCredential(t)
}

func TestInitiate_MalformedCallback(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))

	h.server(t, 0).results <- callback.Result{Kind: callback.KindMalformed}

	e := h.waitFor(t, events.TypeAuthError)
	assert.ErrorIs(t, e.Err, ErrNoAuthorizationCode)
	assert.Equal(t, "No authorization code received", e.Message)
	assert.False(t, h.session.Status().IsAuthenticating)
}

func TestInitiate_TwiceStartsOneFlow(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.session.Initiate(context.Background()))
	err := h.session.Initiate(context.Background())
	assert.ErrorIs(t, err, ErrAuthInProgress)

	assert.Equal(t, 1, h.serverCount())
	assert.Len(t, h.openedURLs(), 1)
}

func TestInitiate_ConcurrentCallersStartOneFlow(t *testing.T) {
	h := newHarness(t, nil)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.session.Initiate(context.Background()) == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, 1, h.serverCount())
	assert.Len(t, h.openedURLs(), 1)
}

func TestInitiate_AlreadySignedIn(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))
	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "c", State: h.pendingState(t)}
	h.waitFor(t, events.TypeAuthSuccess)

	require.NoError(t, h.session.Initiate(context.Background()))
	e := h.waitFor(t, events.TypeAuthSuccess)
	assert.Equal(t, "You are already signed in!", e.Message)
	assert.Equal(t, 1, h.serverCount())
}

func TestInitiate_Timeout(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Timeout = 50 * time.Millisecond })
	require.NoError(t, h.session.Initiate(context.Background()))

	e := h.waitFor(t, events.TypeAuthError)
	var timeout *TimeoutError
	require.ErrorAs(t, e.Err, &timeout)
	assert.Equal(t, "Authentication timeout - please try again", e.Message)

	status := h.session.Status()
	assert.False(t, status.IsAuthenticating)
	assert.Equal(t, auth.StateSignedOut, status.State)
	assert.GreaterOrEqual(t, h.server(t, 0).stops.Load(), int32(1))

	// A late redirect is ignored.
	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "late", State: h.pendingState(t)}
	time.Sleep(20 * time.Millisecond)
	exchanges, _ := h.provider.counts()
	assert.Zero(t, exchanges)

	// Not stuck: a new attempt starts.
	require.NoError(t, h.session.Initiate(context.Background()))
	assert.Equal(t, 2, h.serverCount())
}

func TestInitiate_ExchangeFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.exchangeErr = &oauth.TokenExchangeError{StatusCode: 400, ErrorCode: "invalid_grant", Description: "Code expired"}
	require.NoError(t, h.session.Initiate(context.Background()))

	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "c", State: h.pendingState(t)}

	e := h.waitFor(t, events.TypeAuthError)
	assert.Equal(t, "Could not complete sign-in: Code expired", e.Message)
	assert.False(t, h.session.Status().IsAuthenticating)
	assert.False(t, h.session.Status().IsAuthenticated)
	h.assertNoCredential(t)
}

func TestInitiate_UserInfoFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.userErr = &oauth.UserInfoError{StatusCode: 500}
	require.NoError(t, h.session.Initiate(context.Background()))

	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "c", State: h.pendingState(t)}

	e := h.waitFor(t, events.TypeAuthError)
	var infoErr *oauth.UserInfoError
	assert.ErrorAs(t, e.Err, &infoErr)
	assert.False(t, h.session.Status().IsAuthenticating)
	h.assertNoCredential(t)
}

func TestInitiate_ServerStartFailure(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.NewServer = func() CallbackServer {
			srv := newFakeServer(0)
			srv.startErr = &callback.PortExhaustionError{Low: 8000, High: 8020}
			return srv
		}
	})

	err := h.session.Initiate(context.Background())
	var exhausted *callback.PortExhaustionError
	require.ErrorAs(t, err, &exhausted)

	e := h.waitFor(t, events.TypeAuthError)
	assert.Contains(t, e.Message, "no free port between 8000 and 8020")
	assert.False(t, h.session.Status().IsAuthenticating)
	assert.Empty(t, h.openedURLs())
}

func TestInitiate_BrowserFailureKeepsFlowPending(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.OpenBrowser = func(string) error { return errors.New("no display") }
	})

	require.NoError(t, h.session.Initiate(context.Background()))
	authURL, ok := h.session.AuthorizationURL()
	require.True(t, ok)
	assert.Contains(t, authURL, "/oauth2/authorize")
	assert.True(t, h.session.Status().IsAuthenticating)
}

func TestInitiate_CancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, h.session.Initiate(ctx), context.Canceled)
	assert.False(t, h.session.Status().IsAuthenticating)
}

func TestInitiate_StopsLingeringServer(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))
	h.server(t, 0).results <- callback.Result{Kind: callback.KindProviderError, Error: "access_denied"}
	h.waitFor(t, events.TypeAuthError)

	before := h.server(t, 0).stops.Load()
	require.NoError(t, h.session.Initiate(context.Background()))
	assert.Greater(t, h.server(t, 0).stops.Load(), before)
}

func TestSignOut(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))
	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "c", State: h.pendingState(t)}
	h.waitFor(t, events.TypeAuthSuccess)

	require.NoError(t, h.session.SignOut())
	e := h.waitFor(t, events.TypeAuthSignedOut)
	assert.False(t, e.Status.IsAuthenticated)

	assert.False(t, h.session.Status().IsAuthenticated)
	assert.Nil(t, h.session.LastUsage())
	h.assertNoCredential(t)

	_, ok := h.session.SessionToken()
	assert.False(t, ok)
}

func TestSignOut_CancelsPendingFlow(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))

	require.NoError(t, h.session.SignOut())
	assert.GreaterOrEqual(t, h.server(t, 0).stops.Load(), int32(1))
	assert.False(t, h.session.Status().IsAuthenticating)

	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "c", State: "whatever"}
	time.Sleep(20 * time.Millisecond)
	assert.False(t, h.session.Status().IsAuthenticated)
}

func TestSignOut_DuringExchangeDiscardsResult(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.exchangeGate = make(chan struct{})
	require.NoError(t, h.session.Initiate(context.Background()))
	h.server(t, 0).results <- callback.Result{Kind: callback.KindCode, Code: "c", State: h.pendingState(t)}

	require.Eventually(t, func() bool {
		exchanges, _ := h.provider.counts()
		return exchanges == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, h.session.SignOut())
	close(h.provider.exchangeGate)
	time.Sleep(20 * time.Millisecond)

	assert.False(t, h.session.Status().IsAuthenticated)
	h.assertNoCredential(t)
}

func TestLoadPersisted_NoCredential(t *testing.T) {
	h := newHarness(t, nil)

	status, err := h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedOut, status.State)

	_, introspects := h.provider.counts()
	assert.Zero(t, introspects)
}

func TestLoadPersisted_ActiveToken(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.Save(&credentials.Credential{
		SessionToken:    "T0",
		User:            &auth.UserProfile{ID: "u1", Name: "Old Name"},
		IsAuthenticated: true,
	}))

	status, err := h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedIn, status.State)
	assert.Equal(t, "Ann", status.User.Name)

	token, ok := h.session.SessionToken()
	assert.True(t, ok)
	assert.Equal(t, "T0", token)

	cred, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "Ann", cred.User.Name, "refreshed profile is persisted")

	h.waitFor(t, events.TypeUsageUpdated)
}

func TestLoadPersisted_InactiveTokenClearsSilently(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.active = false
	require.NoError(t, h.store.Save(&credentials.Credential{SessionToken: "T0", IsAuthenticated: true}))

	status, err := h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedOut, status.State)
	h.assertNoCredential(t)

	select {
	case e := <-h.notifier.Events():
		assert.NotEqual(t, events.TypeAuthError, e.Type)
	default:
	}
	_, ok := h.session.SessionToken()
	assert.False(t, ok)
}

func TestLoadPersisted_RetriesTransportFailures(t *testing.T) {
	h := newHarness(t, nil)
	netErr := &oauth.NetworkError{Op: "token introspection", Err: errors.New("connection refused")}
	h.provider.introErrs = []error{netErr, netErr}
	require.NoError(t, h.store.Save(&credentials.Credential{SessionToken: "T0", IsAuthenticated: true}))

	status, err := h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedIn, status.State)

	_, introspects := h.provider.counts()
	assert.Equal(t, 3, introspects)
}

func TestLoadPersisted_IntrospectionErrorIsNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.introErrs = []error{&oauth.IntrospectionError{StatusCode: 500}}
	require.NoError(t, h.store.Save(&credentials.Credential{SessionToken: "T0", IsAuthenticated: true}))

	status, err := h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedOut, status.State)
	h.assertNoCredential(t)

	_, introspects := h.provider.counts()
	assert.Equal(t, 1, introspects)
}

func TestLoadPersisted_NoProfileKeepsCredential(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.userErr = &oauth.UserInfoError{StatusCode: 500}
	require.NoError(t, h.store.Save(&credentials.Credential{SessionToken: "T0", IsAuthenticated: true}))

	var status auth.Status
	require.NotPanics(t, func() {
		var err error
		status, err = h.session.LoadPersisted(context.Background())
		require.NoError(t, err)
	})
	assert.Equal(t, auth.StateSignedOut, status.State)
	assert.Nil(t, status.User)

	_, ok := h.session.SessionToken()
	assert.False(t, ok)

	cred, err := h.store.Load()
	require.NoError(t, err)
	require.NotNil(t, cred, "credential is kept for the next attempt")
	assert.Equal(t, "T0", cred.SessionToken)
}

func TestLoadPersisted_StoredProfileUsedWhenRefreshFails(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.userErr = &oauth.UserInfoError{StatusCode: 500}
	require.NoError(t, h.store.Save(&credentials.Credential{
		SessionToken:    "T0",
		User:            &auth.UserProfile{ID: "u1", Name: "Old Name"},
		IsAuthenticated: true,
	}))

	status, err := h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedIn, status.State)
	assert.Equal(t, "Old Name", status.User.Name)
}

func TestLoadPersisted_CancelledKeepsCredential(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.introErrs = []error{context.Canceled}
	require.NoError(t, h.store.Save(&credentials.Credential{SessionToken: "T0", IsAuthenticated: true}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := h.session.LoadPersisted(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedOut, status.State)

	_, ok := h.session.SessionToken()
	assert.False(t, ok)

	cred, err := h.store.Load()
	require.NoError(t, err)
	require.NotNil(t, cred, "cancellation must not delete the credential")
	assert.Equal(t, "T0", cred.SessionToken)

	// A later attempt with a live context restores the session.
	status, err = h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StateSignedIn, status.State)
}

func TestFetchUsage_SignedOut(t *testing.T) {
	h := newHarness(t, nil)
	assert.Nil(t, h.session.FetchUsage(context.Background()))
	assert.Nil(t, h.session.LastUsage())
}

func TestFetchUsage_WithoutFetcher(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Usage = nil })
	assert.Nil(t, h.session.FetchUsage(context.Background()))
}

func TestWatchCredentials_ExternalRemoval(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.store.Save(&credentials.Credential{SessionToken: "T0", IsAuthenticated: true}))
	_, err := h.session.LoadPersisted(context.Background())
	require.NoError(t, err)
	require.True(t, h.session.Status().IsAuthenticated)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.session.WatchCredentials(ctx))

	other, err := credentials.NewStore(h.store.Path())
	require.NoError(t, err)
	require.NoError(t, other.Clear())

	h.waitFor(t, events.TypeAuthSignedOut)
	assert.False(t, h.session.Status().IsAuthenticated)
}

func TestWatchCredentials_ExternalSignIn(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.session.WatchCredentials(ctx))

	other, err := credentials.NewStore(h.store.Path())
	require.NoError(t, err)
	require.NoError(t, other.Save(&credentials.Credential{SessionToken: "T9", IsAuthenticated: true}))

	require.Eventually(t, func() bool { return h.session.Status().IsAuthenticated }, 2*time.Second, 5*time.Millisecond)
	token, _ := h.session.SessionToken()
	assert.Equal(t, "T9", token)
}

func TestClose(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.session.Initiate(context.Background()))

	h.session.Close()
	h.session.Close()

	assert.GreaterOrEqual(t, h.server(t, 0).stops.Load(), int32(1))
	assert.False(t, h.session.Status().IsAuthenticating)
	assert.ErrorIs(t, h.session.Initiate(context.Background()), ErrClosed)
}

func TestUserMessage(t *testing.T) {
	messages := map[string]string{
		"declined":  UserMessage(&ProviderDeclinedError{Code: "access_denied", Description: "User cancelled"}),
		"csrf":      UserMessage(&CSRFViolationError{}),
		"exchange":  UserMessage(&oauth.TokenExchangeError{ErrorCode: "invalid_grant"}),
		"userinfo":  UserMessage(&oauth.UserInfoError{StatusCode: 401}),
		"slow":      UserMessage(&oauth.NetworkError{Op: "x", Timeout: true, Err: errors.New("deadline")}),
		"down":      UserMessage(&oauth.NetworkError{Op: "x", Err: errors.New("refused")}),
		"timeout":   UserMessage(&TimeoutError{After: time.Minute}),
		"ports":     UserMessage(&callback.PortExhaustionError{Low: 1, High: 2}),
		"io":        UserMessage(&credentials.IOError{Op: "write", Path: "p", Err: errors.New("disk full")}),
		"nocode":    UserMessage(ErrNoAuthorizationCode),
		"otherwise": UserMessage(errors.New("boom")),
	}

	seen := make(map[string]string)
	for name, msg := range messages {
		assert.NotEmpty(t, msg, name)
		if prev, dup := seen[msg]; dup {
			t.Errorf("%s and %s share message %q", name, prev, msg)
		}
		seen[msg] = name
	}

	assert.Equal(t, "Sign-in was declined: User cancelled", messages["declined"])
	assert.Contains(t, messages["slow"], "took too long")
	assert.Contains(t, messages["down"], "backend may not be running")
	assert.Empty(t, UserMessage(nil))
}
