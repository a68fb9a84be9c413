package cmd

import (
	"deskauth/internal/browser"
	"deskauth/internal/callback"
	"deskauth/internal/config"
	"deskauth/internal/credentials"
	"deskauth/internal/events"
	"deskauth/internal/oauth"
	"deskauth/internal/retry"
	"deskauth/internal/session"
	"deskauth/internal/usage"
)

// app bundles the components a command works with.
type app struct {
	cfg     config.Config
	store   *credentials.Store
	client  *oauth.Client
	session *session.Session
	events  *events.ChannelNotifier
}

// newApp wires the session from cfg. openBrowser may be nil for the system default.
func newApp(cfg config.Config, openBrowser browser.Opener) (*app, error) {
	store, err := credentials.NewStore(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}

	client := oauth.NewClient(cfg.APIBaseURL, cfg.ClientID,
		oauth.WithScopes(cfg.Scopes...),
		oauth.WithRequestTimeout(cfg.RequestTimeout),
	)

	fetcher := usage.NewFetcher(client, retry.Policy{
		Name:        "usage fetch",
		MaxAttempts: cfg.UsageRetry.MaxAttempts,
		Delay:       cfg.UsageRetry.Delay,
	})

	ch := events.NewChannelNotifier(0)
	serverCfg := callback.Config{
		PortLow:       cfg.Callback.PortLow,
		PortHigh:      cfg.Callback.PortHigh,
		ShutdownGrace: cfg.Callback.ShutdownGrace,
	}

	sess, err := session.New(session.Dependencies{
		Provider:    client,
		Store:       store,
		Usage:       fetcher,
		Notifier:    events.Multi(events.LogNotifier{}, ch),
		OpenBrowser: openBrowser,
		NewServer: func() session.CallbackServer {
			return callback.NewServer(serverCfg)
		},
		Timeout: cfg.Callback.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		store:   store,
		client:  client,
		session: sess,
		events:  ch,
	}, nil
}

// Close stops background work and releases the event channel.
func (a *app) Close() {
	a.session.Close()
	a.events.Close()
}
