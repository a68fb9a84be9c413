package callback

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// DefaultPortLow and DefaultPortHigh bound the ports probed for the listener.
	DefaultPortLow  = 8000
	DefaultPortHigh = 8020

	// Path is the route the provider redirects to.
	Path = "/callback"

	// DefaultShutdownGrace is how long the server stays up after answering the
	// callback so the browser can render the page.
	DefaultShutdownGrace = 5 * time.Second

	// DefaultTimeout is how long a flow waits for the callback.
	DefaultTimeout = 10 * time.Minute
)

//go:embed templates/success.html
var successHTML string

//go:embed templates/provider_error.html
var providerErrorHTML string

//go:embed templates/malformed.html
var malformedHTML string

var (
	successTmpl       = template.Must(template.New("success").Parse(successHTML))
	providerErrorTmpl = template.Must(template.New("provider_error").Parse(providerErrorHTML))
	malformedTmpl     = template.Must(template.New("malformed").Parse(malformedHTML))
)

// Config configures a callback server.
type Config struct {
	// PortLow and PortHigh bound the probed port range (inclusive).
	PortLow  int
	PortHigh int

	// ShutdownGrace is the delay between answering the callback and stopping.
	ShutdownGrace time.Duration
}

// Server is a short-lived loopback HTTP server that receives one OAuth redirect.
// It delivers the first callback on Results and ignores the rest.
type Server struct {
	cfg Config

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	port       int
	started    bool
	stopped    bool

	results   chan Result
	delivered sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewServer creates a callback server. Zero values in cfg select the defaults.
func NewServer(cfg Config) *Server {
	if cfg.PortLow == 0 && cfg.PortHigh == 0 {
		cfg.PortLow = DefaultPortLow
		cfg.PortHigh = DefaultPortHigh
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}

	return &Server{
		cfg:     cfg,
		results: make(chan Result, 1),
		done:    make(chan struct{}),
	}
}

// Start binds the first free port of the range on the loopback interface and
// begins serving. The server stops when ctx is done.
// Returns the bound port so it can be embedded in the redirect URI.
func (s *Server) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return 0, ErrServerUsed
	}

	listener, err := s.bind()
	if err != nil {
		return 0, err
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(securityHeaders)
	router.Get(Path, s.handleCallback)

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.started = true

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Callback server stopped unexpectedly", "port", s.port, "error", err.Error())
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	slog.Debug("Callback server started", "redirect_uri", s.redirectURI())
	return s.port, nil
}

// bind probes for a free port and binds it. A failed bind after a successful
// probe means another process won the race; the next port is tried.
func (s *Server) bind() (net.Listener, error) {
	next := s.cfg.PortLow
	for {
		if next > s.cfg.PortHigh {
			return nil, &PortExhaustionError{Low: s.cfg.PortLow, High: s.cfg.PortHigh}
		}

		port, err := FindAvailablePort(next, s.cfg.PortHigh)
		if err != nil {
			var exhausted *PortExhaustionError
			if errors.As(err, &exhausted) {
				exhausted.Low = s.cfg.PortLow
			}
			return nil, err
		}

		listener, err := net.Listen("tcp", loopbackAddr(port))
		if err == nil {
			return listener, nil
		}

		bindErr := &BindError{Port: port, Err: err}
		slog.Debug("Callback port lost between probe and bind, trying next", "error", bindErr.Error())
		next = port + 1
	}
}

// Results delivers the first callback. At most one value is ever sent.
func (s *Server) Results() <-chan Result {
	return s.results
}

// Done is closed once the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// RedirectURI returns the URI the provider must redirect to.
func (s *Server) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectURI()
}

func (s *Server) redirectURI() string {
	return fmt.Sprintf("http://%s%s", loopbackAddr(s.port), Path)
}

// Stop shuts the server down and releases the port. It is safe to call more
// than once and before Start.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		httpServer := s.httpServer
		listener := s.listener
		port := s.port
		s.mu.Unlock()

		if httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = httpServer.Shutdown(ctx)
			cancel()
		}
		if listener != nil {
			_ = listener.Close()
		}
		close(s.done)

		if port != 0 {
			slog.Debug("Callback server stopped", "port", port)
		}
	})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	result := ParseResult(r.URL.Query())

	page, err := renderPage(result)
	if err != nil {
		slog.Error("Failed to render callback page", "kind", result.Kind.String(), "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	}

	s.deliver(result)
}

// deliver hands the first result to the owner and schedules shutdown.
// Repeated requests (browser retries, refreshes) are answered but not delivered.
func (s *Server) deliver(result Result) {
	first := false
	s.delivered.Do(func() { first = true })
	if !first {
		slog.Debug("Ignoring repeated OAuth callback", "kind", result.Kind.String())
		return
	}

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		slog.Warn("Discarding OAuth callback received after shutdown", "kind", result.Kind.String())
		return
	}

	s.results <- result

	time.AfterFunc(s.cfg.ShutdownGrace, s.Stop)
}

func renderPage(result Result) ([]byte, error) {
	var (
		tmpl *template.Template
		data interface{}
	)

	switch result.Kind {
	case KindProviderError:
		tmpl = providerErrorTmpl
		data = map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		}
	case KindCode:
		tmpl = successTmpl
	default:
		tmpl = malformedTmpl
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
