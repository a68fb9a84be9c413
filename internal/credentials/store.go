package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deskauth/pkg/auth"
)

// DefaultPath is the credential location relative to the user's home directory.
const DefaultPath = ".config/deskauth/credentials.json"

// Credential is the persisted session record.
type Credential struct {
	SessionToken    string            `json:"sessionToken"`
	RefreshToken    string            `json:"refreshToken,omitempty"`
	User            *auth.UserProfile `json:"user,omitempty"`
	IsAuthenticated bool              `json:"isAuthenticated"`
	SavedAt         time.Time         `json:"savedAt"`
}

// Usable reports whether the record carries enough to attempt a restore.
func (c *Credential) Usable() bool {
	return c != nil && c.IsAuthenticated && c.SessionToken != ""
}

// Store reads and writes the credential file.
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStore creates a store for path. An empty path selects DefaultPath under
// the user's home directory. The parent directory is created if missing.
func NewStore(path string) (*Store, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, &IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}

	return &Store{path: path, now: time.Now}, nil
}

// Path returns the credential file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted credential, or nil if none exists.
// An unparsable file is logged and treated as absent.
func (s *Store) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path is fixed at construction, not user input per call
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		slog.Warn("Credential file is unreadable, treating as signed out",
			"path", s.path,
			"size", len(data),
			"error", err.Error(),
		)
		return nil, nil
	}

	return &cred, nil
}

// Save atomically replaces the persisted credential. SavedAt is stamped here.
// SECURITY: token values are never logged.
func (s *Store) Save(cred *Credential) error {
	if cred == nil {
		return errors.New("credential is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := *cred
	record.SavedAt = s.now().UTC()

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		slog.Warn("SECURITY_AUDIT: credential storage failed",
			"event", "credential_store_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return &IOError{Op: "write", Path: s.path, Err: err}
	}

	cred.SavedAt = record.SavedAt
	slog.Info("SECURITY_AUDIT: credential stored",
		"event", "credential_stored",
		"path", s.path,
		"has_refresh_token", record.RefreshToken != "",
	)
	return nil
}

// Clear deletes the persisted credential. A missing file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("SECURITY_AUDIT: credential deletion failed",
			"event", "credential_delete_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return &IOError{Op: "remove", Path: s.path, Err: err}
	}

	slog.Info("SECURITY_AUDIT: credential deleted",
		"event", "credential_deleted",
		"path", s.path,
	)
	return nil
}
