// Shiptrack - Logistics Tracking Real-Time Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shiptrack

// Package credential persists the bearer credential used for the backend and the
// push channel, and tells subscribers when it changes.
//
// The credential lives in a single file holding the raw token. Clear truncates the
// file rather than removing it so an active watcher keeps working. Changes made by
// another process (an operator writing a new token, a login helper) are picked up
// by Watch through the koanf file provider.
package credential

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/knadh/koanf/providers/file"

	"github.com/tomtom215/shiptrack/internal/logging"
	"github.com/tomtom215/shiptrack/internal/metrics"
)

// Change sources passed to listeners.
const (
	SourceSet          = "set"
	SourceClear        = "clear"
	SourceFile         = "file"
	SourceUnauthorized = "unauthorized"
)

// Listener is called after the credential changes. token is the new effective
// credential and may be empty.
type Listener func(token, source string)

// Store is a file-backed credential.
type Store struct {
	path string
	now  func() time.Time

	mu        sync.RWMutex
	token     string
	listeners []Listener

	// writeMu orders updates with file reloads so the in-memory token only
	// changes after the file holds it. Listeners run after it is released.
	writeMu sync.Mutex

	watchMu  sync.Mutex
	provider *file.File
}

// New opens the credential stored at path. A missing file means no credential.
func New(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	tok, err := s.read()
	if err != nil {
		return nil, err
	}
	s.token = tok
	return s, nil
}

// Path returns the credential file location.
func (s *Store) Path() string { return s.path }

// Token returns the current credential, or "" when none is stored or the stored
// JWT has expired.
func (s *Store) Token() string {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok == "" || Expired(tok, s.now()) {
		return ""
	}
	return tok
}

// OnChange registers fn to run after every credential change.
func (s *Store) OnChange(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Set stores token and persists it.
func (s *Store) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credential: empty token")
	}
	return s.update(token, SourceSet)
}

// Clear forgets the credential.
func (s *Store) Clear() error {
	return s.update("", SourceClear)
}

// Invalidate clears the credential after the backend rejected it.
func (s *Store) Invalidate() error {
	return s.update("", SourceUnauthorized)
}

func (s *Store) update(token, source string) error {
	s.writeMu.Lock()
	if err := s.write(token); err != nil {
		s.writeMu.Unlock()
		return err
	}
	s.mu.Lock()
	changed := s.token != token
	s.token = token
	s.mu.Unlock()
	s.writeMu.Unlock()

	if changed {
		s.notify(token, source)
	}
	return nil
}

// Watch starts watching the credential file for changes made by other processes.
// The file is created empty when it does not exist yet.
func (s *Store) Watch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.provider != nil {
		return nil
	}

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(""); err != nil {
			return err
		}
	}

	provider := file.Provider(s.path)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			logging.Warn().Err(err).Str("path", s.path).Msg("Credential watcher stopped")
			return
		}
		s.reload()
	})
	if err != nil {
		return fmt.Errorf("watch credential file: %w", err)
	}
	s.provider = provider
	logging.Debug().Str("path", s.path).Msg("Watching credential file")
	return nil
}

// Unwatch stops a watcher started by Watch.
func (s *Store) Unwatch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.provider == nil {
		return nil
	}
	err := s.provider.Unwatch()
	s.provider = nil
	return err
}

// reload re-reads the file after a watch event and notifies on a real change.
// Events caused by our own writes find the same token and are ignored.
func (s *Store) reload() {
	s.writeMu.Lock()
	tok, err := s.read()
	if err != nil {
		s.writeMu.Unlock()
		logging.Warn().Err(err).Str("path", s.path).Msg("Failed to reload credential")
		return
	}
	s.mu.Lock()
	changed := s.token != tok
	s.token = tok
	s.mu.Unlock()
	s.writeMu.Unlock()

	if changed {
		logging.Info().Bool("present", tok != "").Msg("Credential changed on disk")
		s.notify(tok, SourceFile)
	}
}

func (s *Store) notify(token, source string) {
	metrics.CredentialChanges.WithLabelValues(source).Inc()

	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	if token != "" && Expired(token, s.now()) {
		token = ""
	}
	for _, fn := range listeners {
		fn(token, source)
	}
}

func (s *Store) read() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	return string(bytes.TrimSpace(data)), nil
}

func (s *Store) write(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// Expired reports whether token is a JWT whose exp claim is at or before now.
// Opaque tokens and JWTs without exp never expire. The signature is not checked;
// only the backend can do that.
func Expired(token string, now time.Time) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
