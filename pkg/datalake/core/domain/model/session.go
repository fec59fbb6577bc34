package model

import (
	"fmt"
	"sync"
	"time"
)

// Session holds the token obtained at login. It is owned by one orchestrator run and passed
// explicitly to every component that calls the data lake. Chunk workers read it concurrently;
// only login creates it and only logout invalidates it.
type Session struct {
	mu        sync.RWMutex
	token     string
	account   string
	createdAt time.Time
}

// NewSession creates a live session.
func NewSession(account, token string, createdAt time.Time) *Session {
	return &Session{account: account, token: token, createdAt: createdAt}
}

// Token returns the current token, or "" once the session was invalidated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Valid reports whether the session still carries a token.
func (s *Session) Valid() bool {
	return s.Token() != ""
}

// Account returns the account the session was opened for.
func (s *Session) Account() string {
	return s.account
}

// CreatedAt returns the login time.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Invalidate clears the token. Safe to call more than once.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// String never exposes the token.
func (s *Session) String() string {
	state := "invalidated"
	if s.Valid() {
		state = "live"
	}
	return fmt.Sprintf("Session{token=********, state=%s, since=%s}", state, s.createdAt.UTC().Format(time.RFC3339))
}
