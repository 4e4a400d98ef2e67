package leanstore

import "sync"

// SessionStore keeps the session token of the current user between calls.
type SessionStore interface {
	// CurrentSessionToken returns the stored token, if any.
	CurrentSessionToken() (string, bool)
	StoreSession(userID, token string) error
	ClearSession() error
}

// MemorySessionStore is a SessionStore living as long as the process.
type MemorySessionStore struct {
	mu     sync.Mutex
	userID string
	token  string
}

func (s *MemorySessionStore) CurrentSessionToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

// CurrentUserID returns the id of the user the stored session belongs to.
func (s *MemorySessionStore) CurrentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *MemorySessionStore) StoreSession(userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.token = userID, token
	return nil
}

func (s *MemorySessionStore) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID, s.token = "", ""
	return nil
}
