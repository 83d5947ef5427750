package client

import "sync"

// Session is the client-held copy of the authenticated user and tokens.
// It is passed explicitly to whatever needs it; the zero value is an
// anonymous session.
type Session struct {
	mu           sync.RWMutex
	user         *User
	accessToken  string
	refreshToken string
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Set(user *User, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user != nil {
		u := *user
		s.user = &u
	}
	s.accessToken = accessToken
	s.refreshToken = refreshToken
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken != ""
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}
