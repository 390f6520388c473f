package tools

import (
	"sync"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"golang.org/x/exp/maps"
)

// Sessions holds the dynamically registered tools of each user on top of a
// shared static registry. Users never see each other's dynamic tools.
type Sessions struct {
	static *Registry

	mu    sync.RWMutex
	users map[string]*Registry
}

// NewSessions creates session storage layered over static.
func NewSessions(static *Registry) *Sessions {
	return &Sessions{
		static: static,
		users:  make(map[string]*Registry),
	}
}

// Static returns the registry shared by all users.
func (s *Sessions) Static() *Registry {
	return s.static
}

// UserRegistry returns the dynamic registry of userID, creating it on first
// use.
func (s *Sessions) UserRegistry(userID string) *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.users[userID]
	if !ok {
		r = NewRegistry()
		s.users[userID] = r
	}
	return r
}

// Drop forgets all dynamic tools of userID.
func (s *Sessions) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// Users returns a snapshot of the users which have dynamic tools.
func (s *Sessions) Users() map[string]*Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.users)
}

// View returns the tools visible to userID: the static tools followed by
// the user's dynamic tools. A dynamic tool shadows a static tool of the
// same name.
func (s *Sessions) View(userID string) *Registry {
	view := NewRegistry()
	for _, t := range s.static.List() {
		view.Register(t)
	}
	s.mu.RLock()
	user, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		for _, t := range user.List() {
			view.Register(t)
		}
	}
	return view
}

// Lookup resolves tools by name.
type Lookup interface {
	Get(name string) (pub_models.LLMTool, bool)
}
