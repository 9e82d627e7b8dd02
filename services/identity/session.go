package identity

import (
	"context"
	"sync"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/session"
)

// Session is the sign-in state of one client. It implements session.IdentityStream.
type Session struct {
	deliver sync.Mutex // serializes notifications

	mu        sync.Mutex
	current   *session.Identity
	listeners map[int]func(*session.Identity)
	next      int
}

var _ session.IdentityStream = (*Session)(nil)

func NewSession() *Session {
	return &Session{listeners: make(map[int]func(*session.Identity))}
}

// Current returns a copy of the signed-in identity, or nil.
func (s *Session) Current() *session.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIdentity(s.current)
}

func (s *Session) OnChange(fn func(*session.Identity)) core.Unsubscribe {
	s.deliver.Lock()
	s.mu.Lock()
	key := s.next
	s.next++
	s.listeners[key] = fn
	current := copyIdentity(s.current)
	s.mu.Unlock()
	fn(current)
	s.deliver.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, key)
			s.mu.Unlock()
		})
	}
}

// SignIn checks creds with provider and, on success, makes the identity current.
func (s *Session) SignIn(ctx context.Context, provider session.Provider, creds session.Credentials) (session.Identity, error) {
	id, err := provider.SignIn(ctx, creds)
	if err != nil {
		return session.Identity{}, err
	}
	s.Set(&id)
	return id, nil
}

// Set replaces the current identity and notifies listeners. nil signs out.
func (s *Session) Set(id *session.Identity) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.current = copyIdentity(id)
	fns := make([]func(*session.Identity), 0, len(s.listeners))
	for i := 0; i < s.next; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

func (s *Session) SignOut() {
	s.Set(nil)
}

func copyIdentity(id *session.Identity) *session.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
