package workspace

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

// Sessions tracks the user's chat threads and which one is active. Once
// bootstrapped the list is never empty.
type Sessions struct {
	client *backend.Client
	logger *slog.Logger

	mu       sync.Mutex
	sessions []backend.ChatSession
	active   backend.ID
	gen      uint64

	onActivate func(ctx context.Context, id backend.ID)
}

func newSessions(client *backend.Client, logger *slog.Logger) *Sessions {
	return &Sessions{client: client, logger: logger}
}

// Bootstrap loads the list and activates the newest session, creating one
// when the user has none.
func (s *Sessions) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	list, err := s.client.ListSessions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.sessions = list
	if len(list) == 0 {
		s.mu.Unlock()
		_, err := s.Create(ctx)
		return err
	}
	first := list[0].ID
	s.mu.Unlock()

	s.activate(ctx, first)
	return nil
}

// Create starts a new session, puts it first and activates it.
func (s *Sessions) Create(ctx context.Context) (*backend.ChatSession, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	session, err := s.client.CreateSession(ctx, backend.DefaultSessionTitle)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	s.sessions = append([]backend.ChatSession{*session}, s.sessions...)
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", session.ID)
	s.activate(ctx, session.ID)
	return session, nil
}

// Rename applies the new title locally first and restores the old one if
// the service rejects it.
func (s *Sessions) Rename(ctx context.Context, id backend.ID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return invalid("title", "required")
	}

	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		return unknown("session", id)
	}
	previous := s.sessions[i].Title
	s.sessions[i].Title = title
	s.mu.Unlock()

	if err := s.client.RenameSession(ctx, id, title); err != nil {
		s.mu.Lock()
		if i := s.index(id); i >= 0 && s.sessions[i].Title == title {
			s.sessions[i].Title = previous
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Delete removes a session. Deleting the active one activates the next
// newest, or a freshly created session when none remain.
func (s *Sessions) Delete(ctx context.Context, id backend.ID) error {
	s.mu.Lock()
	if s.index(id) < 0 {
		s.mu.Unlock()
		return unknown("session", id)
	}
	s.mu.Unlock()

	if err := s.client.DeleteSession(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	if i := s.index(id); i >= 0 {
		s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
	}
	wasActive := s.active == id
	if wasActive {
		s.active = ""
	}
	var next backend.ID
	if len(s.sessions) > 0 {
		next = s.sessions[0].ID
	}
	s.mu.Unlock()

	if !wasActive {
		return nil
	}
	if next != "" {
		s.activate(ctx, next)
		return nil
	}
	_, err := s.Create(ctx)
	return err
}

func (s *Sessions) Select(ctx context.Context, id backend.ID) error {
	s.mu.Lock()
	known := s.index(id) >= 0
	s.mu.Unlock()
	if !known {
		return unknown("session", id)
	}
	s.activate(ctx, id)
	return nil
}

func (s *Sessions) activate(ctx context.Context, id backend.ID) {
	s.mu.Lock()
	s.active = id
	fn := s.onActivate
	s.mu.Unlock()
	if fn != nil {
		fn(ctx, id)
	}
}

func (s *Sessions) Active() backend.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Sessions) Sessions() []backend.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.ChatSession(nil), s.sessions...)
}

func (s *Sessions) Get(id backend.ID) (backend.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.sessions[i], true
	}
	return backend.ChatSession{}, false
}

// index returns the position of id or -1. Caller holds s.mu.
func (s *Sessions) index(id backend.ID) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func (s *Sessions) reset() {
	s.mu.Lock()
	s.sessions = nil
	s.active = ""
	s.gen++
	s.mu.Unlock()
}
