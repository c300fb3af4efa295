package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/hermes"
	"github.com/MikeSquared-Agency/oracle/internal/store"
)

type Config struct {
	PollInterval     time.Duration
	SyncRecheckDelay time.Duration
	Model            string
	Settings         Settings
	// AutoPoll starts the sync poller on sign-in. One-shot CLI commands
	// leave it off.
	AutoPoll bool
}

// Workspace is the application state: it owns every component and wires
// sign-in bootstrap, sign-out teardown and the context-change cascade.
type Workspace struct {
	Auth     *Auth
	Teams    *Teams
	Sources  *Sources
	Poller   *Poller
	Sessions *Sessions
	Chat     *Chat
	Options  *Options

	client   *backend.Client
	notify   notifier
	logger   *slog.Logger
	autoPoll bool

	mu    sync.Mutex
	scope Scope
	gen   uint64
}

// New builds a signed-out workspace. prefs and events may be nil.
func New(client *backend.Client, prefs *store.Preferences, cfg Config, events Publisher, logger *slog.Logger) *Workspace {
	n := notifier{pub: events, logger: logger}
	sources := newSources(client, logger)
	options := newOptions(client, cfg.Settings, cfg.Model, logger)

	w := &Workspace{
		Auth:     newAuth(client, prefs, logger),
		Teams:    newTeams(client, logger),
		Sources:  sources,
		Poller:   newPoller(client, sources, cfg.PollInterval, cfg.SyncRecheckDelay, n, logger),
		Sessions: newSessions(client, logger),
		Chat:     newChat(client, sources, options, n, logger),
		Options:  options,
		client:   client,
		notify:   n,
		logger:   logger,
		autoPoll: cfg.AutoPoll,
	}

	w.Auth.onSignedIn = w.bootstrap
	w.Auth.onSignedOut = w.teardown
	w.Sessions.onActivate = func(ctx context.Context, id backend.ID) {
		if err := w.Chat.LoadHistory(ctx, id); err != nil {
			w.logger.Warn("failed to load session history", "session_id", id, "error", err)
		}
	}
	return w
}

// bootstrap loads teams, sources, sessions and models concurrently. One
// failing load does not stop the others; the first error is returned.
func (w *Workspace) bootstrap(ctx context.Context, user backend.User) error {
	w.notify.emit(hermes.SubjectSignedIn, hermes.SignedInEvent{
		UserID:    string(user.ID),
		Username:  user.Username,
		Timestamp: time.Now().UTC(),
	})

	var g errgroup.Group
	load := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				w.logger.Warn("bootstrap load failed", "component", name, "error", err)
				return fmt.Errorf("load %s: %w", name, err)
			}
			return nil
		})
	}
	load("teams", func() error { _, err := w.Teams.List(ctx); return err })
	load("sources", func() error { _, err := w.Sources.List(ctx); return err })
	load("sessions", func() error { return w.Sessions.Bootstrap(ctx) })
	load("models", func() error { _, err := w.Options.LoadModels(ctx); return err })
	err := g.Wait()

	if w.autoPoll {
		if perr := w.Poller.Start(w.Scope()); perr != nil && !errors.Is(perr, ErrNotAuthenticated) {
			w.logger.Warn("failed to start sync poller", "error", perr)
		}
	}
	w.logger.Info("workspace ready", "username", user.Username, "context", w.Scope().String())
	return err
}

func (w *Workspace) teardown(user *backend.User, forced bool) {
	w.Poller.reset()
	w.Teams.reset()
	w.Sources.reset()
	w.Sessions.reset()
	w.Chat.reset()
	w.Options.reset()

	w.mu.Lock()
	w.scope = Personal
	w.gen++
	w.mu.Unlock()

	ev := hermes.SignedOutEvent{Forced: forced, Timestamp: time.Now().UTC()}
	if user != nil {
		ev.Username = user.Username
	}
	w.notify.emit(hermes.SubjectSignedOut, ev)
}

func (w *Workspace) Scope() Scope {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scope
}

// SetContext switches the active scope. Selection clears immediately, the
// source list is fetched for the new scope and the poller restarts on it.
// Setting the current scope is a no-op.
func (w *Workspace) SetContext(ctx context.Context, scope Scope) error {
	if !w.Auth.Authenticated() {
		return ErrNotAuthenticated
	}

	w.mu.Lock()
	if scope == w.scope {
		w.mu.Unlock()
		return nil
	}
	w.scope = scope
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	restart := w.Poller.Running() || w.autoPoll
	w.Poller.Stop()
	w.Sources.setScope(scope)
	w.logger.Info("context changed", "context", scope.String())

	_, err := w.Sources.List(ctx)

	w.mu.Lock()
	superseded := gen != w.gen
	w.mu.Unlock()
	if !superseded && restart {
		if perr := w.Poller.Start(scope); perr != nil {
			w.logger.Warn("failed to restart sync poller", "error", perr)
		}
	}

	w.notify.emit(hermes.SubjectContextChanged, hermes.ContextChangedEvent{
		Context:   scope.String(),
		TeamID:    string(scope.TeamID()),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// TriggerSync starts a sync through the poller so the syncing flag and the
// delayed re-check apply.
func (w *Workspace) TriggerSync(ctx context.Context, id backend.ID) (string, error) {
	return w.Poller.TriggerSync(ctx, id)
}

// DeleteTeam deletes a team; if it was the active context the workspace
// falls back to personal.
func (w *Workspace) DeleteTeam(ctx context.Context, id backend.ID) error {
	if err := w.Teams.Delete(ctx, id); err != nil {
		return err
	}
	if w.Scope() == Team(id) {
		return w.SetContext(ctx, Personal)
	}
	return nil
}

// Close stops background work. It does not sign out.
func (w *Workspace) Close() {
	w.Poller.Stop()
}

// Status is a read-only snapshot for status surfaces.
type Status struct {
	Authenticated bool         `json:"authenticated"`
	Username      string       `json:"username,omitempty"`
	Context       string       `json:"context"`
	Selection     []backend.ID `json:"selection"`
	Sources       int          `json:"sources"`
	Teams         int          `json:"teams"`
	ActiveSession backend.ID   `json:"active_session,omitempty"`
	Sessions      int          `json:"sessions"`
	ChatState     ChatState    `json:"chat_state"`
	Messages      int          `json:"messages"`
	Model         string       `json:"model"`
	Settings      struct {
		ResponseType backend.ResponseType `json:"response_type"`
		Temperature  float64              `json:"temperature"`
	} `json:"settings"`
	PollerRunning bool      `json:"poller_running"`
	LastPoll      time.Time `json:"last_poll,omitempty"`
}

func (w *Workspace) Status() Status {
	st := Status{
		Authenticated: w.Auth.Authenticated(),
		Context:       w.Scope().String(),
		Selection:     w.Sources.SelectedIDs(),
		Sources:       len(w.Sources.Sources()),
		Teams:         len(w.Teams.Teams()),
		ActiveSession: w.Sessions.Active(),
		Sessions:      len(w.Sessions.Sessions()),
		ChatState:     w.Chat.State(),
		Messages:      len(w.Chat.Messages()),
		Model:         w.Options.Model(),
		PollerRunning: w.Poller.Running(),
		LastPoll:      w.Poller.LastPoll(),
	}
	if u := w.Auth.User(); u != nil {
		st.Username = u.Username
	}
	s := w.Options.Settings()
	st.Settings.ResponseType = s.ResponseType
	st.Settings.Temperature = s.Temperature
	return st
}
