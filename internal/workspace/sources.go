package workspace

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

// Sources holds the source list visible under the current scope and the
// Selection used to restrict queries. Selection is always a subset of the
// active sources in the latest list for the scope.
type Sources struct {
	client *backend.Client
	logger *slog.Logger

	mu       sync.Mutex
	scope    Scope
	gen      uint64
	loaded   bool
	sources  []backend.DataSource
	selected map[backend.ID]struct{}
}

func newSources(client *backend.Client, logger *slog.Logger) *Sources {
	return &Sources{client: client, logger: logger, selected: map[backend.ID]struct{}{}}
}

// setScope switches the addressed collection. The list and Selection are
// cleared at once; in-flight fetches for the old scope are discarded.
func (s *Sources) setScope(scope Scope) {
	s.mu.Lock()
	s.scope = scope
	s.gen++
	s.loaded = false
	s.sources = nil
	s.selected = map[backend.ID]struct{}{}
	s.mu.Unlock()
}

func (s *Sources) Scope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// List fetches the scoped list, replaces the cache and resets Selection to
// the active sources.
func (s *Sources) List(ctx context.Context) ([]backend.DataSource, error) {
	s.mu.Lock()
	scope, gen := s.scope, s.gen
	s.mu.Unlock()

	list, err := s.client.ListSources(ctx, scope.TeamID())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("discarding source list for stale scope", "scope", scope.String())
		return append([]backend.DataSource(nil), s.sources...), nil
	}
	s.sources = list
	s.loaded = true
	s.selected = make(map[backend.ID]struct{}, len(list))
	for _, src := range list {
		if src.IsActive {
			s.selected[src.ID] = struct{}{}
		}
	}
	return append([]backend.DataSource(nil), list...), nil
}

func (s *Sources) Sources() []backend.DataSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.DataSource(nil), s.sources...)
}

// loadedFor returns the cached list if one has been fetched for scope.
func (s *Sources) loadedFor(scope Scope) ([]backend.DataSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || s.scope != scope {
		return nil, false
	}
	return append([]backend.DataSource(nil), s.sources...), true
}

func (s *Sources) Get(id backend.ID) (backend.DataSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(id)
}

func (s *Sources) find(id backend.ID) (backend.DataSource, bool) {
	for _, src := range s.sources {
		if src.ID == id {
			return src, true
		}
	}
	return backend.DataSource{}, false
}

// Toggle flips id in Selection and reports whether it is now selected.
func (s *Sources) Toggle(id backend.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.find(id)
	if !ok {
		return false, invalid("source", "unknown source "+string(id))
	}
	if !src.IsActive {
		return false, invalid("source", "source "+string(id)+" is inactive")
	}
	if _, on := s.selected[id]; on {
		delete(s.selected, id)
		return false, nil
	}
	s.selected[id] = struct{}{}
	return true, nil
}

// Select replaces Selection with ids. Every id must be a visible active
// source; on error Selection is unchanged.
func (s *Sources) Select(ids []backend.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[backend.ID]struct{}, len(ids))
	for _, id := range ids {
		src, ok := s.find(id)
		if !ok {
			return invalid("source", "unknown source "+string(id))
		}
		if !src.IsActive {
			return invalid("source", "source "+string(id)+" is inactive")
		}
		next[id] = struct{}{}
	}
	s.selected = next
	return nil
}

func (s *Sources) IsSelected(id backend.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[id]
	return ok
}

// SelectedIDs returns Selection in a stable order.
func (s *Sources) SelectedIDs() []backend.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]backend.ID, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}

// compareIDs orders numeric ids numerically and everything else
// lexically. Equal values with different padding fall back to lexical order.
func compareIDs(a, b backend.ID) int {
	if isDigits(a) && isDigits(b) {
		ta, tb := strings.TrimLeft(string(a), "0"), strings.TrimLeft(string(b), "0")
		if len(ta) != len(tb) {
			return len(ta) - len(tb)
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
	}
	return strings.Compare(string(a), string(b))
}

func isDigits(id backend.ID) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// prune refreshes the records from a background poll and drops Selection
// entries that are no longer visible or active. It never adds to
// Selection.
func (s *Sources) prune(scope Scope, list []backend.DataSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scope != scope || !s.loaded {
		return
	}
	s.sources = list
	for id := range s.selected {
		src, ok := s.find(id)
		if !ok || !src.IsActive {
			delete(s.selected, id)
		}
	}
}

func validateSource(in backend.SourceInput) (backend.SourceInput, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.SourceType = backend.SourceType(strings.TrimSpace(string(in.SourceType)))
	if in.DisplayName == "" {
		return in, invalid("display_name", "required")
	}
	if in.SourceType == "" {
		return in, invalid("source_type", "required")
	}
	return in, nil
}

func (s *Sources) Create(ctx context.Context, in backend.SourceInput) (*backend.DataSource, error) {
	in, err := validateSource(in)
	if err != nil {
		return nil, err
	}
	scope := s.Scope()
	ds, err := s.client.CreateSource(ctx, scope.TeamID(), in)
	if err != nil {
		return nil, err
	}
	s.refetch(ctx)
	return ds, nil
}

func (s *Sources) Update(ctx context.Context, id backend.ID, in backend.SourceInput) (*backend.DataSource, error) {
	in, err := validateSource(in)
	if err != nil {
		return nil, err
	}
	ds, err := s.client.UpdateSource(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.refetch(ctx)
	return ds, nil
}

// Delete removes a source. The caller must have confirmed the deletion.
func (s *Sources) Delete(ctx context.Context, id backend.ID, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := s.client.DeleteSource(ctx, id); err != nil {
		return err
	}
	s.refetch(ctx)
	return nil
}

// Sync asks the connector service to synchronize id and returns its
// acknowledgement.
func (s *Sources) Sync(ctx context.Context, id backend.ID) (string, error) {
	msg, err := s.client.TriggerSync(ctx, id)
	if err != nil {
		return "", err
	}
	s.refetch(ctx)
	return msg, nil
}

func (s *Sources) TestConnection(ctx context.Context, id backend.ID) (bool, error) {
	ok, err := s.client.TestConnection(ctx, id)
	if err != nil {
		return false, err
	}
	s.refetch(ctx)
	return ok, nil
}

// SyncHistory returns the recent runs for id, newest first.
func (s *Sources) SyncHistory(ctx context.Context, id backend.ID) ([]backend.SyncHistoryEntry, error) {
	return s.client.SyncHistory(ctx, id, backend.HistoryLimit)
}

func (s *Sources) refetch(ctx context.Context) {
	if _, err := s.List(ctx); err != nil {
		s.logger.Warn("failed to refresh sources", "error", err)
	}
}

func (s *Sources) reset() {
	s.setScope(Personal)
}
