package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/hermes"
)

const (
	DefaultPollInterval     = 30 * time.Second
	DefaultSyncRecheckDelay = 2 * time.Second

	historyFetchConcurrency = 4
)

type recheck struct {
	timer *time.Timer
	done  chan struct{}
}

// Poller keeps the newest sync-history entry for every source visible under
// one scope. It runs a single background loop between Start and Stop.
type Poller struct {
	client       *backend.Client
	sources      *Sources
	notify       notifier
	logger       *slog.Logger
	interval     time.Duration
	recheckDelay time.Duration

	mu         sync.Mutex
	scope      Scope
	gen        uint64
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	life       context.Context
	lifeCancel context.CancelFunc
	rechecks   map[backend.ID]*recheck
	latest     map[backend.ID]backend.SyncHistoryEntry
	syncing    map[backend.ID]struct{}
	lastPoll   time.Time
}

func newPoller(client *backend.Client, sources *Sources, interval, recheckDelay time.Duration, n notifier, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if recheckDelay <= 0 {
		recheckDelay = DefaultSyncRecheckDelay
	}
	return &Poller{
		client:       client,
		sources:      sources,
		notify:       n,
		logger:       logger,
		interval:     interval,
		recheckDelay: recheckDelay,
		rechecks:     map[backend.ID]*recheck{},
		latest:       map[backend.ID]backend.SyncHistoryEntry{},
		syncing:      map[backend.ID]struct{}{},
	}
}

// Start stops any running loop and begins polling scope: once right away,
// then every interval.
func (p *Poller) Start(scope Scope) error {
	if p.client.Token() == "" {
		return ErrNotAuthenticated
	}
	p.Stop()

	p.mu.Lock()
	if scope != p.scope {
		p.latest = map[backend.ID]backend.SyncHistoryEntry{}
		p.lastPoll = time.Time{}
	}
	p.scope = scope
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.mu.Unlock()

	p.logger.Info("sync poller started", "scope", scope.String(), "interval", p.interval)
	go p.loop(ctx, gen, scope, done)
	return nil
}

// Stop halts the loop, cancels in-flight requests and pending re-checks,
// and returns once no poller goroutine is left running.
func (p *Poller) Stop() {
	p.mu.Lock()
	var done chan struct{}
	if p.running {
		p.cancel()
		p.running = false
		done = p.done
	}
	p.gen++
	if p.lifeCancel != nil {
		p.lifeCancel()
		p.life, p.lifeCancel = nil, nil
	}
	var firing []chan struct{}
	for id, rc := range p.rechecks {
		if !rc.timer.Stop() {
			firing = append(firing, rc.done)
		}
		delete(p.rechecks, id)
	}
	p.syncing = map[backend.ID]struct{}{}
	p.mu.Unlock()

	if done != nil {
		<-done
		p.logger.Info("sync poller stopped")
	}
	for _, ch := range firing {
		<-ch
	}
}

func (p *Poller) loop(ctx context.Context, gen uint64, scope Scope, done chan struct{}) {
	defer close(done)

	p.poll(ctx, gen, scope, true)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, gen, scope, false)
		}
	}
}

// poll lists the scope's sources and fetches the newest history entry of
// each. The first poll after Start reuses a list already loaded for the
// scope.
func (p *Poller) poll(ctx context.Context, gen uint64, scope Scope, initial bool) {
	var list []backend.DataSource
	var ok bool
	if initial {
		list, ok = p.sources.loadedFor(scope)
	}
	if !ok {
		var err error
		list, err = p.client.ListSources(ctx, scope.TeamID())
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("poll source list failed", "scope", scope.String(), "error", err)
			}
			return
		}
		if p.current(gen) {
			p.sources.prune(scope, list)
		}
	}

	var (
		mu      sync.Mutex
		entries = make(map[backend.ID]backend.SyncHistoryEntry, len(list))
		g       errgroup.Group
	)
	g.SetLimit(historyFetchConcurrency)
	for _, src := range list {
		g.Go(func() error {
			history, err := p.client.SyncHistory(ctx, src.ID, 1)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Debug("poll sync history failed", "source_id", src.ID, "error", err)
				}
				return nil
			}
			if len(history) > 0 {
				mu.Lock()
				entries[src.ID] = history[0]
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	visible := make(map[backend.ID]struct{}, len(list))
	for _, src := range list {
		visible[src.ID] = struct{}{}
	}
	for id := range p.latest {
		if _, ok := visible[id]; !ok {
			delete(p.latest, id)
		}
	}
	var changed []hermes.SyncStatusEvent
	for id, entry := range entries {
		if p.store(id, entry) {
			changed = append(changed, syncEvent(id, entry))
		}
	}
	p.lastPoll = time.Now()
	p.mu.Unlock()

	p.logger.Debug("sync poll complete", "scope", scope.String(), "sources", len(list), "changed", len(changed))
	for _, ev := range changed {
		p.notify.emit(hermes.SubjectSyncStatus, ev)
	}
}

// store caches entry and reports whether it differs from the cached one.
// Caller holds p.mu.
func (p *Poller) store(id backend.ID, entry backend.SyncHistoryEntry) bool {
	prev, had := p.latest[id]
	p.latest[id] = entry
	return !had || prev.ID != entry.ID || prev.SyncStatus != entry.SyncStatus
}

func (p *Poller) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.gen
}

// lifetime is the context pending re-checks run under. Caller holds p.mu.
func (p *Poller) lifetime() context.Context {
	if p.life == nil {
		p.life, p.lifeCancel = context.WithCancel(context.Background())
	}
	return p.life
}

// TriggerSync marks id as syncing and asks the service to synchronize it.
// If the request fails the flag is cleared at once. Otherwise the source's
// history is re-read after the re-check delay and the flag is cleared
// whether or not that read succeeds.
func (p *Poller) TriggerSync(ctx context.Context, id backend.ID) (string, error) {
	if p.client.Token() == "" {
		return "", ErrNotAuthenticated
	}

	p.mu.Lock()
	if _, busy := p.syncing[id]; busy {
		p.mu.Unlock()
		return "", ErrSyncInProgress
	}
	p.syncing[id] = struct{}{}
	gen := p.gen
	p.mu.Unlock()

	msg, err := p.sources.Sync(ctx, id)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return msg, err
	}
	if err != nil {
		delete(p.syncing, id)
		p.logger.Warn("trigger sync failed", "source_id", id, "error", err)
		return "", err
	}

	life := p.lifetime()
	rc := &recheck{done: make(chan struct{})}
	rc.timer = time.AfterFunc(p.recheckDelay, func() {
		p.recheck(life, gen, id, rc)
	})
	p.rechecks[id] = rc
	p.logger.Info("sync triggered", "source_id", id)
	return msg, nil
}

func (p *Poller) recheck(ctx context.Context, gen uint64, id backend.ID, rc *recheck) {
	defer close(rc.done)

	history, err := p.client.SyncHistory(ctx, id, 1)

	p.mu.Lock()
	if p.rechecks[id] == rc {
		delete(p.rechecks, id)
	}
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	delete(p.syncing, id)
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("sync re-check failed", "source_id", id, "error", err)
		return
	}
	var ev *hermes.SyncStatusEvent
	if len(history) > 0 && p.store(id, history[0]) {
		e := syncEvent(id, history[0])
		ev = &e
	}
	p.mu.Unlock()

	if ev != nil {
		p.notify.emit(hermes.SubjectSyncStatus, *ev)
	}
}

// Wait blocks until every scheduled re-check has run or ctx is done.
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	pending := make([]chan struct{}, 0, len(p.rechecks))
	for _, rc := range p.rechecks {
		pending = append(pending, rc.done)
	}
	p.mu.Unlock()

	for _, ch := range pending {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RefreshSource re-reads the newest history entry for id immediately.
func (p *Poller) RefreshSource(ctx context.Context, id backend.ID) error {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()

	history, err := p.client.SyncHistory(ctx, id, 1)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return nil
	}
	changed := p.store(id, history[0])
	p.mu.Unlock()

	if changed {
		p.notify.emit(hermes.SubjectSyncStatus, syncEvent(id, history[0]))
	}
	return nil
}

func (p *Poller) Status(id backend.ID) (backend.SyncHistoryEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.latest[id]
	return e, ok
}

func (p *Poller) Snapshot() map[backend.ID]backend.SyncHistoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[backend.ID]backend.SyncHistoryEntry, len(p.latest))
	for id, e := range p.latest {
		out[id] = e
	}
	return out
}

func (p *Poller) IsSyncing(id backend.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.syncing[id]
	return ok
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) Scope() Scope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scope
}

func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}

func (p *Poller) reset() {
	p.Stop()
	p.mu.Lock()
	p.scope = Personal
	p.latest = map[backend.ID]backend.SyncHistoryEntry{}
	p.lastPoll = time.Time{}
	p.mu.Unlock()
}

func syncEvent(id backend.ID, e backend.SyncHistoryEntry) hermes.SyncStatusEvent {
	return hermes.SyncStatusEvent{
		SourceID:           string(id),
		Status:             string(e.SyncStatus),
		DocumentsProcessed: e.DocumentsProcessed,
		ErrorMessage:       e.ErrorMessage,
		StartedAt:          e.StartedAt,
	}
}
