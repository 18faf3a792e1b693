// internal/syncer/syncer.go
package syncer

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	conf "github.com/bartek5186/stockhub/internal/config"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/bartek5186/stockhub/internal/integrations"
	_ "github.com/bartek5186/stockhub/internal/integrations/importer" // registers "importer"
	_ "github.com/bartek5186/stockhub/internal/integrations/shopify"  // registers "shopify"
	"github.com/rs/zerolog"
)

// running integration (importer, shopify)
type runningInt struct {
	Name string
	Inst integrations.Integration
}

// Status is a snapshot for the CLI and the health endpoint.
type Status struct {
	Running      bool      `json:"running"`
	Integrations []string  `json:"integrations"`
	Heartbeats   uint64    `json:"heartbeats"`
	LastBeat     time.Time `json:"lastBeat,omitempty"`
	LowStock     int       `json:"lowStock"`
	PendingSync  int64     `json:"pendingSync"`
}

type Syncer struct {
	log     zerolog.Logger
	deps    integrations.Deps
	life    sync.Mutex // held for the whole of Start and Stop
	mu      sync.Mutex
	cfg     *conf.Config
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ticks   uint64
	last    time.Time
	low     int
	pending int64
	ints    []runningInt
}

func New(log zerolog.Logger, cfg *conf.Config, deps integrations.Deps) *Syncer {
	return &Syncer{log: log, cfg: cfg, deps: deps}
}

func (s *Syncer) Start(ctx context.Context) error {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.ticks = 0
	s.wg.Add(1)

	ints := s.buildIntegrationsLocked()
	s.ints = ints
	s.mu.Unlock()

	s.log.Info().Msg("syncer: start")
	go s.loop(ctx)

	for i := range ints {
		s.wg.Add(1)
		go func(intg integrations.Integration) {
			defer s.wg.Done()
			if err := intg.Start(ctx); err != nil {
				s.log.Error().Err(err).Str("integration", intg.Name()).Msg("integration stopped with error")
			}
		}(ints[i].Inst)
	}
	return nil
}

func (s *Syncer) buildIntegrationsLocked() []runningInt {
	var out []runningInt
	if s.cfg == nil || len(s.cfg.Integrations) == 0 {
		s.log.Warn().Msg("no integrations configured (check config.json)")
		return out
	}

	// stable start order
	names := make([]string, 0, len(s.cfg.Integrations))
	for name := range s.cfg.Integrations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := s.cfg.Integrations[name]
		f, ok := integrations.Get(name)
		if !ok {
			s.log.Warn().Str("integration", name).Strs("known", integrations.Names()).Msg("no factory, skipping")
			continue
		}
		inst, err := f(s.log.With().Str("integration", name).Logger(), json.RawMessage(raw), s.deps)
		if err != nil {
			s.log.Error().Err(err).Str("integration", name).Msg("cannot build integration")
			continue
		}
		out = append(out, runningInt{Name: name, Inst: inst})
	}
	s.log.Info().Int("configured", len(names)).Int("started", len(out)).Msg("integrations built")
	return out
}

// Stop cancels the integrations and waits for them. A Start racing with it
// waits until every goroutine of the previous run has returned.
func (s *Syncer) Stop() {
	s.life.Lock()
	defer s.life.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	ints := s.ints
	s.ints = nil
	s.cancel = nil
	s.mu.Unlock()

	for _, ri := range ints {
		ri.Inst.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("syncer: stop")
}

// UpdateConfig swaps the config and restarts the integrations if running.
func (s *Syncer) UpdateConfig(ctx context.Context, cfg *conf.Config) {
	s.mu.Lock()
	s.cfg = cfg
	isRunning := s.running
	s.mu.Unlock()

	s.log.Info().Msg("syncer: config updated")
	if isRunning {
		s.Stop()
		_ = s.Start(ctx)
	}
}

func (s *Syncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:     s.running,
		Heartbeats:  s.ticks,
		LastBeat:    s.last,
		LowStock:    s.low,
		PendingSync: s.pending,
	}
	for _, ri := range s.ints {
		st.Integrations = append(st.Integrations, ri.Name)
	}
	return st
}

func (s *Syncer) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil && s.cfg.SyncIntervalSeconds > 0 {
		return time.Duration(s.cfg.SyncIntervalSeconds) * time.Second
	}
	return time.Minute
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	s.tickOnce(ctx)

	cur := s.interval()
	ticker := time.NewTicker(cur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if next := s.interval(); next != cur {
				cur = next
				ticker.Reset(cur)
			}
			s.tickOnce(ctx)
		}
	}
}

// tickOnce is the heartbeat: it samples low stock and the shop sync
// backlog so the operator sees them in the log and in Status.
func (s *Syncer) tickOnce(ctx context.Context) {
	var (
		low     = -1
		pending int64
	)
	if s.deps.Ledger != nil {
		lv, err := s.deps.Ledger.LowStock(ctx, 1000)
		if err != nil {
			s.log.Warn().Err(err).Msg("heartbeat: low stock query failed")
		} else {
			low = len(lv)
		}
	}
	if s.deps.DB != nil {
		if err := s.deps.DB.WithContext(ctx).Model(&db.SyncTask{}).
			Where("status = ?", db.TaskPending).Count(&pending).Error; err != nil {
			s.log.Warn().Err(err).Msg("heartbeat: sync backlog query failed")
		}
	}

	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.last = time.Now().UTC()
	if low >= 0 {
		s.low = low
	}
	s.pending = pending
	s.mu.Unlock()

	ev := s.log.Info()
	if low > 0 {
		ev = s.log.Warn()
	}
	ev.Uint64("beat", n).Int("low_stock", low).Int64("pending_sync", pending).Msg("syncer: heartbeat")
}
