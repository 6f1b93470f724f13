package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentdash/internal/alerting"
	"agentdash/internal/cache"
	"agentdash/internal/config"
	"agentdash/internal/market"
	"agentdash/internal/prefs"
	"agentdash/internal/scheduler"
	"agentdash/internal/storage"
)

// Update is published to subscribers after every new snapshot.
type Update struct {
	Snapshot market.Snapshot `json:"snapshot"`
	Stats    market.Stats    `json:"stats"`
}

// View is a filtered, sorted projection of the current snapshot.
type View struct {
	Assets     []market.Asset `json:"assets"`
	Stats      market.Stats   `json:"stats"`
	CapturedAt time.Time      `json:"captured_at"`
	Loading    bool           `json:"loading"`
}

// Dashboard orchestrates fetching, caching, stats and price alerts.
type Dashboard struct {
	scheduler *scheduler.Scheduler
	fetcher   market.Fetcher
	snapshots *cache.SnapshotCache
	prefs     *prefs.Preferences
	notifier  alerting.Notifier
	logger    zerolog.Logger

	staleAfter time.Duration
	locker     storage.AdvisoryLocker
	lockKey    int64

	mu       sync.RWMutex
	snapshot market.Snapshot
	stats    market.Stats
	loading  bool

	subMu sync.Mutex
	subs  map[chan Update]struct{}
}

// New constructs the dashboard service.
func New(cfg *config.Config, sched *scheduler.Scheduler, fetcher market.Fetcher, backend storage.Backend, preferences *prefs.Preferences, notifier alerting.Notifier, logger zerolog.Logger) *Dashboard {
	var locker storage.AdvisoryLocker
	if l, ok := backend.(storage.AdvisoryLocker); ok {
		locker = l
	}

	staleAfter := cfg.Refresh.StaleAfter
	if staleAfter <= 0 {
		staleAfter = cache.DefaultMaxAge
	}

	return &Dashboard{
		scheduler:  sched,
		fetcher:    fetcher,
		snapshots:  cache.NewSnapshotCache(backend),
		prefs:      preferences,
		notifier:   notifier,
		logger:     logger.With().Str("component", "dashboard").Logger(),
		staleAfter: staleAfter,
		locker:     locker,
		lockKey:    cfg.Refresh.AdvisoryLockKey,
		stats:      market.Aggregate(nil),
		subs:       make(map[chan Update]struct{}),
	}
}

// Run primes from the cache, fetches right away unless the cache was fresh,
// then refreshes on every scheduler tick until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	if d.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	primed, err := d.Prime(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg("cache unreadable; fetching")
	}
	if !primed {
		if err := d.Refresh(ctx); err != nil {
			d.logger.Error().Err(err).Msg("initial refresh failed")
		}
	}
	d.logger.Info().Dur("interval", d.scheduler.Interval()).Bool("primed", primed).Msg("refresh loop started")
	return d.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return d.Refresh(ctx)
	})
}

// Prime adopts the cached snapshot when it is fresh and reports whether it did.
func (d *Dashboard) Prime(ctx context.Context) (bool, error) {
	snap, ok, err := d.snapshots.ReadIfFresh(ctx, d.staleAfter)
	if err != nil || !ok {
		return false, err
	}
	d.apply(snap)
	d.logger.Info().Int("assets", len(snap.Assets)).Time("captured_at", snap.CapturedAt).Msg("primed from cache")
	return true, nil
}

// Refresh fetches a new snapshot. On failure the previous snapshot is kept.
func (d *Dashboard) Refresh(ctx context.Context) error {
	unlock, proceed, err := d.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		return d.follow(ctx)
	}
	if unlock != nil {
		defer unlock()
	}

	d.setLoading(true)
	defer d.setLoading(false)

	snap, err := d.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetch market snapshot: %w", err)
	}

	stats := d.apply(snap)
	if err := d.snapshots.Write(ctx, snap); err != nil {
		d.logger.Error().Err(err).Msg("failed to cache snapshot")
	}

	d.logger.Info().Int("assets", len(snap.Assets)).
		Str("total_market_cap", stats.TotalMarketCap.String()).
		Str("avg_change_24h", stats.AverageChange24h.StringFixed(2)).
		Msg("snapshot refreshed")

	d.checkAlerts(ctx, snap.Assets)
	return nil
}

// follow adopts the snapshot another instance cached when this one does not
// hold the refresh lock.
func (d *Dashboard) follow(ctx context.Context) error {
	snap, ok, err := d.snapshots.ReadIfFresh(ctx, d.staleAfter)
	if err != nil {
		return fmt.Errorf("read shared snapshot: %w", err)
	}
	if !ok {
		d.logger.Debug().Msg("skip refresh because advisory lock held elsewhere")
		return nil
	}

	d.mu.RLock()
	newer := snap.CapturedAt.After(d.snapshot.CapturedAt)
	d.mu.RUnlock()
	if newer {
		d.apply(snap)
	}
	return nil
}

func (d *Dashboard) apply(snap market.Snapshot) market.Stats {
	stats := market.Aggregate(snap.Assets)

	d.mu.Lock()
	d.snapshot = snap
	d.stats = stats
	d.mu.Unlock()

	d.publish(Update{Snapshot: snap, Stats: stats})
	return stats
}

func (d *Dashboard) checkAlerts(ctx context.Context, assets []market.Asset) {
	if d.prefs == nil {
		return
	}
	fired, err := d.prefs.CheckAlerts(ctx, assets)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to persist fired alerts")
	}
	if d.notifier == nil {
		return
	}
	for _, hit := range fired {
		note := alerting.Notification{
			AssetID:     hit.Asset.ID,
			Symbol:      hit.Asset.Symbol,
			Name:        hit.Asset.Name,
			Price:       hit.Price,
			TargetPrice: hit.Alert.TargetPrice,
			Direction:   string(hit.Alert.Direction),
			SetAt:       hit.Alert.SetAt,
			TriggeredAt: hit.At,
		}
		if err := d.notifier.Notify(ctx, note); err != nil {
			d.logger.Error().Err(err).Str("asset", hit.Asset.ID).Msg("failed to dispatch alert")
		}
	}
}

// View applies c to the current snapshot. The favorites and watchlist sets
// always come from the preference state.
func (d *Dashboard) View(c market.Criteria) View {
	if d.prefs != nil {
		c.Favorites, c.Watchlist = d.prefs.Sets()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return View{
		Assets:     market.Apply(d.snapshot.Assets, c),
		Stats:      d.stats,
		CapturedAt: d.snapshot.CapturedAt,
		Loading:    d.loading,
	}
}

// Asset looks up one asset in the current snapshot.
func (d *Dashboard) Asset(id string) (market.Asset, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot.Find(id)
}

// Current returns the current snapshot and its stats. Callers must not
// modify the returned assets.
func (d *Dashboard) Current() (market.Snapshot, market.Stats) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot, d.stats
}

// Loading reports whether a fetch is in flight.
func (d *Dashboard) Loading() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loading
}

// Subscribe registers for snapshot updates. Slow subscribers miss updates
// rather than block refreshes. The returned func unsubscribes.
func (d *Dashboard) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)
	d.subMu.Lock()
	d.subs[ch] = struct{}{}
	d.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, ch)
			d.subMu.Unlock()
			close(ch)
		})
	}
}

func (d *Dashboard) publish(u Update) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for ch := range d.subs {
		select {
		case ch <- u:
		default:
			d.logger.Debug().Msg("subscriber lagging; update dropped")
		}
	}
}

func (d *Dashboard) setLoading(v bool) {
	d.mu.Lock()
	d.loading = v
	d.mu.Unlock()
}

func (d *Dashboard) acquireLock(ctx context.Context) (func(), bool, error) {
	if d.lockKey == 0 || d.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := d.locker.TryAdvisoryLock(ctx, d.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
