package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agentdash/internal/alerting"
	"agentdash/internal/cache"
	"agentdash/internal/config"
	"agentdash/internal/market"
	"agentdash/internal/prefs"
	"agentdash/internal/scheduler"
	"agentdash/internal/storage"
)

type fakeFetcher struct {
	mu    sync.Mutex
	snaps []market.Snapshot
	err   error
	calls int
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context) (market.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return market.Snapshot{}, f.err
	}
	if len(f.snaps) == 0 {
		return market.Snapshot{}, errors.New("no snapshot queued")
	}
	snap := f.snaps[0]
	if len(f.snaps) > 1 {
		f.snaps = f.snaps[1:]
	}
	return snap, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

type lockedBackend struct {
	*storage.Memory
	acquired bool
}

func (l *lockedBackend) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func testConfig() *config.Config {
	return &config.Config{Refresh: config.RefreshConfig{Interval: time.Hour, StaleAfter: 5 * time.Minute}}
}

func coin(id, name string, price, mcap, change int64) market.Asset {
	return market.Asset{
		ID:           id,
		Symbol:       id[:3],
		Name:         name,
		CurrentPrice: decimal.NewNullDecimal(decimal.NewFromInt(price)),
		MarketCap:    decimal.NewNullDecimal(decimal.NewFromInt(mcap)),
		TotalVolume:  decimal.NewNullDecimal(decimal.NewFromInt(mcap / 10)),
		Change24h:    decimal.NewNullDecimal(decimal.NewFromInt(change)),
	}
}

func sampleSnapshot(at time.Time) market.Snapshot {
	return market.Snapshot{
		Assets: []market.Asset{
			market.NewSynthetic(market.TokenInfo{ID: "agent-token", Name: "Agent"}),
			coin("bitcoin", "Bitcoin", 70000, 1_000_000, 2),
			coin("ethereum", "Ethereum", 3000, 500_000, -1),
			coin("solana", "Solana", 150, 100_000, 4),
		},
		CapturedAt: at,
	}
}

func newPrefs(t *testing.T, backend storage.Backend) *prefs.Preferences {
	t.Helper()
	p, err := prefs.Load(context.Background(), backend, zerolog.Nop())
	if err != nil {
		t.Fatalf("load prefs: %v", err)
	}
	return p
}

func TestRefreshUpdatesSnapshotStatsAndCache(t *testing.T) {
	backend := storage.NewMemory()
	fetcher := &fakeFetcher{snaps: []market.Snapshot{sampleSnapshot(time.Now().UTC())}}
	d := New(testConfig(), nil, fetcher, backend, newPrefs(t, backend), nil, zerolog.Nop())

	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap, stats := d.Current()
	if len(snap.Assets) != 4 {
		t.Fatalf("expected 4 assets, got %d", len(snap.Assets))
	}
	if stats.Count != 3 || !stats.TotalMarketCap.Equal(decimal.NewFromInt(1_600_000)) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if d.Loading() {
		t.Fatal("loading flag should clear after refresh")
	}

	cached, ok, err := cache.NewSnapshotCache(backend).ReadIfFresh(context.Background(), cache.DefaultMaxAge)
	if err != nil || !ok || len(cached.Assets) != 4 {
		t.Fatalf("snapshot should be cached, ok=%v err=%v", ok, err)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	backend := storage.NewMemory()
	fetcher := &fakeFetcher{snaps: []market.Snapshot{sampleSnapshot(time.Now().UTC())}}
	d := New(testConfig(), nil, fetcher, backend, nil, nil, zerolog.Nop())

	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	fetcher.err = errors.New("rate limited")
	if err := d.Refresh(context.Background()); err == nil {
		t.Fatal("failed fetch should return an error")
	}

	snap, _ := d.Current()
	if len(snap.Assets) != 4 {
		t.Fatalf("previous snapshot should survive, got %d assets", len(snap.Assets))
	}
	if d.Loading() {
		t.Fatal("loading flag should clear after a failure")
	}
}

func TestPrimeUsesFreshCache(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	if err := cache.NewSnapshotCache(backend).Write(ctx, sampleSnapshot(time.Now().UTC())); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	fetcher := &fakeFetcher{}
	d := New(testConfig(), nil, fetcher, backend, nil, nil, zerolog.Nop())
	primed, err := d.Prime(ctx)
	if err != nil || !primed {
		t.Fatalf("expected prime from cache, primed=%v err=%v", primed, err)
	}
	if _, ok := d.Asset("bitcoin"); !ok {
		t.Fatal("primed snapshot should be queryable")
	}
	if fetcher.Calls() != 0 {
		t.Fatal("priming must not hit the network")
	}
}

func TestRunSkipsImmediateFetchWhenPrimed(t *testing.T) {
	backend := storage.NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = cache.NewSnapshotCache(backend).Write(ctx, sampleSnapshot(time.Now().UTC()))

	fetcher := &fakeFetcher{}
	sched := scheduler.New(scheduler.Options{Interval: time.Hour}, zerolog.Nop())
	d := New(testConfig(), sched, fetcher, backend, nil, nil, zerolog.Nop())

	if err := d.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run should stop with the context, got %v", err)
	}
	if fetcher.Calls() != 0 {
		t.Fatalf("fresh cache should skip the first fetch, got %d calls", fetcher.Calls())
	}
}

func TestRunFetchesImmediatelyOnColdStart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	fetcher := &fakeFetcher{snaps: []market.Snapshot{sampleSnapshot(time.Now().UTC())}}
	sched := scheduler.New(scheduler.Options{Interval: time.Hour}, zerolog.Nop())
	d := New(testConfig(), sched, fetcher, storage.NewMemory(), nil, nil, zerolog.Nop())

	_ = d.Run(ctx)
	if fetcher.Calls() != 1 {
		t.Fatalf("cold start should fetch once immediately, got %d", fetcher.Calls())
	}
}

func TestViewInjectsPreferenceSets(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	p := newPrefs(t, backend)
	_, _ = p.ToggleFavorite(ctx, "solana")
	_, _ = p.ToggleWatchlist(ctx, "ethereum")

	fetcher := &fakeFetcher{snaps: []market.Snapshot{sampleSnapshot(time.Now().UTC())}}
	d := New(testConfig(), nil, fetcher, backend, p, nil, zerolog.Nop())
	_ = d.Refresh(ctx)

	fav := d.View(market.Criteria{FavoritesOnly: true, Sort: market.SortRank})
	if len(fav.Assets) != 1 || fav.Assets[0].ID != "solana" {
		t.Fatalf("favorites-only view wrong: %+v", fav.Assets)
	}

	watch := d.View(market.Criteria{Category: market.CategoryWatchlist, Favorites: market.NewSet("bitcoin")})
	if len(watch.Assets) != 1 || watch.Assets[0].ID != "ethereum" {
		t.Fatalf("watchlist view wrong: %+v", watch.Assets)
	}

	all := d.View(market.Criteria{Sort: market.SortPrice})
	if !all.Assets[0].ComingSoon || all.Assets[1].ID != "bitcoin" {
		t.Fatalf("synthetic should lead, then highest price: %+v", all.Assets)
	}
	if all.Stats.Count != 3 {
		t.Fatalf("stats should cover the listed assets, got %d", all.Stats.Count)
	}
}

func TestRefreshFiresPriceAlerts(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	p := newPrefs(t, backend)
	_, _ = p.SetAlert(ctx, "bitcoin", decimal.NewFromInt(65000), prefs.Above)
	_, _ = p.SetAlert(ctx, "ethereum", decimal.NewFromInt(2000), prefs.Below)

	notifier := &recordingNotifier{}
	fetcher := &fakeFetcher{snaps: []market.Snapshot{sampleSnapshot(time.Now().UTC())}}
	d := New(testConfig(), nil, fetcher, backend, p, notifier, zerolog.Nop())

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(notifier.notes) != 1 || notifier.notes[0].AssetID != "bitcoin" || notifier.notes[0].Direction != "above" {
		t.Fatalf("unexpected notifications %+v", notifier.notes)
	}
	if _, ok := p.Alerts()["bitcoin"]; ok {
		t.Fatal("fired alert should be cleared")
	}

	_ = d.Refresh(ctx)
	if len(notifier.notes) != 1 {
		t.Fatal("alert must not fire twice")
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	fetcher := &fakeFetcher{snaps: []market.Snapshot{sampleSnapshot(time.Now().UTC())}}
	d := New(testConfig(), nil, fetcher, storage.NewMemory(), nil, nil, zerolog.Nop())

	updates, cancel := d.Subscribe()
	defer cancel()

	_ = d.Refresh(context.Background())
	select {
	case u := <-updates:
		if u.Stats.Count != 3 {
			t.Fatalf("unexpected update %+v", u.Stats)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber should receive the refresh")
	}

	// a lagging subscriber must not block further refreshes
	_ = d.Refresh(context.Background())
	_ = d.Refresh(context.Background())

	cancel()
	if _, ok := <-updates; ok {
		// drain the buffered update, then expect closure
		if _, ok := <-updates; ok {
			t.Fatal("channel should close after unsubscribe")
		}
	}
}

func TestRefreshFollowsWhenLockHeldElsewhere(t *testing.T) {
	backend := &lockedBackend{Memory: storage.NewMemory()}
	ctx := context.Background()
	shared := sampleSnapshot(time.Now().UTC())
	_ = cache.NewSnapshotCache(backend).Write(ctx, shared)

	cfg := testConfig()
	cfg.Refresh.AdvisoryLockKey = 42
	fetcher := &fakeFetcher{}
	d := New(cfg, nil, fetcher, backend, nil, nil, zerolog.Nop())

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("follower refresh: %v", err)
	}
	if fetcher.Calls() != 0 {
		t.Fatal("follower must not fetch")
	}
	if _, ok := d.Asset("ethereum"); !ok {
		t.Fatal("follower should adopt the shared snapshot")
	}

	backend.acquired = true
	fetcher.snaps = []market.Snapshot{sampleSnapshot(time.Now().UTC())}
	if err := d.Refresh(ctx); err != nil || fetcher.Calls() != 1 {
		t.Fatalf("leader should fetch, calls=%d err=%v", fetcher.Calls(), err)
	}
}
