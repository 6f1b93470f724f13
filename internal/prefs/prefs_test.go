package prefs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agentdash/internal/market"
	"agentdash/internal/storage"
)

func load(t *testing.T, backend storage.Backend) *Preferences {
	t.Helper()
	p, err := Load(context.Background(), backend, zerolog.Nop())
	if err != nil {
		t.Fatalf("load prefs: %v", err)
	}
	return p
}

func priced(id string, price string) market.Asset {
	return market.Asset{ID: id, Name: id, CurrentPrice: decimal.NewNullDecimal(decimal.RequireFromString(price))}
}

func TestDefaults(t *testing.T) {
	p := load(t, storage.NewMemory())
	if p.Theme() != ThemeDark {
		t.Fatalf("默认主题应为 dark, 实际 %s", p.Theme())
	}
	if len(p.Favorites()) != 0 || len(p.Watchlist()) != 0 || len(p.Alerts()) != 0 {
		t.Fatal("fresh preferences should be empty")
	}
}

func TestMutationsPersistImmediately(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()
	p := load(t, backend)

	on, err := p.ToggleFavorite(ctx, "bitcoin")
	if err != nil || !on {
		t.Fatalf("toggle favorite on: %v %v", on, err)
	}
	if _, err := p.ToggleFavorite(ctx, "solana"); err != nil {
		t.Fatalf("toggle favorite: %v", err)
	}
	off, err := p.ToggleFavorite(ctx, "solana")
	if err != nil || off {
		t.Fatalf("toggle favorite off: %v %v", off, err)
	}
	if _, err := p.ToggleWatchlist(ctx, "ethereum"); err != nil {
		t.Fatalf("toggle watchlist: %v", err)
	}
	if err := p.SetTheme(ctx, "Light"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if _, err := p.SetAlert(ctx, "bitcoin", decimal.NewFromInt(70000), Above); err != nil {
		t.Fatalf("set alert: %v", err)
	}

	reloaded := load(t, backend)
	if reloaded.Theme() != ThemeLight {
		t.Fatalf("theme not persisted: %s", reloaded.Theme())
	}
	if favs := reloaded.Favorites(); len(favs) != 1 || favs[0] != "bitcoin" {
		t.Fatalf("favorites not persisted: %v", favs)
	}
	if wl := reloaded.Watchlist(); len(wl) != 1 || wl[0] != "ethereum" {
		t.Fatalf("watchlist not persisted: %v", wl)
	}
	alert, ok := reloaded.Alerts()["bitcoin"]
	if !ok || !alert.TargetPrice.Equal(decimal.NewFromInt(70000)) || alert.Direction != Above {
		t.Fatalf("alert not persisted: %+v", reloaded.Alerts())
	}
	if !reloaded.IsFavorite("bitcoin") || reloaded.IsFavorite("ethereum") {
		t.Fatal("favorites and watchlist must stay independent")
	}
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	p := load(t, storage.NewMemory())

	if err := p.SetTheme(ctx, "sepia"); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
	if _, err := p.SetAlert(ctx, "bitcoin", decimal.Zero, Above); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := p.SetAlert(ctx, "bitcoin", decimal.NewFromInt(1), "sideways"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
	if _, err := p.ToggleFavorite(ctx, ""); !errors.Is(err, ErrEmptyAssetID) {
		t.Fatalf("expected ErrEmptyAssetID, got %v", err)
	}
}

func TestCheckAlerts(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	p := load(t, backend)
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	_, _ = p.SetAlert(ctx, "bitcoin", decimal.NewFromInt(70000), Above)
	_, _ = p.SetAlert(ctx, "ethereum", decimal.NewFromInt(3000), Below)
	_, _ = p.SetAlert(ctx, "solana", decimal.NewFromInt(100), Below)
	_, _ = p.SetAlert(ctx, "agent-token", decimal.NewFromInt(1), Above)

	synthetic := market.NewSynthetic(market.TokenInfo{ID: "agent-token"})
	assets := []market.Asset{
		synthetic,
		priced("bitcoin", "70000"),
		priced("ethereum", "3500"),
		priced("solana", "99.5"),
	}

	fired, err := p.CheckAlerts(ctx, assets)
	if err != nil {
		t.Fatalf("check alerts: %v", err)
	}
	if len(fired) != 2 {
		t.Fatalf("expected 2 alerts to fire, got %d", len(fired))
	}
	got := map[string]bool{}
	for _, f := range fired {
		got[f.Asset.ID] = true
		if !f.At.Equal(fixed) {
			t.Fatalf("trigger time should come from the clock")
		}
	}
	if !got["bitcoin"] || !got["solana"] {
		t.Fatalf("unexpected fired set %v", got)
	}

	remaining := load(t, backend).Alerts()
	if len(remaining) != 2 {
		t.Fatalf("fired alerts should be removed and persisted, remaining %v", remaining)
	}
	if _, ok := remaining["ethereum"]; !ok {
		t.Fatal("ethereum alert should remain")
	}

	again, err := p.CheckAlerts(ctx, assets)
	if err != nil || len(again) != 0 {
		t.Fatalf("alerts are one-shot, got %d fired (%v)", len(again), err)
	}
}

func TestRemoveAlert(t *testing.T) {
	ctx := context.Background()
	p := load(t, storage.NewMemory())
	_, _ = p.SetAlert(ctx, "bitcoin", decimal.NewFromInt(1), Below)

	removed, err := p.RemoveAlert(ctx, "bitcoin")
	if err != nil || !removed {
		t.Fatalf("remove existing: %v %v", removed, err)
	}
	removed, err = p.RemoveAlert(ctx, "bitcoin")
	if err != nil || removed {
		t.Fatalf("remove missing: %v %v", removed, err)
	}
}
