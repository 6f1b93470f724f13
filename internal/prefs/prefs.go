// Package prefs owns the user's preference state: theme, favorites,
// watchlist and price alerts. Every mutation is persisted before it returns.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agentdash/internal/market"
	"agentdash/internal/storage"
)

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Direction is the side of the target price that fires an alert.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

var (
	ErrInvalidTheme     = errors.New("theme must be dark or light")
	ErrInvalidDirection = errors.New("direction must be above or below")
	ErrInvalidTarget    = errors.New("target price must be greater than zero")
	ErrEmptyAssetID     = errors.New("asset id is required")
)

// PriceAlert is a one-shot price threshold for an asset.
type PriceAlert struct {
	TargetPrice decimal.Decimal `json:"target_price"`
	Direction   Direction       `json:"direction"`
	SetAt       time.Time       `json:"set_at"`
}

// Triggered is an alert whose condition held against a live price.
type Triggered struct {
	Asset market.Asset
	Alert PriceAlert
	Price decimal.Decimal
	At    time.Time
}

// Preferences is the state container for user preferences.
type Preferences struct {
	mu        sync.RWMutex
	backend   storage.Backend
	logger    zerolog.Logger
	now       func() time.Time
	theme     Theme
	favorites market.Set
	watchlist market.Set
	alerts    map[string]PriceAlert
}

// Load reads every preference slot. Corrupt slots fall back to defaults and
// are logged.
func Load(ctx context.Context, backend storage.Backend, logger zerolog.Logger) (*Preferences, error) {
	p := &Preferences{
		backend: backend,
		logger:  logger.With().Str("component", "prefs").Logger(),
		now:     time.Now,
	}

	theme, err := storage.Get(ctx, backend, storage.KeyTheme, ThemeDark)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return nil, err
		}
		p.logger.Warn().Err(err).Msg("theme slot unreadable; using default")
	}
	if theme != ThemeDark && theme != ThemeLight {
		theme = ThemeDark
	}
	p.theme = theme

	favorites, err := storage.Get(ctx, backend, storage.KeyFavorites, []string{})
	if err != nil {
		p.logger.Warn().Err(err).Msg("favorites slot unreadable; starting empty")
	}
	p.favorites = market.NewSet(favorites...)

	watchlist, err := storage.Get(ctx, backend, storage.KeyWatchlist, []string{})
	if err != nil {
		p.logger.Warn().Err(err).Msg("watchlist slot unreadable; starting empty")
	}
	p.watchlist = market.NewSet(watchlist...)

	alerts, err := storage.Get(ctx, backend, storage.KeyAlerts, map[string]PriceAlert{})
	if err != nil {
		p.logger.Warn().Err(err).Msg("alerts slot unreadable; starting empty")
	}
	if alerts == nil {
		alerts = map[string]PriceAlert{}
	}
	p.alerts = alerts

	return p, nil
}

// Theme returns the current theme.
func (p *Preferences) Theme() Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.theme
}

// SetTheme validates and persists the theme.
func (p *Preferences) SetTheme(ctx context.Context, theme Theme) error {
	theme = Theme(strings.ToLower(string(theme)))
	if theme != ThemeDark && theme != ThemeLight {
		return ErrInvalidTheme
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := storage.Set(ctx, p.backend, storage.KeyTheme, theme); err != nil {
		return err
	}
	p.theme = theme
	return nil
}

// ToggleFavorite flips membership and reports the new state.
func (p *Preferences) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	return p.toggle(ctx, id, p.favorites, storage.KeyFavorites)
}

// ToggleWatchlist flips membership and reports the new state.
func (p *Preferences) ToggleWatchlist(ctx context.Context, id string) (bool, error) {
	return p.toggle(ctx, id, p.watchlist, storage.KeyWatchlist)
}

func (p *Preferences) toggle(ctx context.Context, id string, set market.Set, key string) (bool, error) {
	if id == "" {
		return false, ErrEmptyAssetID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, present := set[id]
	if present {
		delete(set, id)
	} else {
		set[id] = struct{}{}
	}

	if err := storage.Set(ctx, p.backend, key, sortedIDs(set)); err != nil {
		// roll back so memory matches what is stored
		if present {
			set[id] = struct{}{}
		} else {
			delete(set, id)
		}
		return present, err
	}
	return !present, nil
}

// IsFavorite reports whether id is a favorite.
func (p *Preferences) IsFavorite(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.favorites.Has(id)
}

// Favorites returns the favorite ids, sorted.
func (p *Preferences) Favorites() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedIDs(p.favorites)
}

// Watchlist returns the watchlist ids, sorted.
func (p *Preferences) Watchlist() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedIDs(p.watchlist)
}

// Sets returns independent copies of the favorites and watchlist sets.
func (p *Preferences) Sets() (favorites, watchlist market.Set) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return market.NewSet(sortedIDs(p.favorites)...), market.NewSet(sortedIDs(p.watchlist)...)
}

// SetAlert stores or replaces the alert for id.
func (p *Preferences) SetAlert(ctx context.Context, id string, target decimal.Decimal, dir Direction) (PriceAlert, error) {
	if id == "" {
		return PriceAlert{}, ErrEmptyAssetID
	}
	if !target.IsPositive() {
		return PriceAlert{}, ErrInvalidTarget
	}
	dir = Direction(strings.ToLower(string(dir)))
	if dir != Above && dir != Below {
		return PriceAlert{}, ErrInvalidDirection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	alert := PriceAlert{TargetPrice: target, Direction: dir, SetAt: p.now().UTC()}
	next := p.copyAlerts()
	next[id] = alert
	if err := storage.Set(ctx, p.backend, storage.KeyAlerts, next); err != nil {
		return PriceAlert{}, err
	}
	p.alerts = next
	return alert, nil
}

// RemoveAlert deletes the alert for id; it reports whether one existed.
func (p *Preferences) RemoveAlert(ctx context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.alerts[id]; !ok {
		return false, nil
	}
	next := p.copyAlerts()
	delete(next, id)
	if err := storage.Set(ctx, p.backend, storage.KeyAlerts, next); err != nil {
		return false, err
	}
	p.alerts = next
	return true, nil
}

// Alerts returns a copy of the alert map.
func (p *Preferences) Alerts() map[string]PriceAlert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.copyAlerts()
}

// CheckAlerts fires every alert whose condition holds against assets and
// removes it. Assets without a price, and the synthetic record, never fire.
func (p *Preferences) CheckAlerts(ctx context.Context, assets []market.Asset) ([]Triggered, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.alerts) == 0 {
		return nil, nil
	}

	now := p.now().UTC()
	next := p.copyAlerts()
	var fired []Triggered
	for _, asset := range assets {
		alert, ok := next[asset.ID]
		if !ok || asset.ComingSoon || !asset.CurrentPrice.Valid {
			continue
		}
		price := asset.CurrentPrice.Decimal
		hit := (alert.Direction == Above && price.GreaterThanOrEqual(alert.TargetPrice)) ||
			(alert.Direction == Below && price.LessThanOrEqual(alert.TargetPrice))
		if !hit {
			continue
		}
		fired = append(fired, Triggered{Asset: asset, Alert: alert, Price: price, At: now})
		delete(next, asset.ID)
	}

	if len(fired) == 0 {
		return nil, nil
	}
	if err := storage.Set(ctx, p.backend, storage.KeyAlerts, next); err != nil {
		return fired, fmt.Errorf("persist fired alerts: %w", err)
	}
	p.alerts = next
	return fired, nil
}

func (p *Preferences) copyAlerts() map[string]PriceAlert {
	out := make(map[string]PriceAlert, len(p.alerts))
	for k, v := range p.alerts {
		out[k] = v
	}
	return out
}

func sortedIDs(set market.Set) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
