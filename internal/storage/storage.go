package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested slot has never been written.
	ErrNotFound = errors.New("storage: key not found")
	// ErrNotConfigured indicates the backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// Slot keys. Each slot is owned by one feature and is last-write-wins.
const (
	KeyTheme          = "theme"
	KeyFavorites      = "favorites"
	KeyWatchlist      = "watchlist"
	KeyConversation   = "conversation"
	KeyMarketSnapshot = "market_snapshot"
	KeyAlerts         = "price_alerts"
)

// Backend persists opaque values under string keys.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}

// Get decodes the value stored under key, returning def when the slot is
// empty. A corrupt slot yields def together with the decode error.
func Get[T any](ctx context.Context, b Backend, key string, def T) (T, error) {
	if b == nil {
		return def, ErrNotConfigured
	}

	raw, err := b.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("load %s: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return def, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, nil
}

// Set encodes value and overwrites the slot.
func Set[T any](ctx context.Context, b Backend, key string, value T) error {
	if b == nil {
		return ErrNotConfigured
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
