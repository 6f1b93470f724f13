package app

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"agentdash/internal/prefs"
)

// ToggleFavorite flips an asset's favorite flag.
func (a *App) ToggleFavorite(ctx context.Context, id string) error {
	return a.withPrefs(ctx, func(p *prefs.Preferences) error {
		on, err := p.ToggleFavorite(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "%s favorite: %t\n", id, on)
		return nil
	})
}

// ToggleWatchlist flips an asset's watchlist membership.
func (a *App) ToggleWatchlist(ctx context.Context, id string) error {
	return a.withPrefs(ctx, func(p *prefs.Preferences) error {
		on, err := p.ToggleWatchlist(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "%s watchlist: %t\n", id, on)
		return nil
	})
}

// SetTheme persists the UI theme.
func (a *App) SetTheme(ctx context.Context, theme string) error {
	return a.withPrefs(ctx, func(p *prefs.Preferences) error {
		if err := p.SetTheme(ctx, prefs.Theme(theme)); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "theme: %s\n", p.Theme())
		return nil
	})
}

// SetAlert stores a price alert for an asset.
func (a *App) SetAlert(ctx context.Context, id string, target decimal.Decimal, direction string) error {
	return a.withPrefs(ctx, func(p *prefs.Preferences) error {
		alert, err := p.SetAlert(ctx, id, target, prefs.Direction(direction))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "alert set: %s %s %s\n", id, alert.Direction, alert.TargetPrice.String())
		return nil
	})
}

// RemoveAlert deletes an asset's price alert.
func (a *App) RemoveAlert(ctx context.Context, id string) error {
	return a.withPrefs(ctx, func(p *prefs.Preferences) error {
		removed, err := p.RemoveAlert(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("no alert set for %s", id)
		}
		fmt.Fprintf(a.Out, "alert removed: %s\n", id)
		return nil
	})
}

// ShowPrefs prints the stored preference state.
func (a *App) ShowPrefs(ctx context.Context) error {
	return a.withPrefs(ctx, func(p *prefs.Preferences) error {
		fmt.Fprintf(a.Out, "theme: %s\n", p.Theme())
		fmt.Fprintf(a.Out, "favorites: %v\n", p.Favorites())
		fmt.Fprintf(a.Out, "watchlist: %v\n", p.Watchlist())

		alerts := p.Alerts()
		if len(alerts) == 0 {
			fmt.Fprintln(a.Out, "alerts: none")
			return nil
		}
		ids := make([]string, 0, len(alerts))
		for id := range alerts {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Asset\tDirection\tTarget\tSet (UTC)\t")
		for _, id := range ids {
			alert := alerts[id]
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t\n", id, alert.Direction, alert.TargetPrice.String(), alert.SetAt.UTC().Format(time.RFC3339))
		}
		return writer.Flush()
	})
}

func (a *App) withPrefs(ctx context.Context, fn func(p *prefs.Preferences) error) error {
	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess.prefs)
}
