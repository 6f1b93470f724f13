package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"agentdash/internal/market"
	"agentdash/internal/service"
)

// Show prints the filtered, sorted market view followed by the aggregate stats.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	dash := a.newDashboard(sess, nil, a.newClient())
	if err := a.loadSnapshot(ctx, dash, opts.Refresh); err != nil {
		return err
	}

	view := dash.View(market.Criteria{
		Search:        opts.Search,
		Category:      market.ParseCategory(opts.Category),
		FavoritesOnly: opts.FavoritesOnly,
		Sort:          market.ParseSortKey(opts.Sort),
	})
	a.renderView(view, sess.prefs.Favorites(), opts.Limit)
	return nil
}

func (a *App) renderView(view service.View, favorites []string, limit int) {
	if len(view.Assets) == 0 {
		fmt.Fprintln(a.Out, "no assets match the current filters")
	} else {
		fav := market.NewSet(favorites...)
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "#\tAsset\tPrice\t1h%\t24h%\t7d%\tMarket Cap\tVolume\t")

		for i, asset := range view.Assets {
			if limit > 0 && i >= limit {
				break
			}
			star := ""
			if fav.Has(asset.ID) {
				star = "*"
			}
			if asset.ComingSoon {
				fmt.Fprintf(writer, "-\t%s (%s)%s\tcoming soon\t\t\t\t\t\t\n", asset.Name, strings.ToUpper(asset.Symbol), star)
				continue
			}
			fmt.Fprintf(
				writer,
				"%s\t%s (%s)%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				formatRank(asset.MarketCapRank),
				asset.Name,
				strings.ToUpper(asset.Symbol),
				star,
				formatNull(asset.CurrentPrice, 4),
				formatNull(asset.Change1h, 2),
				formatNull(asset.Change24h, 2),
				formatNull(asset.Change7d, 2),
				formatNull(asset.MarketCap, 0),
				formatNull(asset.TotalVolume, 0),
			)
		}
		writer.Flush()
	}

	stats := view.Stats
	captured := "never"
	if !view.CapturedAt.IsZero() {
		captured = view.CapturedAt.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(a.Out, "\nassets: %d  total market cap: %s  total volume: %s  avg 24h: %s%%  captured: %s\n",
		stats.Count,
		formatDecimal(stats.TotalMarketCap, 0),
		formatDecimal(stats.TotalVolume, 0),
		formatDecimal(stats.AverageChange24h, 2),
		captured,
	)
}

func formatRank(rank *int) string {
	if rank == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *rank)
}

func formatNull(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "N/A"
	}
	return formatDecimal(v.Decimal, places)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
