package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"agentdash/internal/config"
	"agentdash/internal/market"
	"agentdash/internal/prefs"
	"agentdash/internal/service"
	"agentdash/internal/storage"
)

// SimulateAlert 以给定价格演练一次价格提醒，不修改已保存的提醒。
func (a *App) SimulateAlert(ctx context.Context, assetID string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return errors.New("--price 必须大于 0")
	}

	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	alert, ok := sess.prefs.Alerts()[assetID]
	if !ok {
		return fmt.Errorf("%s 未设置价格提醒", assetID)
	}

	// replay against a scratch backend so the stored alert survives
	scratch := storage.NewMemory()
	if err := storage.Set(ctx, scratch, storage.KeyAlerts, map[string]prefs.PriceAlert{assetID: alert}); err != nil {
		return err
	}
	scratchPrefs, err := prefs.Load(ctx, scratch, a.Logger)
	if err != nil {
		return err
	}

	cfg := *a.Config
	cfg.Refresh.AdvisoryLockKey = 0
	fetcher := &staticFetcher{snapshot: simulatedSnapshot(a.Config, assetID, price)}
	dash := service.New(&cfg, nil, fetcher, scratch, scratchPrefs, a.newNotifier(), a.Logger)
	if err := dash.Refresh(ctx); err != nil {
		return err
	}

	if _, pending := scratchPrefs.Alerts()[assetID]; pending {
		fmt.Fprintf(a.Out, "%s at %s does not cross %s %s\n", assetID, price.String(), alert.Direction, alert.TargetPrice.String())
		return nil
	}
	fmt.Fprintf(a.Out, "%s alert fired at %s (%s %s)\n", assetID, price.String(), alert.Direction, alert.TargetPrice.String())
	return nil
}

func simulatedSnapshot(cfg *config.Config, assetID string, price decimal.Decimal) market.Snapshot {
	return market.Snapshot{
		Assets: []market.Asset{
			market.NewSynthetic(market.TokenInfo{ID: cfg.Project.TokenID, Symbol: cfg.Project.Symbol, Name: cfg.Project.Name}),
			{ID: assetID, Name: assetID, CurrentPrice: decimal.NewNullDecimal(price)},
		},
		CapturedAt: time.Now().UTC(),
	}
}

type staticFetcher struct {
	snapshot market.Snapshot
}

func (s *staticFetcher) FetchSnapshot(ctx context.Context) (market.Snapshot, error) {
	return s.snapshot, nil
}

var _ market.Fetcher = (*staticFetcher)(nil)
