package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"agentdash/internal/alerting"
	"agentdash/internal/chat"
	"agentdash/internal/config"
	"agentdash/internal/httpapi"
	"agentdash/internal/logging"
	"agentdash/internal/market"
	"agentdash/internal/prefs"
	"agentdash/internal/scheduler"
	"agentdash/internal/service"
	"agentdash/internal/storage"
	"agentdash/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout}
}

// session holds the state containers bound to one storage backend.
type session struct {
	backend storage.Backend
	prefs   *prefs.Preferences
	conv    *chat.Conversation
	relay   *chat.Relay
}

func (s *session) Close() {
	if s.backend != nil {
		_ = s.backend.Close()
	}
}

func (a *App) openSession(ctx context.Context) (*session, error) {
	backend, err := storage.Open(ctx, a.Config.Storage)
	if err != nil {
		return nil, err
	}

	p, err := prefs.Load(ctx, backend, a.Logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	conv, err := chat.LoadConversation(ctx, backend, a.Config.Chat.MaxMessages, a.Logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	relay := chat.NewRelay(chat.RelayOptions{
		Endpoint:      a.Config.Chat.Endpoint,
		Timeout:       a.Config.Chat.RequestTimeout,
		HistoryWindow: a.Config.Chat.HistoryWindow,
		UserAgent:     version.UserAgent(),
	}, conv, a.Logger)

	return &session{backend: backend, prefs: p, conv: conv, relay: relay}, nil
}

func (a *App) newClient() *market.Client {
	ua := a.Config.Market.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return market.NewClient(market.ClientOptions{
		BaseURL:   a.Config.Market.BaseURL,
		APIKey:    a.Config.Market.APIKey,
		Currency:  a.Config.Market.Currency,
		AssetIDs:  a.Config.Market.AssetIDs,
		Timeout:   a.Config.Market.RequestTimeout,
		UserAgent: ua,
		Token:     a.tokenInfo(),
	}, a.Logger)
}

func (a *App) tokenInfo() market.TokenInfo {
	p := a.Config.Project
	return market.TokenInfo{
		ID:              p.TokenID,
		Symbol:          p.Symbol,
		Name:            p.Name,
		Image:           p.Image,
		ContractAddress: p.ContractAddress,
	}
}

func (a *App) newNotifier() alerting.Notifier {
	notifiers := alerting.Multi{alerting.NewLogNotifier(a.Logger)}
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}
	return notifiers
}

func (a *App) newDashboard(sess *session, sched *scheduler.Scheduler, fetcher market.Fetcher) *service.Dashboard {
	return service.New(a.Config, sched, fetcher, sess.backend, sess.prefs, a.newNotifier(), a.Logger)
}

// loadSnapshot primes dash from the cache, fetching only when the cache is
// stale or forced.
func (a *App) loadSnapshot(ctx context.Context, dash *service.Dashboard, force bool) error {
	if !force {
		primed, err := dash.Prime(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("cache unreadable; fetching")
		}
		if primed {
			return nil
		}
	}
	return dash.Refresh(ctx)
}

// Run executes the refresh loop and the HTTP API until interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Refresh.Interval,
		StartupDelay: a.Config.Refresh.StartupDelay,
	}, a.Logger)

	dash := a.newDashboard(sess, sched, a.newClient())
	api := httpapi.NewServer(a.Config.HTTP, dash, sess.prefs, sess.relay, a.Logger)

	a.Logger.Info().
		Str("storage", a.Config.Storage.Driver).
		Dur("interval", a.Config.Refresh.Interval).
		Msg("starting dashboard service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dash.Run(gctx) })
	g.Go(func() error { return api.Start(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("dashboard service stopped")
	return nil
}

// ExportOptions hold parameters for exporting an asset's sparkline.
type ExportOptions struct {
	AssetID   string
	PNGPath   string
	CSVPath   string
	MaxPoints int
	Refresh   bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Search        string
	Category      string
	FavoritesOnly bool
	Sort          string
	Limit         int
	Refresh       bool
}

// ChatOptions configure a one-shot chat exchange.
type ChatOptions struct {
	Message string
	AssetID string
	History bool
	Clear   bool
}
