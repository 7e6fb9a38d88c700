package app

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"pocket-trading-bot/internal/alerting"
	"pocket-trading-bot/internal/archive"
	"pocket-trading-bot/internal/config"
	"pocket-trading-bot/internal/forecast"
	"pocket-trading-bot/internal/limits"
	"pocket-trading-bot/internal/market"
	"pocket-trading-bot/internal/scheduler"
	"pocket-trading-bot/internal/service"
	"pocket-trading-bot/internal/store"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newStore() (*store.Store, error) {
	cfg := a.Config
	return store.New(store.Options{
		Dir:           cfg.Storage.DataDir,
		SignalsFile:   cfg.Storage.SignalsFile,
		HistoryFile:   cfg.Storage.HistoryFile,
		FeedbackFile:  cfg.Storage.FeedbackFile,
		LessonsFile:   cfg.Storage.LessonsFile,
		MinConfidence: cfg.Signals.MinConfidence,
		MaxDuration:   cfg.Signals.MaxDuration,
		MaxActive:     cfg.Signals.MaxActive,
		HistoryLimit:  cfg.Signals.HistoryLimit,
		Location:      cfg.Location(),
	}, a.Logger)
}

func (a *App) newSource() market.CandleSource {
	cfg := a.Config.Broker
	return market.NewPocket(market.PocketOptions{
		SSID:    cfg.SSID,
		Demo:    cfg.Demo,
		URL:     cfg.URL,
		Origin:  cfg.Origin,
		Timeout: cfg.RequestTimeout,
	}, a.Logger)
}

func (a *App) newEngine() *forecast.Engine {
	cfg := a.Config

	var completer forecast.Completer
	if cfg.LLM.APIKey != "" {
		completer = forecast.NewGroq(forecast.GroqOptions{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.RequestTimeout,
		}, a.Logger)
	} else {
		a.Logger.Warn().Msg("llm.api_key not configured; only the fallback heuristic will run")
	}

	return forecast.NewEngine(completer, forecast.Options{
		MinConfidence:    cfg.Signals.MinConfidence,
		MaxDuration:      cfg.Signals.MaxDuration,
		PromptCandles:    cfg.Signals.PromptCandles,
		EntryDelay:       cfg.Signals.EntryDelay,
		TimeframeSeconds: cfg.Signals.TimeframeSeconds,
		Language:         cfg.LLM.Language,
		Location:         cfg.Location(),
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Broker.RequestTimeout, a.Logger)
	}
	return nil
}

func (a *App) newLimits() *limits.Tracker {
	cfg := a.Config
	return limits.New(limits.Options{
		Path:              filepath.Join(cfg.Storage.DataDir, cfg.Storage.UsageFile),
		MaxTokensPerDay:   cfg.Limits.MaxTokensPerDay,
		MaxRequestsPerDay: cfg.Limits.MaxRequestsPerDay,
	}, a.Logger)
}

func (a *App) openArchive(ctx context.Context) (*archive.Archive, func(), error) {
	if a.Config.Storage.ArchiveDSN == "" {
		return nil, nil, nil
	}

	pool, err := archive.NewPool(ctx, a.Config.Storage)
	if err != nil {
		return nil, nil, err
	}

	arch, err := archive.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return arch, arch.Close, nil
}

func (a *App) newService(ctx context.Context, withScheduler bool) (*service.Service, func(), error) {
	st, err := a.newStore()
	if err != nil {
		return nil, nil, err
	}

	arch, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if arch == nil {
		a.Logger.Debug().Msg("storage.archive_dsn not configured; archive mirror disabled")
	}

	var sched *scheduler.Scheduler
	if withScheduler {
		sched = scheduler.New(scheduler.Options{
			Interval:     a.Config.Scheduler.Interval,
			AlignToStart: a.Config.Scheduler.AlignToBucket,
			RunAtStart:   a.Config.Scheduler.RunAtStart,
			StartupDelay: a.Config.Scheduler.StartupDelay,
		}, a.Logger)
	}

	var archDep archive.SignalArchive
	if arch != nil {
		archDep = arch
	}

	svc := service.New(a.Config, sched, a.newSource(), a.newEngine(), st, archDep, a.newNotifier(), a.newLimits(), a.Logger)

	closer := func() {
		if closeArchive != nil {
			closeArchive()
		}
	}
	return svc, closer, nil
}

// Run executes the long-running generation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closer, err := a.newService(ctx, true)
	if err != nil {
		return err
	}
	defer closer()

	a.Logger.Info().
		Strs("assets", a.Config.Signals.Assets).
		Dur("interval", a.Config.Scheduler.Interval).
		Str("timezone", a.Config.Timezone).
		Msg("starting signal generation service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("signal generation service stopped")
	return nil
}

// RunOnce executes a single generation cycle and returns the number of
// signals produced. Used for cron-style batch invocation.
func (a *App) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closer, err := a.newService(ctx, false)
	if err != nil {
		return 0, err
	}
	defer closer()

	return svc.Generate(ctx)
}
