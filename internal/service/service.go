package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"pocket-trading-bot/internal/alerting"
	"pocket-trading-bot/internal/archive"
	"pocket-trading-bot/internal/config"
	"pocket-trading-bot/internal/forecast"
	"pocket-trading-bot/internal/market"
	"pocket-trading-bot/internal/scheduler"
	"pocket-trading-bot/internal/signal"
	"pocket-trading-bot/internal/store"
)

// Analyzer produces at most one signal per asset.
type Analyzer interface {
	Analyze(ctx context.Context, asset string, candles []market.Candle) (forecast.Analysis, error)
}

// SignalStore persists signal batches.
type SignalStore interface {
	Save(signals []signal.Signal) (bool, error)
	Load() (store.State, error)
}

// UsageGate bounds completion-API spend per day.
type UsageGate interface {
	Allow(estTokens, estRequests int) (bool, error)
	Record(tokens, requests int) error
}

// Service orchestrates the forecast-and-store cycle.
type Service struct {
	scheduler *scheduler.Scheduler
	source    market.CandleSource
	analyzer  Analyzer
	store     SignalStore
	archive   archive.SignalArchive
	notifier  alerting.Notifier
	gate      UsageGate
	logger    zerolog.Logger

	assets      []string
	timeframe   int
	candleCount int
	assetDelay  time.Duration
	interval    time.Duration
	estTokens   int
	location    *time.Location
	now         func() time.Time
}

// New constructs the signal generation service. archive, notifier, and gate
// may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source market.CandleSource, analyzer Analyzer, st SignalStore, arch archive.SignalArchive, notifier alerting.Notifier, gate UsageGate, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:   sched,
		source:      source,
		analyzer:    analyzer,
		store:       st,
		archive:     arch,
		notifier:    notifier,
		gate:        gate,
		logger:      logger.With().Str("component", "service").Logger(),
		assets:      cfg.Signals.Assets,
		timeframe:   cfg.Signals.TimeframeSeconds,
		candleCount: cfg.Signals.CandleCount,
		assetDelay:  cfg.Signals.AssetDelay,
		interval:    cfg.Scheduler.Interval,
		estTokens:   cfg.Limits.EstTokensPerCycle,
		location:    cfg.Location(),
		now:         time.Now,
	}
}

// Run begins the scheduled generation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Cycle)
}

// Cycle executes one forecast-and-store pass. Connectivity, parse,
// validation, and persistence failures are all recovered here so the
// scheduler always completes its tick.
func (s *Service) Cycle(ctx context.Context, _ time.Time) error {
	_, err := s.Generate(ctx)
	return err
}

// Generate runs one cycle and returns the number of signals persisted.
func (s *Service) Generate(ctx context.Context) (persisted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("cycle panicked")
			persisted, err = 0, nil
		}
	}()

	now := s.now().In(s.location)

	if s.gate != nil {
		allowed, gateErr := s.gate.Allow(s.estTokens, len(s.assets))
		if gateErr != nil {
			s.logger.Error().Err(gateErr).Msg("usage gate unavailable, skipping cycle")
			return 0, nil
		}
		if !allowed {
			s.logger.Warn().Msg("daily usage budget exhausted, skipping cycle")
			return 0, nil
		}
	}

	if state, loadErr := s.store.Load(); loadErr == nil && state.LastUpdate != nil {
		if since := now.Sub(*state.LastUpdate); since >= 0 && since < s.interval {
			s.logger.Info().Dur("since_last", since).Msg("interval not elapsed since last generation, skipping")
			return 0, nil
		}
	}

	if connErr := s.source.Connect(ctx); connErr != nil {
		if errors.Is(connErr, market.ErrAuthExpired) {
			s.logger.Error().Err(connErr).Msg("broker authentication expired, rotate the session token")
		} else {
			s.logger.Error().Err(connErr).Msg("broker connection failed, skipping cycle")
		}
		return 0, nil
	}
	defer func() {
		if discErr := s.source.Disconnect(); discErr != nil {
			s.logger.Warn().Err(discErr).Msg("broker disconnect failed")
		}
	}()

	collected := make([]signal.Signal, 0, len(s.assets))
	tokensUsed := 0
	requestsUsed := 0

	for i, asset := range s.assets {
		if i > 0 && s.assetDelay > 0 {
			// Courtesy gap between assets for upstream rate limits.
			if waitErr := sleepCtx(ctx, s.assetDelay); waitErr != nil {
				return 0, waitErr
			}
		}

		candles, fetchErr := s.source.GetCandles(ctx, asset, s.timeframe, s.candleCount)
		if fetchErr != nil {
			s.logger.Warn().Err(fetchErr).Str("asset", asset).Msg("no candle data, asset skipped")
			continue
		}

		analysis, analyzeErr := s.analyzer.Analyze(ctx, asset, candles)
		tokensUsed += analysis.TokensUsed
		if analysis.TokensUsed > 0 {
			requestsUsed++
		}
		if analyzeErr != nil {
			if errors.Is(analyzeErr, context.Canceled) || errors.Is(analyzeErr, context.DeadlineExceeded) {
				return 0, analyzeErr
			}
			s.logger.Warn().Err(analyzeErr).Str("asset", asset).Msg("analysis failed, asset skipped")
			continue
		}
		if analysis.Signal == nil {
			s.logger.Info().Str("asset", asset).Msg("no signal for asset")
			continue
		}

		s.logger.Info().
			Str("asset", asset).
			Str("direction", string(analysis.Signal.Direction)).
			Float64("confidence", analysis.Signal.Confidence).
			Bool("fallback", analysis.Signal.Fallback).
			Msg("signal generated")
		collected = append(collected, *analysis.Signal)
	}

	if s.gate != nil {
		if recErr := s.gate.Record(tokensUsed, requestsUsed); recErr != nil {
			s.logger.Error().Err(recErr).Msg("failed to record usage")
		}
	}

	if len(collected) == 0 {
		s.logger.Warn().Msg("cycle produced no signals")
		return 0, nil
	}

	// Signals are stored in one batch so store readers never observe a
	// partial cycle. Disk errors get a couple of retries before the batch
	// is declared lost.
	saved, saveErr := s.saveWithRetry(ctx, collected)
	if saveErr != nil {
		s.logger.Error().Err(saveErr).Msg("persisting signals failed, batch lost")
		return 0, nil
	}
	if !saved {
		return 0, nil
	}

	if s.archive != nil {
		if archErr := s.archive.InsertSignals(ctx, collected); archErr != nil {
			s.logger.Error().Err(archErr).Msg("archiving signals failed")
		}
	}
	if s.notifier != nil {
		if notifyErr := s.notifier.Notify(ctx, collected); notifyErr != nil {
			s.logger.Error().Err(notifyErr).Msg("notifying signals failed")
		}
	}

	return len(collected), nil
}

const saveAttempts = 3

func (s *Service) saveWithRetry(ctx context.Context, batch []signal.Signal) (bool, error) {
	var (
		saved bool
		err   error
	)
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		saved, err = s.store.Save(batch)
		if err == nil {
			return saved, nil
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("signal save failed")
		if attempt < saveAttempts {
			if waitErr := sleepCtx(ctx, time.Duration(attempt)*time.Second); waitErr != nil {
				return false, err
			}
		}
	}
	return false, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
