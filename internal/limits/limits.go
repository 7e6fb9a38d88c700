package limits

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const historyDays = 30

// Options parameterise the daily usage tracker.
type Options struct {
	Path              string
	MaxTokensPerDay   int
	MaxRequestsPerDay int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Usage is the persisted counter document.
type Usage struct {
	Date         string     `json:"date"`
	TokensUsed   int        `json:"tokens_used"`
	RequestsUsed int        `json:"requests_used"`
	LastReset    string     `json:"last_reset"`
	DailyHistory []DayUsage `json:"daily_history"`
}

// DayUsage summarises one closed day.
type DayUsage struct {
	Date         string `json:"date"`
	TokensUsed   int    `json:"tokens_used"`
	RequestsUsed int    `json:"requests_used"`
}

// Tracker bounds daily completion-API spend. Counters roll over at local
// midnight; the closed day moves into a bounded history.
type Tracker struct {
	opts   Options
	logger zerolog.Logger

	mu sync.Mutex
}

// New constructs a usage tracker.
func New(opts Options, logger zerolog.Logger) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		opts:   opts,
		logger: logger.With().Str("component", "usage_limits").Logger(),
	}
}

// Allow reports whether the estimated spend still fits today's budget.
func (t *Tracker) Allow(estTokens, estRequests int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	usage, err := t.loadLocked()
	if err != nil {
		return false, err
	}

	tokensLeft := t.opts.MaxTokensPerDay - usage.TokensUsed
	requestsLeft := t.opts.MaxRequestsPerDay - usage.RequestsUsed
	ok := tokensLeft >= estTokens && requestsLeft >= estRequests
	if !ok {
		t.logger.Warn().
			Int("tokens_left", tokensLeft).
			Int("requests_left", requestsLeft).
			Msg("daily usage budget exhausted")
	}
	return ok, nil
}

// Record adds consumed tokens and requests to today's counters.
func (t *Tracker) Record(tokens, requests int) error {
	if tokens == 0 && requests == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	usage, err := t.loadLocked()
	if err != nil {
		return err
	}

	usage.TokensUsed += tokens
	usage.RequestsUsed += requests
	if err := t.writeLocked(usage); err != nil {
		return err
	}

	t.logger.Info().
		Int("tokens", tokens).
		Int("requests", requests).
		Int("tokens_today", usage.TokensUsed).
		Int("requests_today", usage.RequestsUsed).
		Msg("usage recorded")
	return nil
}

// Snapshot returns today's counters after applying any pending rollover.
func (t *Tracker) Snapshot() (Usage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked()
}

// loadLocked reads the usage file and rolls the counters when the date
// changed since the last write.
func (t *Tracker) loadLocked() (Usage, error) {
	now := t.opts.Now()
	today := now.Format("2006-01-02")

	usage := Usage{Date: today, LastReset: now.Format("2006-01-02 15:04:05"), DailyHistory: []DayUsage{}}
	data, err := os.ReadFile(t.opts.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return usage, nil
		}
		return usage, fmt.Errorf("read usage: %w", err)
	}
	if err := json.Unmarshal(data, &usage); err != nil {
		return usage, fmt.Errorf("decode usage: %w", err)
	}

	if usage.Date != today {
		usage.DailyHistory = append(usage.DailyHistory, DayUsage{
			Date:         usage.Date,
			TokensUsed:   usage.TokensUsed,
			RequestsUsed: usage.RequestsUsed,
		})
		if len(usage.DailyHistory) > historyDays {
			usage.DailyHistory = usage.DailyHistory[len(usage.DailyHistory)-historyDays:]
		}
		usage.Date = today
		usage.TokensUsed = 0
		usage.RequestsUsed = 0
		usage.LastReset = now.Format("2006-01-02 15:04:05")
		if err := t.writeLocked(usage); err != nil {
			return usage, err
		}
		t.logger.Info().Str("date", today).Msg("daily usage counters reset")
	}

	return usage, nil
}

func (t *Tracker) writeLocked(usage Usage) error {
	if err := os.MkdirAll(filepath.Dir(t.opts.Path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return err
	}

	tmp := t.opts.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, t.opts.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write usage: %w", err)
	}
	return nil
}
