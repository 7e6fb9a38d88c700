package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pocket-trading-bot/internal/signal"
)

// Options parameterise the JSON signal store.
type Options struct {
	Dir           string
	SignalsFile   string
	HistoryFile   string
	FeedbackFile  string
	LessonsFile   string
	MinConfidence float64
	MaxDuration   int
	MaxActive     int
	HistoryLimit  int
	Location      *time.Location
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// State is the persisted signal document, read as-is by external consumers.
type State struct {
	LastUpdate    *time.Time      `json:"last_update"`
	LastUpdateUTC *time.Time      `json:"last_update_utc"`
	Timezone      string          `json:"timezone"`
	Signals       []signal.Signal `json:"signals"`
	TotalSignals  int             `json:"total_signals"`
	ActiveSignals int             `json:"active_signals"`
}

// HistoryEntry is a signal as appended to the rolling history log.
type HistoryEntry struct {
	signal.Signal
	SavedAt    time.Time `json:"saved_at"`
	SavedAtUTC time.Time `json:"saved_at_utc"`
}

// Store persists signals, history, feedback, and lessons as JSON documents.
// All writes are serialized through a single mutex; the files must not be
// written by another process.
type Store struct {
	opts   Options
	logger zerolog.Logger

	mu sync.Mutex
}

// New constructs a store and ensures the data directory exists.
func New(opts Options, logger zerolog.Logger) (*Store, error) {
	if opts.Dir == "" {
		opts.Dir = "data"
	}
	if opts.SignalsFile == "" {
		opts.SignalsFile = "signals.json"
	}
	if opts.HistoryFile == "" {
		opts.HistoryFile = "history.json"
	}
	if opts.FeedbackFile == "" {
		opts.FeedbackFile = "feedback.json"
	}
	if opts.LessonsFile == "" {
		opts.LessonsFile = "lessons.json"
	}
	if opts.MaxActive <= 0 {
		opts.MaxActive = 10
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 500
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return &Store{
		opts:   opts,
		logger: logger.With().Str("component", "signal_store").Logger(),
	}, nil
}

// Save persists a batch of signals. Entries below the confidence floor are
// filtered out, over-long durations clamped. When nothing survives filtering
// the store file is left untouched and (false, nil) is returned; a non-nil
// error always means a persistence failure.
func (s *Store) Save(signals []signal.Signal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now().In(s.opts.Location)
	valid := s.prepare(signals, now)
	if len(valid) == 0 {
		s.logger.Warn().Int("offered", len(signals)).Msg("no signals above confidence floor, store untouched")
		return false, nil
	}

	state, err := s.loadLocked()
	if err != nil {
		return false, err
	}

	// Previously stored signals stay while their entry window has not fully
	// elapsed; everything else ages out on the next save.
	retained := make([]signal.Signal, 0, len(state.Signals))
	for _, sig := range state.Signals {
		if !sig.Expired(now, s.opts.Location) {
			retained = append(retained, sig)
		}
	}

	all := append(retained, valid...)
	sort.Slice(all, func(i, j int) bool { return all[i].GeneratedAt.Before(all[j].GeneratedAt) })
	if len(all) > s.opts.MaxActive {
		all = all[len(all)-s.opts.MaxActive:]
	}

	nowUTC := now.UTC()
	state = State{
		LastUpdate:    &now,
		LastUpdateUTC: &nowUTC,
		Timezone:      s.opts.Location.String(),
		Signals:       all,
		TotalSignals:  len(all),
		ActiveSignals: s.countActive(all, now),
	}

	if err := writeJSONAtomic(s.signalsPath(), state); err != nil {
		return false, fmt.Errorf("write signals: %w", err)
	}

	if err := s.appendHistoryLocked(valid, now); err != nil {
		// The current document is already durable; history is best effort.
		s.logger.Error().Err(err).Msg("append history failed")
	}

	s.logger.Info().Int("saved", len(valid)).Int("total", state.TotalSignals).Int("active", state.ActiveSignals).Msg("signals saved")
	return true, nil
}

func (s *Store) prepare(signals []signal.Signal, now time.Time) []signal.Signal {
	valid := make([]signal.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.Confidence < s.opts.MinConfidence {
			s.logger.Warn().Str("asset", sig.Asset).Float64("confidence", sig.Confidence).Msg("signal below confidence floor, dropped")
			continue
		}
		if sig.GeneratedAt.IsZero() {
			sig.GeneratedAt = now
		}
		if sig.GeneratedAtUTC.IsZero() {
			sig.GeneratedAtUTC = sig.GeneratedAt.UTC()
		}
		if sig.ID == "" {
			sig.ID = signal.NewID(sig.Asset, sig.GeneratedAt, s.opts.Location)
		}
		if s.opts.MaxDuration > 0 && sig.Duration > s.opts.MaxDuration {
			sig.Duration = s.opts.MaxDuration
		}
		if err := signal.Validate(sig); err != nil {
			s.logger.Warn().Err(err).Str("asset", sig.Asset).Msg("malformed signal dropped")
			continue
		}
		valid = append(valid, sig)
	}
	return valid
}

// Load reads the current signal document. A missing file yields an empty
// state, not an error.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (State, error) {
	state := State{Timezone: s.opts.Location.String(), Signals: []signal.Signal{}}
	if err := readJSON(s.signalsPath(), &state); err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("read signals: %w", err)
	}
	return state, nil
}

// Active returns the signals whose entry window currently covers now. The
// result is recomputed on every call; the document's counter is advisory.
func (s *Store) Active() ([]signal.Signal, error) {
	state, err := s.Load()
	if err != nil {
		return nil, err
	}

	now := s.opts.Now().In(s.opts.Location)
	active := make([]signal.Signal, 0, len(state.Signals))
	for _, sig := range state.Signals {
		if sig.IsActive(now, s.opts.Location) {
			active = append(active, sig)
		}
	}
	return active, nil
}

// Cleanup drops expired signals and enforces the rolling cap.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return err
	}
	if len(state.Signals) == 0 {
		return nil
	}

	now := s.opts.Now().In(s.opts.Location)
	kept := make([]signal.Signal, 0, len(state.Signals))
	for _, sig := range state.Signals {
		if !sig.Expired(now, s.opts.Location) {
			kept = append(kept, sig)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].GeneratedAt.Before(kept[j].GeneratedAt) })
	if len(kept) > s.opts.MaxActive {
		kept = kept[len(kept)-s.opts.MaxActive:]
	}

	state.Signals = kept
	state.TotalSignals = len(kept)
	state.ActiveSignals = s.countActive(kept, now)

	if err := writeJSONAtomic(s.signalsPath(), state); err != nil {
		return fmt.Errorf("write signals: %w", err)
	}
	s.logger.Info().Int("kept", len(kept)).Msg("signal cleanup complete")
	return nil
}

// History returns the rolling history log, oldest first.
func (s *Store) History() ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Store) historyLocked() ([]HistoryEntry, error) {
	history := []HistoryEntry{}
	if err := readJSON(s.historyPath(), &history); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return history, nil
}

func (s *Store) appendHistoryLocked(signals []signal.Signal, now time.Time) error {
	history, err := s.historyLocked()
	if err != nil {
		return err
	}

	for _, sig := range signals {
		history = append(history, HistoryEntry{Signal: sig, SavedAt: now, SavedAtUTC: now.UTC()})
	}
	if len(history) > s.opts.HistoryLimit {
		history = history[len(history)-s.opts.HistoryLimit:]
	}
	return writeJSONAtomic(s.historyPath(), history)
}

func (s *Store) countActive(signals []signal.Signal, now time.Time) int {
	count := 0
	for _, sig := range signals {
		if sig.IsActive(now, s.opts.Location) {
			count++
		}
	}
	return count
}

func (s *Store) signalsPath() string  { return filepath.Join(s.opts.Dir, s.opts.SignalsFile) }
func (s *Store) historyPath() string  { return filepath.Join(s.opts.Dir, s.opts.HistoryFile) }
func (s *Store) feedbackPath() string { return filepath.Join(s.opts.Dir, s.opts.FeedbackFile) }
func (s *Store) lessonsPath() string  { return filepath.Join(s.opts.Dir, s.opts.LessonsFile) }

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONAtomic writes through a temp file plus rename so readers never
// observe a truncated document.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
