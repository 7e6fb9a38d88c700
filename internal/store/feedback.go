package store

import (
	"fmt"
	"os"
	"sort"
	"time"

	"pocket-trading-bot/internal/signal"
)

// SaveFeedback appends an outcome report and immediately folds every not yet
// learned entry into the per-asset lessons. Feedback is never deduplicated:
// two reports for the same signal both count.
func (s *Store) SaveFeedback(signalID string, success bool, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	feedback, err := s.feedbackLocked()
	if err != nil {
		return err
	}

	now := s.opts.Now().In(s.opts.Location)
	feedback = append(feedback, signal.Feedback{
		SignalID:      signalID,
		Success:       success,
		UserComment:   comment,
		FeedbackAt:    now,
		FeedbackAtUTC: now.UTC(),
		Learned:       false,
	})

	if err := s.learnLocked(feedback, now); err != nil {
		return err
	}

	s.logger.Info().Str("signal_id", signalID).Bool("success", success).Msg("feedback recorded")
	return nil
}

// Feedback returns all recorded feedback entries.
func (s *Store) Feedback() ([]signal.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedbackLocked()
}

// Lessons returns the per-asset accuracy aggregates, sorted by asset.
func (s *Store) Lessons() ([]signal.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lessonsLocked()
}

func (s *Store) feedbackLocked() ([]signal.Feedback, error) {
	feedback := []signal.Feedback{}
	if err := readJSON(s.feedbackPath(), &feedback); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read feedback: %w", err)
	}
	return feedback, nil
}

func (s *Store) lessonsLocked() ([]signal.Lesson, error) {
	lessons := []signal.Lesson{}
	if err := readJSON(s.lessonsPath(), &lessons); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read lessons: %w", err)
	}
	return lessons, nil
}

// learnLocked folds unlearned feedback into the lessons aggregate and flips
// the learned flag, so re-running aggregation is a no-op. Both documents are
// rewritten; feedback last, so a crash in between re-learns at most once
// rather than losing a lesson.
func (s *Store) learnLocked(feedback []signal.Feedback, now time.Time) error {
	lessons, err := s.lessonsLocked()
	if err != nil {
		return err
	}

	byAsset := make(map[string]*signal.Lesson, len(lessons))
	for _, lesson := range lessons {
		copied := lesson
		byAsset[lesson.Asset] = &copied
	}

	learned := 0
	for i := range feedback {
		if feedback[i].Learned {
			continue
		}
		asset := s.resolveAssetLocked(feedback[i].SignalID)

		lesson, ok := byAsset[asset]
		if !ok {
			lesson = &signal.Lesson{Asset: asset}
			byAsset[asset] = lesson
		}
		lesson.FeedbackCount++
		if feedback[i].Success {
			lesson.SuccessCount++
		}
		lesson.Accuracy = float64(lesson.SuccessCount) / float64(lesson.FeedbackCount)
		lesson.UpdatedAt = now

		feedback[i].Learned = true
		learned++
	}

	if learned > 0 {
		lessons = lessons[:0]
		for _, lesson := range byAsset {
			lessons = append(lessons, *lesson)
		}
		sort.Slice(lessons, func(i, j int) bool { return lessons[i].Asset < lessons[j].Asset })
		if err := writeJSONAtomic(s.lessonsPath(), lessons); err != nil {
			return fmt.Errorf("write lessons: %w", err)
		}
	}
	if err := writeJSONAtomic(s.feedbackPath(), feedback); err != nil {
		return fmt.Errorf("write feedback: %w", err)
	}

	if learned > 0 {
		s.logger.Info().Int("entries", learned).Msg("feedback folded into lessons")
	}
	return nil
}

// resolveAssetLocked maps a signal id back to its asset: by history lookup
// first, by trimming the id's generation stamp when the signal is already
// evicted. Unresolvable ids aggregate under the raw id string.
func (s *Store) resolveAssetLocked(signalID string) string {
	history, err := s.historyLocked()
	if err == nil {
		for _, entry := range history {
			if entry.ID == signalID {
				return entry.Asset
			}
		}
	}
	return signal.AssetFromID(signalID)
}
