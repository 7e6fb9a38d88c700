package signal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Direction is the forecast side of a signal.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// ErrBadDirection indicates a direction token outside the two canonical values.
var ErrBadDirection = errors.New("signal: direction must be UP or DOWN")

// ParseDirection accepts only the two canonical tokens. Anything else is an
// error; tokens such as CALL/PUT or SIDEWAYS are never coerced.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(raw))) {
	case DirectionUp:
		return DirectionUp, nil
	case DirectionDown:
		return DirectionDown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrBadDirection, raw)
	}
}

// Signal is a directional trade forecast.
type Signal struct {
	ID             string    `json:"id" validate:"required"`
	Asset          string    `json:"asset" validate:"required"`
	Direction      Direction `json:"direction" validate:"required,oneof=UP DOWN"`
	Confidence     float64   `json:"confidence" validate:"gte=0,lte=1"`
	EntryTime      string    `json:"entry_time" validate:"required,datetime=15:04"`
	Duration       int       `json:"duration" validate:"gte=1"`
	Reason         string    `json:"reason"`
	GeneratedAt    time.Time `json:"generated_at" validate:"required"`
	GeneratedAtUTC time.Time `json:"generated_at_utc"`
	Fallback       bool      `json:"fallback,omitempty"`
}

const idStampLayout = "20060102150405"

var idStampSuffix = regexp.MustCompile(`_\d{14}$`)

// NewID derives the deterministic signal id from asset and generation time.
// Two signals for the same asset within the same second share an id; the
// store treats that as last-write-wins.
func NewID(asset string, generatedAt time.Time, loc *time.Location) string {
	return asset + "_" + generatedAt.In(loc).Format(idStampLayout)
}

// AssetFromID recovers the asset from a signal id by trimming the trailing
// generation stamp. Needed because assets themselves contain underscores
// (e.g. EURUSD_otc).
func AssetFromID(id string) string {
	return idStampSuffix.ReplaceAllString(id, "")
}

// EntryWindow resolves the signal's actionable window in loc. The HH:MM entry
// clock is combined with the generation date and rolled forward one day when
// that instant would precede generation (a signal issued at 23:58 with entry
// 00:02 enters tomorrow, not two minutes ago).
func (s Signal) EntryWindow(loc *time.Location) (start, end time.Time, err error) {
	var hh, mm int
	if _, err = fmt.Sscanf(s.EntryTime, "%d:%d", &hh, &mm); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("signal %s: parse entry_time %q: %w", s.ID, s.EntryTime, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return time.Time{}, time.Time{}, fmt.Errorf("signal %s: entry_time %q out of range", s.ID, s.EntryTime)
	}

	gen := s.GeneratedAt.In(loc)
	start = time.Date(gen.Year(), gen.Month(), gen.Day(), hh, mm, 0, 0, loc)
	if start.Before(gen) {
		start = start.AddDate(0, 0, 1)
	}

	duration := s.Duration
	if duration <= 0 {
		duration = 2
	}
	end = start.Add(time.Duration(duration) * time.Minute)
	return start, end, nil
}

// IsActive reports whether now falls inside the entry window.
func (s Signal) IsActive(now time.Time, loc *time.Location) bool {
	start, end, err := s.EntryWindow(loc)
	if err != nil {
		return false
	}
	now = now.In(loc)
	return !now.Before(start) && !now.After(end)
}

// Expired reports whether the entry window has fully elapsed. Malformed entry
// times count as expired so they age out of the rolling file.
func (s Signal) Expired(now time.Time, loc *time.Location) bool {
	_, end, err := s.EntryWindow(loc)
	if err != nil {
		return true
	}
	return now.In(loc).After(end)
}

// Feedback is a post-hoc outcome report for a previously issued signal.
type Feedback struct {
	SignalID      string    `json:"signal_id"`
	Success       bool      `json:"success"`
	UserComment   string    `json:"user_comment,omitempty"`
	FeedbackAt    time.Time `json:"feedback_at"`
	FeedbackAtUTC time.Time `json:"feedback_at_utc"`
	Learned       bool      `json:"learned"`
}

// Lesson is the per-asset accuracy aggregate derived from feedback.
type Lesson struct {
	Asset         string    `json:"asset"`
	FeedbackCount int       `json:"feedback_count"`
	SuccessCount  int       `json:"success_count"`
	Accuracy      float64   `json:"accuracy"`
	UpdatedAt     time.Time `json:"updated_at"`
}
