package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pocket-trading-bot/internal/signal"
)

// Notifier pushes freshly issued signals to an external channel.
type Notifier interface {
	Notify(ctx context.Context, signals []signal.Signal) error
}

// TelegramNotifier sends signal batches through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify posts the batch via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, signals []signal.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(signals),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Int("signals", len(signals)).Msg("signal batch pushed to telegram")
	return nil
}

func renderMessage(signals []signal.Signal) string {
	builder := strings.Builder{}
	builder.WriteString("[Trading Signals]\n")
	for _, s := range signals {
		arrow := "↑"
		if s.Direction == signal.DirectionDown {
			arrow = "↓"
		}
		builder.WriteString(fmt.Sprintf("%s %s %s | %.0f%% | entry %s | %dm",
			arrow, s.Asset, s.Direction, s.Confidence*100, s.EntryTime, s.Duration))
		if s.Fallback {
			builder.WriteString(" | fallback")
		}
		builder.WriteString("\n")
		if s.Reason != "" {
			builder.WriteString("  " + s.Reason + "\n")
		}
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
