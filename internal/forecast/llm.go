package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Completion is the raw outcome of one completion call.
type Completion struct {
	Content    string
	TokensUsed int
}

// Completer issues one chat-completion request.
type Completer interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// GroqOptions parameterise the completion client. The endpoint speaks the
// OpenAI chat-completions wire format.
type GroqOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Groq calls the hosted completion API.
type Groq struct {
	opts    GroqOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGroq constructs a completion client.
func NewGroq(opts GroqOptions, logger zerolog.Logger) *Groq {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}

	return &Groq{
		opts:    opts,
		logger:  logger.With().Str("component", "llm_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one chat-completion request and returns the model text.
func (g *Groq) Complete(ctx context.Context, system, user string) (Completion, error) {
	if g.opts.APIKey == "" {
		return Completion{}, errors.New("llm api key not configured")
	}

	payload := chatRequest{
		Model: g.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, err
	}

	endpoint := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.opts.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Completion{}, parseAPIError(resp.StatusCode, payloadBytes)
	}

	var chat chatResponse
	if err := json.Unmarshal(payloadBytes, &chat); err != nil {
		return Completion{}, fmt.Errorf("decode completion response: %w", err)
	}
	if chat.Error != nil {
		return Completion{}, fmt.Errorf("completion api error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return Completion{}, errors.New("completion response has no choices")
	}

	return Completion{
		Content:    chat.Choices[0].Message.Content,
		TokensUsed: chat.Usage.TotalTokens,
	}, nil
}

func parseAPIError(status int, payload []byte) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("completion api error (%d): %s", status, apiErr.Error.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("completion api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("completion api error (%d)", status)
}

var _ Completer = (*Groq)(nil)
