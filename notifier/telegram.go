package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/utils"
)

const (
	defaultAPIBaseURL = "https://api.telegram.org"
	requestTimeout    = 10 * time.Second
	sendAttempts      = 3
	maxRetryPause     = 30 * time.Second
)

// Telegram delivers alert messages through the Bot API. Rate-limit responses
// are retried honoring the advertised retry_after, other failures get a short
// capped backoff.
type Telegram struct {
	logger     logging.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewTelegram(logger logging.Logger, token string) *Telegram {
	return &Telegram{
		logger:     logger,
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultAPIBaseURL,
		token:      token,
	}
}

// NewTelegramWithBaseURL is used by tests to point the client at a fake API.
func NewTelegramWithBaseURL(logger logging.Logger, token, baseURL string) *Telegram {
	t := NewTelegram(logger, token)
	t.baseURL = baseURL
	return t
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) Notify(ctx context.Context, chatID int64, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("can't encode telegram request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		retryAfter, err := t.send(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == sendAttempts-1 {
			break
		}

		pause := time.Second << attempt
		if retryAfter > 0 {
			pause = retryAfter
		}
		if pause > maxRetryPause {
			pause = maxRetryPause
		}
		t.logger.WithError(err).WithField("pause", pause).Debug("telegram send failed, retrying")
		if utils.ContextSleep(ctx, pause) == nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", sendAttempts, lastErr)
}

func (t *Telegram) send(ctx context.Context, payload []byte) (time.Duration, error) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("can't build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var decoded sendMessageResponse
	_ = json.Unmarshal(body, &decoded)
	if decoded.OK {
		return 0, nil
	}

	retryAfter := time.Duration(decoded.Parameters.RetryAfter) * time.Second
	if decoded.Description != "" {
		return retryAfter, fmt.Errorf("telegram api error: %s", decoded.Description)
	}
	return retryAfter, fmt.Errorf("telegram api returned status %s", resp.Status)
}
