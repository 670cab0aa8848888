// Package notify delivers fire-and-forget status messages to a chat channel.
// Delivery failures are logged and swallowed, never propagated to callers.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram posts messages to a Telegram chat. With empty credentials it
// degrades to log-only. A token-bucket limiter drops excess messages instead
// of blocking the pipeline behind the chat API.
type Telegram struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewTelegram builds a notifier. perMinute bounds the send rate; zero or
// negative disables limiting.
func NewTelegram(token, chatID string, perMinute float64, logger *zap.Logger) *Telegram {
	var limiter *rate.Limiter
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(perMinute/60.0), int(perMinute))
	}
	return &Telegram{
		apiBase: defaultAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: limiter,
		logger:  logger,
	}
}

// Notify sends message, tagging it with the account when set. It never
// returns an error: misconfiguration, rate limiting, transport failures, and
// non-2xx responses are all logged and discarded.
func (t *Telegram) Notify(ctx context.Context, message, accountTag string) {
	if accountTag != "" {
		message = fmt.Sprintf("[%s] %s", accountTag, message)
	}
	if t.token == "" || t.chatID == "" {
		t.logger.Warn("notification channel not configured", zap.String("message", message))
		return
	}
	if t.limiter != nil && !t.limiter.Allow() {
		t.logger.Warn("notification dropped by rate limit", zap.String("message", message))
		return
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {message},
		"parse_mode": {"HTML"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		t.logger.Error("failed to build notification request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("failed to send notification", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.logger.Error("notification rejected", zap.Int("status", resp.StatusCode))
	}
}
