// Package rewrite calls the generative text service that rewords captions.
// The collaborator is strictly best-effort: any error, timeout, or malformed
// response yields the original text so a degraded service never fails a
// pipeline cycle.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const promptTemplate = `Enhance this caption while keeping the original meaning:
1. Slightly reword the caption
2. Add/shuffle emojis if appropriate
3. Replace 1-3 hashtags with similar ones
4. Keep similar length

Original caption: %s
Original hashtags: %s

Return in this format:
[rewritten caption]

[new hashtags]`

// Client talks to a generateContent-style JSON API.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// New builds a rewrite client. An empty apiKey disables the collaborator:
// Rewrite then always returns the original text.
func New(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Rewrite reworks original into a fresh caption. The returned text is the
// original whenever the service is unconfigured, unreachable, slow, or
// returns an unexpected shape.
func (c *Client) Rewrite(ctx context.Context, accountName, original string) string {
	if c.apiKey == "" || c.endpoint == "" {
		return original
	}
	log := c.logger.With(zap.String("account", accountName))

	parts := strings.SplitN(original, "\n\n", 2)
	captionText := parts[0]
	hashtags := ""
	if len(parts) > 1 {
		hashtags = parts[1]
	}

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{
			Text: fmt.Sprintf(promptTemplate, captionText, hashtags),
		}}}},
		GenerationConfig: generationConfig{Temperature: 0.7, TopP: 0.9, MaxOutputTokens: 2000},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		log.Error("rewrite request encode failed", zap.Error(err))
		return original
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		log.Error("rewrite request build failed", zap.Error(err))
		return original
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn("rewrite service unreachable, keeping original caption", zap.Error(err))
		return original
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn("rewrite service error, keeping original caption", zap.Int("status", resp.StatusCode))
		return original
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		log.Warn("rewrite response decode failed, keeping original caption", zap.Error(err))
		return original
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		log.Warn("rewrite response has no candidates, keeping original caption")
		return original
	}

	text := decoded.Candidates[0].Content.Parts[0].Text
	rewritten := strings.SplitN(strings.TrimSpace(text), "\n\n", 2)
	if len(rewritten) < 2 {
		log.Warn("rewrite response in unexpected format, keeping original caption")
		return original
	}

	log.Info("caption rewritten")
	return strings.TrimSpace(rewritten[0]) + "\n\n" + strings.TrimSpace(rewritten[1])
}
