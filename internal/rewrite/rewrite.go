// Package rewrite turns raw memo text into a clean, actionable sentence.
// The local pass is deterministic and always available; the cloud pass
// calls a chat-completions endpoint and is strictly optional, so every
// failure is recoverable by falling back to the raw text.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"echotask/internal/config"
	"echotask/internal/logging"
)

// ErrNoAPIKey is returned when a cloud rewrite is requested without a key.
var ErrNoAPIKey = errors.New("cloud rewrite requires an api key")

// sentenceEndings are the terminal marks Local accepts as-is.
var sentenceEndings = []string{".", "!", "?", "…"}

// Local normalizes memo text without any network dependency: collapse
// whitespace runs, capitalize the first letter, and close the sentence with
// a period when no terminal mark is present. Blank input stays blank.
func Local(raw string) string {
	cleaned := strings.Join(strings.Fields(raw), " ")
	if cleaned == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(cleaned)
	cleaned = string(unicode.ToUpper(r)) + cleaned[size:]
	for _, ending := range sentenceEndings {
		if strings.HasSuffix(cleaned, ending) {
			return cleaned
		}
	}
	return cleaned + "."
}

// Client performs cloud rewrites against a chat-completions API.
type Client struct {
	cfg    config.Cloud
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a cloud rewrite client from the cloud config section.
func NewClient(cfg config.Cloud, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logging.WithComponent(logger, "rewrite"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Rewrite sends the raw text to the configured model and returns the
// rewritten sentence. Errors here never corrupt a task: callers keep the
// raw text and fall back to Local.
func (c *Client) Rewrite(ctx context.Context, raw string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", ErrNoAPIKey
	}

	system := fmt.Sprintf(
		"Rewrite memos into clear, actionable sentences. Language: %s. Tone: %s. Return only the sentence.",
		c.cfg.Language, c.cfg.Tone)
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: raw},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode rewrite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build rewrite request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("rewrite request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("cloud rewrite failed", "status", resp.StatusCode)
		return "", fmt.Errorf("rewrite endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode rewrite response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("rewrite response carried no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
