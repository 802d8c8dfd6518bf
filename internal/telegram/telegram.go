// Package telegram posts the run digest to a Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/news"
	"github.com/deusflow/aidigest/internal/retry"
)

// DefaultBaseURL is the Bot API root.
const DefaultBaseURL = "https://api.telegram.org"

// messageLimit stays under Telegram's 4096 character cap.
const messageLimit = 4000

type Client struct {
	token   string
	chatID  string
	baseURL string
	http    *http.Client
	retry   retry.RetryConfig
	log     *slog.Logger
}

type Option func(*Client)

// WithBaseURL points the client at another Bot API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithRetry(cfg retry.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

func NewClient(token, chatID string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		token:   token,
		chatID:  chatID,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:     logger.Component(log, "telegram"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NotifyDigest sends the newest articles of a run as one message. Nothing is
// sent for an empty run.
func (c *Client) NotifyDigest(ctx context.Context, articles []news.Article, max int) error {
	if len(articles) == 0 || max <= 0 {
		return nil
	}
	msg := FormatDigest(articles, max)
	for n := max - 1; len(msg) > messageLimit && n > 0; n-- {
		msg = FormatDigest(articles, n)
	}
	return c.SendMessage(ctx, msg)
}

// SendMessage sends an HTML message, retrying transient failures.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	attempt := 0
	err := retry.WithRetry(ctx, c.retry, func() error {
		attempt++
		err := c.sendOnce(ctx, text)
		if err != nil {
			c.log.Warn("send failed", "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	c.log.Info("message sent", "attempt", attempt, "length", len(text))
	return nil
}

func (c *Client) sendOnce(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode message: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}

// FormatDigest renders up to max articles, in the given order, as Telegram
// HTML.
func FormatDigest(articles []news.Article, max int) string {
	var b strings.Builder
	b.WriteString("🤖 <b>AI Daily Digest</b>\n")
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n\n")

	for i, a := range articles {
		if i >= max {
			break
		}
		fmt.Fprintf(&b, "📰 <b>%d.</b> <a href=\"%s\">%s</a>\n", i+1, html.EscapeString(a.URL), html.EscapeString(a.Title))
		fmt.Fprintf(&b, "<i>%s · %s</i>\n", html.EscapeString(a.Source), html.EscapeString(news.CategoryTitle(a.Category)))
		if a.Summary != "" {
			fmt.Fprintf(&b, "%s\n", html.EscapeString(news.Excerpt(a.Summary, 300)))
		}
		b.WriteString("\n")
	}

	if len(articles) > max {
		fmt.Fprintf(&b, "…and %d more in the feed\n", len(articles)-max)
	}
	return b.String()
}
