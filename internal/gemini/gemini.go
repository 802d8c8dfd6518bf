package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/ratelimit"
)

// ErrBudgetExhausted is returned once the run's Gemini quota is used up.
var ErrBudgetExhausted = errors.New("gemini request budget exhausted")

const maxPromptChars = 6000

// Client writes short summaries for articles whose feed gave none.
type Client struct {
	client *genai.Client
	model  string
	budget *ratelimit.Budget
	log    *slog.Logger
}

func NewClient(ctx context.Context, apiKey, model string, budget *ratelimit.Budget, log *slog.Logger) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{
		client: client,
		model:  model,
		budget: budget,
		log:    logger.Component(log, "gemini"),
	}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Summarize returns a two or three sentence summary of the article.
func (c *Client) Summarize(ctx context.Context, title, body string) (string, error) {
	if strings.TrimSpace(body) == "" && strings.TrimSpace(title) == "" {
		return "", nil
	}
	if !c.budget.Allow(ratelimit.Gemini) {
		return "", ErrBudgetExhausted
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.2)

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(title, body)))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini")
	}

	summary := parseResponse(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]))
	if summary == "" {
		return "", fmt.Errorf("could not parse Gemini response")
	}
	c.log.Debug("summary generated", "title", title, "runes", utf8.RuneCountInString(summary))
	return summary, nil
}

func buildPrompt(title, body string) string {
	return fmt.Sprintf(`Summarize this AI news article for a daily digest.

ARTICLE:
Title: %s
Content: %s

REQUIREMENTS:
Two or three plain sentences, at most 400 characters.
No markdown, no introductory phrases such as "This article".
Keep product and company names unchanged.

Answer strictly in this format:
SUMMARY: <summary>
`, title, sanitizeContent(body))
}

// sanitizeContent collapses whitespace and trims overly long input on a
// sentence boundary where possible.
func sanitizeContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= maxPromptChars {
		return content
	}
	trimmed := string([]rune(content)[:maxPromptChars])
	if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}

var (
	summaryLabel     = regexp.MustCompile(`(?i)^\**\s*summary\s*\**\s*:\s*`)
	inlineDisclaimer = regexp.MustCompile(`(?i)[(\[]\s*note\s*:[^)\]]*[)\]]\s*`)
)

// parseResponse extracts the text after the SUMMARY label, including
// continuation lines. Without a label the whole response is used.
func parseResponse(response string) string {
	var parts []string
	labelled := false
	for _, raw := range strings.Split(stripDisclaimers(response), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || isNoteLine(line) {
			continue
		}
		if summaryLabel.MatchString(line) {
			labelled = true
			parts = parts[:0]
			line = summaryLabel.ReplaceAllString(line, "")
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	if !labelled && len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ")
}

// stripDisclaimers drops "(Note: ...)" and "[Note: ...]" asides models
// like to append.
func stripDisclaimers(s string) string {
	return inlineDisclaimer.ReplaceAllString(s, "")
}

func isNoteLine(line string) bool {
	return strings.HasPrefix(strings.ToLower(line), "note:")
}
