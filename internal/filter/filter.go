// Package filter decides whether an entry is on topic.
package filter

import "strings"

// AIKeywords is the keyword set used for AI-only runs.
var AIKeywords = []string{
	"ai",
	"artificial intelligence",
	"machine learning",
	"deep learning",
	"neural network",
	"gpt",
	"llm",
	"large language model",
	"chatgpt",
	"generative ai",
	"openai",
	"anthropic",
	"claude",
	"gemini",
	"transformer",
	"foundation model",
	"diffusion model",
	"stable diffusion",
	"midjourney",
	"dall-e",
	"embedding",
	"fine-tuning",
	"prompt engineering",
}

// Keywords is a case-insensitive substring matcher. The zero value
// accepts everything.
type Keywords struct {
	words []string
}

func New(words []string) Keywords {
	var k Keywords
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			k.words = append(k.words, w)
		}
	}
	return k
}

// Empty reports whether every entry is accepted.
func (k Keywords) Empty() bool { return len(k.words) == 0 }

// Accept reports whether any keyword occurs in the given texts. Matching
// is by plain substring, so "ai" also matches "said".
func (k Keywords) Accept(texts ...string) bool {
	if k.Empty() {
		return true
	}
	combined := strings.ToLower(strings.Join(texts, " "))
	for _, w := range k.words {
		if strings.Contains(combined, w) {
			return true
		}
	}
	return false
}
