package rss

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/aidigest/internal/errs"
)

// DefaultCategory is used for registry entries that omit one.
const DefaultCategory = "default"

//go:embed feeds.yaml
var defaultFeeds []byte

// Source is one registry entry.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	Dialect  string `yaml:"dialect,omitempty"`
	BlogPath string `yaml:"blog_path,omitempty"`
}

// Registry is the YAML config structure
//
//	feeds:
//	  - name: Hugging Face
//	    url: https://huggingface.co/blog/feed.xml
//	    category: ai_tools
type Registry struct {
	Feeds []Source `yaml:"feeds"`
}

// LoadFeeds reads and validates a registry file.
func LoadFeeds(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.ConfigError{Field: "feeds", Msg: err.Error()}
	}
	defer f.Close()

	return ParseFeeds(f)
}

// DefaultRegistry returns the built-in source list.
func DefaultRegistry() *Registry {
	reg, err := ParseFeeds(bytes.NewReader(defaultFeeds))
	if err != nil {
		panic(fmt.Sprintf("rss: built-in registry invalid: %v", err))
	}
	return reg
}

// ParseFeeds decodes and validates a registry document.
func ParseFeeds(r io.Reader) (*Registry, error) {
	var reg Registry
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&reg); err != nil {
		return nil, &errs.ConfigError{Field: "feeds", Msg: fmt.Sprintf("decode registry: %v", err)}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate trims fields, fills default categories and rejects entries a run
// could not process. Names must be unique.
func (r *Registry) Validate() error {
	if len(r.Feeds) == 0 {
		return &errs.ConfigError{Field: "feeds", Msg: "registry is empty"}
	}

	seen := make(map[string]struct{}, len(r.Feeds))
	for i := range r.Feeds {
		src := &r.Feeds[i]
		src.Name = strings.TrimSpace(src.Name)
		src.URL = strings.TrimSpace(src.URL)
		src.Category = strings.TrimSpace(src.Category)

		field := fmt.Sprintf("feeds[%d]", i)
		if src.Name == "" {
			return &errs.ConfigError{Field: field, Msg: "name is required"}
		}
		if _, dup := seen[src.Name]; dup {
			return &errs.ConfigError{Field: field, Msg: fmt.Sprintf("duplicate source name %q", src.Name)}
		}
		seen[src.Name] = struct{}{}

		u, err := url.Parse(src.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &errs.ConfigError{Field: field, Msg: fmt.Sprintf("source %q has invalid url %q", src.Name, src.URL)}
		}
		if src.Category == "" {
			src.Category = DefaultCategory
		}
	}
	return nil
}

// Categories lists categories in first-seen order.
func (r *Registry) Categories() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, src := range r.Feeds {
		if _, ok := seen[src.Category]; ok {
			continue
		}
		seen[src.Category] = struct{}{}
		out = append(out, src.Category)
	}
	return out
}
