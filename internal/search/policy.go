package search

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy filters out URLs the fetcher should not touch: binary documents,
// paywalled or login-gated hosts, and anything operators blocklist.
type Policy struct {
	SkipDomains    []string `yaml:"skip_domains"`
	SkipSuffixes   []string `yaml:"skip_suffixes"`
	SkipSubstrings []string `yaml:"skip_substrings"`
}

// DefaultPolicy covers the URL shapes that consistently waste a fetch slot.
func DefaultPolicy() *Policy {
	return &Policy{
		SkipSuffixes: []string{".pdf", ".zip", ".gz", ".tar", ".exe", ".dmg", ".mp4", ".mp3", ".png", ".jpg", ".jpeg", ".gif", ".svg"},
		SkipSubstrings: []string{
			"/login", "/signin", "/account/",
			"facebook.com/sharer", "twitter.com/intent",
		},
	}
}

// LoadPolicy reads a YAML policy file, merging it over the defaults. An empty
// path returns the defaults unchanged.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	var loaded Policy
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}

	p.SkipDomains = append(p.SkipDomains, loaded.SkipDomains...)
	p.SkipSuffixes = append(p.SkipSuffixes, loaded.SkipSuffixes...)
	p.SkipSubstrings = append(p.SkipSubstrings, loaded.SkipSubstrings...)
	return p, nil
}

// ShouldSkip reports whether a URL is excluded by the policy.
func (p *Policy) ShouldSkip(rawURL string) bool {
	lower := strings.ToLower(rawURL)

	for _, suffix := range p.SkipSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	for _, sub := range p.SkipSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	for _, domain := range p.SkipDomains {
		if strings.Contains(lower, strings.ToLower(domain)) {
			return true
		}
	}
	return false
}
