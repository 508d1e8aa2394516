package secrets

import (
	"fmt"
	"regexp"
	"strings"
)

// Config holds the rule set and redaction behavior for a Scrubber.
// The zero value scrubs nothing; DefaultConfig enables the default
// rules.
type Config struct {
	// Enabled turns detection on.
	Enabled bool

	// Redaction replaces each matched secret. Empty defaults to
	// "[REDACTED]" during Validate.
	Redaction string

	// Rules is the detection rule set.
	Rules []Rule

	// AllowList patterns exempt individual matches. Each pattern is
	// tested against the matched text only, not the whole content.
	AllowList []string

	rules     []compiledRule
	allowList []*regexp.Regexp
}

// Rule pairs a detection pattern with an optional keyword gate.
// Keywords are plain substrings matched case-insensitively; the
// pattern only runs when at least one keyword is present in the
// content, or when no keywords are declared.
type Rule struct {
	ID       string
	Severity string
	Pattern  string
	Keywords []string
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string
}

// mayMatch reports whether the keyword gate passes for the lowercased
// content. The gate keeps regexp scans off the hot path for the common
// case of benign text.
func (r *compiledRule) mayMatch(lower string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DefaultConfig enables scrubbing with the default rule set.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Redaction: "[REDACTED]",
		Rules:     DefaultRules(),
	}
}

// Validate compiles the rule set and allow list. New runs it for
// callers; a Config built by hand must be validated before use.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Redaction == "" {
		c.Redaction = "[REDACTED]"
	}

	c.rules = make([]compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		cr := compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, strings.ToLower(kw))
		}
		c.rules = append(c.rules, cr)
	}

	c.allowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pat := range c.AllowList {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("allow_list %d: %w", i, err)
		}
		c.allowList = append(c.allowList, re)
	}
	return nil
}

// allowed reports whether a matched string is exempted by the allow
// list.
func (c *Config) allowed(match string) bool {
	for _, re := range c.allowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
