// Package content decides whether an arbitrary decoded JSON value looks
// like a real conversation. Editor state databases share one key/value
// table between chat sessions, layout state, keybindings, and telemetry;
// this heuristic keeps the noise out of the extractors.
//
// The check is intentionally loose: a missed conversation costs one
// record, a false positive pollutes rankings for every request.
package content

import (
	"encoding/json"
	"strings"
)

// Config tunes the heuristic. Zero values take the documented defaults.
type Config struct {
	// MaxAnalysisLen bounds how much of the serialized candidate is
	// inspected for indicator counting.
	MaxAnalysisLen int

	// RatioThreshold rejects candidates whose false-positive indicator
	// count exceeds strong-count times this ratio.
	RatioThreshold float64

	// MinContentLen is the minimum string length that makes a content
	// key "non-trivial" in the structural pass.
	MinContentLen int

	// MaxListItemsToCheck bounds the structural scan of list candidates.
	MaxListItemsToCheck int
}

func (c *Config) applyDefaults() {
	if c.MaxAnalysisLen <= 0 {
		c.MaxAnalysisLen = 10_000
	}
	if c.RatioThreshold <= 0 {
		c.RatioThreshold = 2.0
	}
	if c.MinContentLen <= 0 {
		c.MinContentLen = 1
	}
	if c.MaxListItemsToCheck <= 0 {
		c.MaxListItemsToCheck = 10
	}
}

// strongIndicators suggest conversational payloads.
var strongIndicators = []string{
	"messages", "content", "text", "prompt", "response",
	"user", "assistant", "entries", "conversation", "chat",
	"request", "answer",
}

// falsePositiveIndicators suggest editor state that merely lives in the
// same table.
var falsePositiveIndicators = []string{
	"workbench", "panel", "view", "storage", "settings",
	"keybinding", "layout", "theme", "editor", "terminal",
	"extension", "telemetry",
}

// contentKeys are the dict keys that must hold actual message material.
var contentKeys = []string{
	"content", "text", "messages", "entries", "conversation", "chat",
}

// messageIndicators mark a list item as message-shaped in the
// structural pass.
var messageIndicators = []string{
	"role", "user", "assistant", "message", "prompt", "response", "type",
}

// Verdict is the classification outcome with its evidence counts.
type Verdict struct {
	OK            bool
	Strong        int
	FalsePositive int
}

// Validator applies the conversation-shape heuristic.
type Validator struct {
	cfg Config
}

// NewValidator creates a validator. The zero Config takes defaults.
func NewValidator(cfg Config) *Validator {
	cfg.applyDefaults()
	return &Validator{cfg: cfg}
}

// IsConversation classifies a decoded JSON value (map, slice, or
// anything json.Marshal accepts). Non-container values are rejected.
func (v *Validator) IsConversation(candidate any) Verdict {
	switch candidate.(type) {
	case map[string]any, []any:
	default:
		return Verdict{}
	}

	text := v.serialize(candidate)
	verdict := Verdict{
		Strong:        countHits(text, strongIndicators),
		FalsePositive: countHits(text, falsePositiveIndicators),
	}

	if verdict.Strong == 0 {
		return verdict
	}
	if float64(verdict.FalsePositive) > float64(verdict.Strong)*v.cfg.RatioThreshold {
		return verdict
	}

	switch c := candidate.(type) {
	case map[string]any:
		verdict.OK = v.dictHasContent(c)
	case []any:
		verdict.OK = v.listHasMessages(c)
	}
	return verdict
}

// serialize renders up to MaxAnalysisLen lowercased chars of the
// candidate for indicator counting.
func (v *Validator) serialize(candidate any) string {
	data, err := json.Marshal(candidate)
	if err != nil {
		return ""
	}
	if len(data) > v.cfg.MaxAnalysisLen {
		data = data[:v.cfg.MaxAnalysisLen]
	}
	return strings.ToLower(string(data))
}

func countHits(text string, indicators []string) int {
	total := 0
	for _, ind := range indicators {
		total += strings.Count(text, ind)
	}
	return total
}

// dictHasContent requires at least one content key resolving to a
// non-trivial value.
func (v *Validator) dictHasContent(m map[string]any) bool {
	for key, value := range m {
		if !isContentKey(key) {
			continue
		}
		if v.nonTrivial(value) {
			return true
		}
	}
	return false
}

// listHasMessages requires one message-shaped dict among the first
// MaxListItemsToCheck items: a content key plus a message indicator.
func (v *Validator) listHasMessages(list []any) bool {
	limit := v.cfg.MaxListItemsToCheck
	if len(list) < limit {
		limit = len(list)
	}
	for _, item := range list[:limit] {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		hasContent := false
		hasIndicator := false
		for key, value := range m {
			if isContentKey(key) && v.nonTrivial(value) {
				hasContent = true
			}
			if isMessageIndicator(key) {
				hasIndicator = true
			}
		}
		if hasContent && hasIndicator {
			return true
		}
	}
	return false
}

func (v *Validator) nonTrivial(value any) bool {
	switch t := value.(type) {
	case string:
		return len(t) >= v.cfg.MinContentLen
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

func isContentKey(key string) bool {
	key = strings.ToLower(key)
	for _, c := range contentKeys {
		if key == c {
			return true
		}
	}
	return false
}

func isMessageIndicator(key string) bool {
	key = strings.ToLower(key)
	for _, ind := range messageIndicators {
		if strings.Contains(key, ind) {
			return true
		}
	}
	return false
}
