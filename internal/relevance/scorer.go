// Package relevance scores conversations against the request context.
//
// The score is deterministic arithmetic over three signals: keyword
// substring matches weighted by keyword length, a stepped recency
// bonus, and references to files that actually exist in the project.
// Each component and the total clamp to 1.0.
package relevance

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

const (
	// MaxExtractionChars bounds how much conversation text is scored.
	MaxExtractionChars = 5_000

	// KeywordCheckLimit caps how many keywords are tried per
	// conversation, longest first.
	KeywordCheckLimit = 50

	// KeywordMatchesLimit stops the keyword pass after this many hits.
	KeywordMatchesLimit = 10

	// MaxFileRefs caps counted file references.
	MaxFileRefs = 10

	// earlyTermThreshold skips the file pass for conversations whose
	// keyword and recency signals are already negligible.
	earlyTermThreshold = 0.1
)

// recencySteps are evaluated in order against the conversation age.
var recencySteps = []struct {
	within time.Duration
	score  float64
}{
	{24 * time.Hour, 1.0},
	{7 * 24 * time.Hour, 0.8},
	{30 * 24 * time.Hour, 0.5},
	{90 * 24 * time.Hour, 0.2},
}

// recencyFloor is the score for anything older than the last step.
const recencyFloor = 0.1

// Analysis is the scoring breakdown for one conversation.
type Analysis struct {
	Score          float64
	KeywordScore   float64
	RecencyScore   float64
	FileScore      float64
	Matches        []string
	FileReferences []string
	Type           schema.ConversationType
}

// Scorer computes relevance for one request. It carries the request's
// clock and project file set so repeated calls stay consistent.
type Scorer struct {
	weightPerChar float64
	fileRefWeight float64
	files         *FileSet
	rules         []*typeRule
	now           time.Time

	// Detailed forces the file pass even for low-signal conversations.
	Detailed bool
}

// NewScorer creates a scorer. files may be nil when no project file
// list is available; the file pass then scores zero.
func NewScorer(cfg config.RelevanceConfig, files *FileSet, now time.Time) *Scorer {
	weight := cfg.WeightPerChar
	if weight <= 0 {
		weight = 0.02
	}
	fileWeight := cfg.FileRefIncrement
	if fileWeight <= 0 {
		fileWeight = 0.15
	}
	return &Scorer{
		weightPerChar: weight,
		fileRefWeight: fileWeight,
		files:         files,
		rules:         buildTypeRules(),
		now:           now,
	}
}

// Score analyzes one conversation against the keyword list.
func (s *Scorer) Score(ctx context.Context, conv sources.Conversation, keywords []string) Analysis {
	text := extractText(conv)
	lower := strings.ToLower(text)

	a := Analysis{}
	a.KeywordScore, a.Matches = s.keywordPass(lower, keywords)
	a.RecencyScore = s.recencyPass(conv.UpdatedAt)

	if a.KeywordScore+a.RecencyScore >= earlyTermThreshold || s.Detailed {
		a.FileScore, a.FileReferences = s.filePass(text)
	}

	a.Type = s.classify(a.Matches, lower)
	a.Score = clamp1(a.KeywordScore + a.RecencyScore + a.FileScore)
	return a
}

// keywordPass checks keywords longest-first so specific terms are
// counted before the match budget runs out.
func (s *Scorer) keywordPass(lower string, keywords []string) (float64, []string) {
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	if len(sorted) > KeywordCheckLimit {
		sorted = sorted[:KeywordCheckLimit]
	}

	var score float64
	var matches []string
	for _, kw := range sorted {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		if !strings.Contains(lower, k) {
			continue
		}
		score += float64(len(k)) * s.weightPerChar
		matches = append(matches, k)
		if len(matches) >= KeywordMatchesLimit {
			break
		}
	}
	return clamp1(score), matches
}

// recencyPass maps conversation age onto the step table. A missing
// timestamp scores zero; no activity signal is not the same as old.
func (s *Scorer) recencyPass(updated schema.Timestamp) float64 {
	if updated.EpochMillis() == 0 {
		return 0
	}
	age := s.now.Sub(updated.Time())
	if age < 0 {
		// Clock skew between stores; treat as current.
		return recencySteps[0].score
	}
	for _, step := range recencySteps {
		if age <= step.within {
			return step.score
		}
	}
	return recencyFloor
}

// filePass credits references to files that exist in the project.
func (s *Scorer) filePass(text string) (float64, []string) {
	if s.files == nil {
		return 0, nil
	}
	refs := s.files.ResolveReferences(text, MaxFileRefs)
	return clamp1(float64(len(refs)) * s.fileRefWeight), refs
}

// extractText renders the scoreable text: title plus message bodies,
// bounded at MaxExtractionChars.
func extractText(conv sources.Conversation) string {
	var sb strings.Builder
	sb.WriteString(conv.Title)
	for _, msg := range conv.Messages {
		if sb.Len() >= MaxExtractionChars {
			break
		}
		if msg.Content == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(msg.Content)
	}
	text := sb.String()
	if len(text) > MaxExtractionChars {
		text = text[:MaxExtractionChars]
	}
	return text
}

func clamp1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Round2 rounds a score to two decimals for presentation. Internal
// arithmetic keeps full precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
