package secrets

import (
	"sort"
	"strings"
)

// Scrubber redacts secrets from free-form conversation text.
// Implementations are safe for concurrent use.
type Scrubber interface {
	// Scrub replaces every detected secret in content and reports
	// what was found.
	Scrub(content string) *Result

	// IsEnabled reports whether this scrubber redacts anything at all.
	// Callers skip the per-field Scrub loop when it returns false.
	IsEnabled() bool
}

// Result is the outcome of scrubbing one piece of content.
type Result struct {
	// Scrubbed is the content with every detected secret replaced.
	Scrubbed string

	// Findings locates the detections. The matched text is never
	// carried, only rule IDs and byte offsets.
	Findings []Finding

	// TotalFindings is len(Findings), counted before overlapping
	// matches are merged into a single redaction.
	TotalFindings int
}

// Finding records one detection against the original content.
type Finding struct {
	RuleID   string
	Severity string
	Start    int
	End      int
}

// New builds a rule-based scrubber. A nil config means DefaultConfig.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &scrubber{cfg: cfg}, nil
}

type scrubber struct {
	cfg *Config
}

func (s *scrubber) IsEnabled() bool {
	return s.cfg.Enabled
}

// Scrub collects matches from every rule, merges overlapping spans, and
// splices the redaction text in front to back so offsets stay valid.
func (s *scrubber) Scrub(content string) *Result {
	res := &Result{Scrubbed: content}
	if !s.cfg.Enabled || content == "" {
		return res
	}

	lower := strings.ToLower(content)
	var spans []span
	for i := range s.cfg.rules {
		rule := &s.cfg.rules[i]
		if !rule.mayMatch(lower) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.cfg.allowed(content[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Start:    m[0],
				End:      m[1],
			})
			spans = append(spans, span{start: m[0], end: m[1]})
		}
	}
	res.TotalFindings = len(res.Findings)
	if len(spans) == 0 {
		return res
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := make([]span, 0, len(spans))
	merged = append(merged, spans[0])
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		b.WriteString(s.cfg.Redaction)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	res.Scrubbed = b.String()
	return res
}

// span is a half-open byte range scheduled for redaction.
type span struct {
	start, end int
}

// NoopScrubber passes content through untouched. It stands in wherever
// scrubbing is configured off.
type NoopScrubber struct{}

// Scrub returns the content unchanged with no findings.
func (NoopScrubber) Scrub(content string) *Result {
	return &Result{Scrubbed: content}
}

// IsEnabled returns false.
func (NoopScrubber) IsEnabled() bool {
	return false
}

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = (*NoopScrubber)(nil)
)
