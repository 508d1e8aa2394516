package relevance

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// typeProbeLen bounds how much conversation text the classifier reads.
const typeProbeLen = 1_000

// typeRule pairs a compiled regex with the conversation type it
// detects. Rules are evaluated in order; the first match wins.
type typeRule struct {
	regex *regexp.Regexp
	typ   schema.ConversationType
}

// buildTypeRules returns ordered regex rules for type classification.
// More specific patterns are listed first to avoid shadowing.
// All patterns use (?i) for case-insensitive matching.
func buildTypeRules() []*typeRule {
	return []*typeRule{
		// --- Architecture (highest priority -- overlaps with code discussion) ---
		{
			regex: regexp.MustCompile(`(?i)\b(?:architect|system\s+design|design\s+(?:decision|pattern|choice)|microservice|monolith|scalab|api\s+design|schema\s+design|module\s+(?:boundary|structure)|separation\s+of\s+concerns)`),
			typ:   schema.TypeArchitecture,
		},

		// --- Debugging ---
		{
			regex: regexp.MustCompile(`(?i)\b(?:debug|stack\s*trace|traceback|exception|panic|segfault|deadlock|race\s+condition|breakpoint|root\s+cause|error\s+message|nil\s+pointer|crash)`),
			typ:   schema.TypeDebugging,
		},

		// --- Problem solving ---
		{
			regex: regexp.MustCompile(`(?i)\b(?:troubleshoot|workaround|resolv(?:e|ed|ing)|broken|failing|fix(?:es|ed|ing)?\b|issues?\b|problems?\b|regression|not\s+working)`),
			typ:   schema.TypeProblemSolving,
		},

		// --- Technical setup ---
		{
			regex: regexp.MustCompile(`(?i)\b(?:configur|deploy|install|setup|dependenc|upgrad|migrat|performance|optimi[sz]|docker|kubernetes|pipeline|environment\s+var)`),
			typ:   schema.TypeTechnical,
		},

		// --- Code discussion ---
		{
			regex: regexp.MustCompile(`(?i)\b(?:functions?\b|methods?\b|class(?:es)?\b|refactor|implement|code\s+review|unit\s+test|tests?\b|snippet|interface|struct)`),
			typ:   schema.TypeCodeDiscussion,
		},
	}
}

// classify matches keyword hits plus a head of the conversation text
// against the ordered rules. Unmatched conversations are general.
func (s *Scorer) classify(matches []string, lower string) schema.ConversationType {
	head := lower
	if len(head) > typeProbeLen {
		head = head[:typeProbeLen]
	}
	probe := head
	if len(matches) > 0 {
		probe = strings.Join(matches, " ") + " " + head
	}

	for _, rule := range s.rules {
		if rule.regex.MatchString(probe) {
			return rule.typ
		}
	}
	return schema.TypeGeneral
}
