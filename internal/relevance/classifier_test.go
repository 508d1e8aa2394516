package relevance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

func TestClassify(t *testing.T) {
	s := newScorer(nil)

	tests := []struct {
		name string
		text string
		want schema.ConversationType
	}{
		{
			name: "architecture",
			text: "we debated the system design and microservice boundaries",
			want: schema.TypeArchitecture,
		},
		{
			name: "debugging",
			text: "got a panic with a stack trace in the request handler",
			want: schema.TypeDebugging,
		},
		{
			name: "problem solving",
			text: "found a workaround for the broken build",
			want: schema.TypeProblemSolving,
		},
		{
			name: "technical",
			text: "how do I configure the docker deploy for staging",
			want: schema.TypeTechnical,
		},
		{
			name: "code discussion",
			text: "please refactor this function and add a unit test",
			want: schema.TypeCodeDiscussion,
		},
		{
			name: "general fallback",
			text: "what should we have for lunch",
			want: schema.TypeGeneral,
		},
		{
			name: "empty",
			text: "",
			want: schema.TypeGeneral,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.classify(nil, strings.ToLower(tt.text))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	s := newScorer(nil)

	// Architecture outranks code discussion when both vocabularies appear.
	got := s.classify(nil, "a design pattern for the refactored function")
	assert.Equal(t, schema.TypeArchitecture, got)
}

func TestClassify_KeywordMatchesContribute(t *testing.T) {
	s := newScorer(nil)

	// The text alone is neutral; the matched keyword carries the signal.
	got := s.classify([]string{"segfault"}, "it happened again this morning")
	assert.Equal(t, schema.TypeDebugging, got)
}

func TestClassify_BoundsProbe(t *testing.T) {
	s := newScorer(nil)

	// Signal past the probe head is not read.
	text := strings.Repeat("x", typeProbeLen) + " stack trace"
	got := s.classify(nil, text)
	assert.Equal(t, schema.TypeGeneral, got)
}
