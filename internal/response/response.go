// Package response shapes aggregated results into the envelope emitted
// by the tool surface. Responses degrade in steps until they fit the
// size budget: full records, then the lightweight projection, then a
// per-source summary with no records at all.
package response

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/gandalf/internal/aggregate"
	"github.com/fyrsmithlabs/gandalf/internal/relevance"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// MaxResponseBytes is the serialized payload budget. MCP responses ride
// a stdio pipe into a model context window; oversized payloads help
// nobody.
const MaxResponseBytes = 256 * 1024

// maxKeywords caps context_keywords on the way out.
const maxKeywords = 20

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// Envelope is the tool-facing response shape. Conversations holds
// []schema.Record in a full response and []schema.LightweightRecord in
// a degraded one; summary mode drops it entirely.
type Envelope struct {
	Summary          string                   `json:"summary"`
	Status           string                   `json:"status"`
	Partial          bool                     `json:"partial,omitempty"`
	Cached           bool                     `json:"cached,omitempty"`
	SummaryMode      bool                     `json:"summary_mode,omitempty"`
	Conversations    any                      `json:"conversations,omitempty"`
	SourceSummaries  []SourceSummary          `json:"source_summaries,omitempty"`
	AvailableTools   []string                 `json:"available_tools"`
	ToolResults      []aggregate.SourceReport `json:"tool_results,omitempty"`
	ContextKeywords  []string                 `json:"context_keywords,omitempty"`
	TotalFound       int                      `json:"total_found"`
	ProcessingTimeMS int64                    `json:"processing_time_ms"`
}

// SourceSummary is the per-source aggregate used in summary mode.
type SourceSummary struct {
	Tool            schema.SourceTool `json:"tool"`
	Conversations   int               `json:"conversations"`
	LatestTimestamp schema.Timestamp  `json:"latest_timestamp"`
	AverageScore    float64           `json:"average_score"`
}

// Shape renders a result within the size budget and returns both the
// envelope and its serialization.
func Shape(res *aggregate.Result) (*Envelope, []byte, error) {
	env := baseEnvelope(res)
	recs := truncateRecords(res.Records)

	env.Conversations = recs
	data, err := json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal response: %w", err)
	}
	if len(data) <= MaxResponseBytes {
		return env, data, nil
	}

	light := make([]schema.LightweightRecord, len(recs))
	for i, r := range recs {
		light[i] = schema.Lightweight(r)
	}
	env.Conversations = light
	data, err = json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal response: %w", err)
	}
	if len(data) <= MaxResponseBytes {
		return env, data, nil
	}

	env.Conversations = nil
	env.SummaryMode = true
	env.SourceSummaries = summarize(recs)
	data, err = json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal response: %w", err)
	}
	return env, data, nil
}

func baseEnvelope(res *aggregate.Result) *Envelope {
	status := StatusSuccess
	if res.Partial {
		status = StatusPartial
	}
	kws := res.ContextKeywords
	if len(kws) > maxKeywords {
		kws = kws[:maxKeywords]
	}
	return &Envelope{
		Summary:          summaryLine(res),
		Status:           status,
		Partial:          res.Partial,
		Cached:           res.Cached,
		AvailableTools:   res.AvailableTools,
		ToolResults:      res.Sources,
		ContextKeywords:  kws,
		TotalFound:       res.TotalFound,
		ProcessingTimeMS: res.ProcessingMS,
	}
}

func summaryLine(res *aggregate.Result) string {
	if res.TotalFound == 0 {
		return "No relevant conversations found."
	}
	line := fmt.Sprintf("Found %d relevant conversations", res.TotalFound)
	if len(res.Records) < res.TotalFound {
		line += fmt.Sprintf(", showing top %d", len(res.Records))
	}
	if res.Cached {
		line += " (cached)"
	}
	return line + "."
}

// truncateRecords applies the display limits on the way out. Records
// travel at full length everywhere inside the pipeline; only the edge
// truncates.
func truncateRecords(recs []schema.Record) []schema.Record {
	out := make([]schema.Record, len(recs))
	for i, r := range recs {
		r.ID = schema.Truncate(r.ID, schema.IDMax)
		r.Title = schema.Truncate(r.Title, schema.TitleMax)
		r.Snippet = schema.Truncate(r.Snippet, schema.SnippetMax)
		out[i] = r
	}
	return out
}

// summarize folds records into per-source aggregates, in canonical tool
// order.
func summarize(recs []schema.Record) []SourceSummary {
	byTool := make(map[schema.SourceTool]*SourceSummary)
	sums := make(map[schema.SourceTool]float64)
	for _, r := range recs {
		s, ok := byTool[r.SourceTool]
		if !ok {
			s = &SourceSummary{Tool: r.SourceTool}
			byTool[r.SourceTool] = s
		}
		s.Conversations++
		sums[r.SourceTool] += r.RelevanceScore
		if r.UpdatedAt.EpochMillis() > s.LatestTimestamp.EpochMillis() {
			s.LatestTimestamp = r.UpdatedAt
		}
	}
	var out []SourceSummary
	for _, tool := range schema.AllTools() {
		s, ok := byTool[tool]
		if !ok {
			continue
		}
		s.AverageScore = relevance.Round2(sums[tool] / float64(s.Conversations))
		out = append(out, *s)
	}
	return out
}
