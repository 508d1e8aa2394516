package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/gandalf/internal/sanitize"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// ErrValidation marks request parameter failures. They are reported to
// the caller before any source is opened.
var ErrValidation = errors.New("validation error")

const (
	defaultRecallLookback = 7
	defaultSearchLookback = 30
	maxLookbackDays       = 60

	defaultLimit = 20
	maxLimit     = 100

	// defaultMinScore is the published tool default. It predates score
	// normalization and lands in the legacy scale below.
	defaultMinScore = 2.0

	// LegacyScoreScale maps unnormalized legacy thresholds onto the
	// [0,1] score domain: a published min_score of 2.0 means 0.2.
	LegacyScoreScale = 0.1

	// earlyTerminationMultiplier bounds per-source collection at
	// limit × multiplier kept records.
	earlyTerminationMultiplier = 3

	// maxTextLen bounds the free-text parameters blended into keyword
	// building.
	maxTextLen = 10_000

	// List parameter caps. Both enums are far smaller than the item cap.
	maxListItems   = 16
	maxListItemLen = 64
)

// Operation names double as cache namespaces.
const (
	opRecall = "recall"
	opSearch = "search"
)

// RecallRequest carries the recall_conversations parameters. Pointer
// fields distinguish "absent, use the default" from an explicit zero.
type RecallRequest struct {
	FastMode          *bool    `json:"fast_mode,omitempty"`
	DaysLookback      *int     `json:"days_lookback,omitempty"`
	Limit             *int     `json:"limit,omitempty"`
	MinScore          *float64 `json:"min_score,omitempty"`
	ConversationTypes []string `json:"conversation_types,omitempty"`
	Tools             []string `json:"tools,omitempty"`
	UserPrompt        string   `json:"user_prompt,omitempty"`
	SearchQuery       string   `json:"search_query,omitempty"`
	ProjectRoot       string   `json:"project_root,omitempty"`
}

// SearchRequest adds the mandatory query on top of the recall surface.
type SearchRequest struct {
	RecallRequest
	Query          string `json:"query"`
	IncludeContent bool   `json:"include_content,omitempty"`
}

// params is the resolved, validated request the pipeline runs on.
type params struct {
	op             string
	fastMode       bool
	daysLookback   int
	limit          int
	minScore       float64
	types          map[schema.ConversationType]struct{}
	tools          []schema.SourceTool
	unknownTools   []string
	userPrompt     string
	searchQuery    string
	projectRoot    string
	query          string
	includeContent bool
}

// resolve validates and defaults a recall request. Lookback and limit
// clamp to their documented ranges; a zero or negative lookback is the
// one explicit value that rejects instead of clamping.
func (r RecallRequest) resolve(op string, defaultLookback int) (params, error) {
	p := params{
		op:           op,
		fastMode:     true,
		daysLookback: defaultLookback,
		limit:        defaultLimit,
		minScore:     defaultMinScore,
		projectRoot:  strings.TrimSpace(r.ProjectRoot),
	}
	var err error
	if p.userPrompt, err = textParam(r.UserPrompt, "user_prompt"); err != nil {
		return params{}, err
	}
	if p.searchQuery, err = textParam(r.SearchQuery, "search_query"); err != nil {
		return params{}, err
	}
	if r.FastMode != nil {
		p.fastMode = *r.FastMode
	}
	if r.DaysLookback != nil {
		// The documented range clamps at the top but rejects at the
		// bottom: a non-positive lookback is a caller bug.
		v := *r.DaysLookback
		if v > maxLookbackDays {
			v = maxLookbackDays
		}
		if _, err := sanitize.ValidateInteger(v, "days_lookback", 1, maxLookbackDays); err != nil {
			return params{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		p.daysLookback = v
	}
	if r.Limit != nil {
		p.limit = *r.Limit
	}
	p.limit = sanitize.ClampInt(p.limit, 1, maxLimit)
	if r.MinScore != nil {
		p.minScore = *r.MinScore
	}
	if p.minScore < 0 {
		p.minScore = 0
	}
	if p.minScore > 1 {
		p.minScore *= LegacyScoreScale
	}

	types, err := listParam(r.ConversationTypes, "conversation_types")
	if err != nil {
		return params{}, err
	}
	if len(types) > 0 {
		p.types = make(map[schema.ConversationType]struct{}, len(types))
		for _, raw := range types {
			ct, err := schema.ParseConversationType(raw)
			if err != nil {
				return params{}, fmt.Errorf("%w: conversation_types: %v", ErrValidation, err)
			}
			p.types[ct] = struct{}{}
		}
	}

	// Unknown tool names are ignored with a warning rather than
	// rejected; a client listing a tool this build does not ship
	// should still get results from the rest.
	requested, err := listParam(r.Tools, "tools")
	if err != nil {
		return params{}, err
	}
	if len(requested) > 0 {
		for _, raw := range requested {
			tool, err := schema.ParseSourceTool(raw)
			if err != nil {
				p.unknownTools = append(p.unknownTools, raw)
				continue
			}
			p.tools = append(p.tools, tool)
		}
		if len(p.tools) == 0 && len(p.unknownTools) > 0 {
			return params{}, fmt.Errorf("%w: tools: no known tool in %v", ErrValidation, p.unknownTools)
		}
	}
	if len(p.tools) == 0 {
		p.tools = schema.AllTools()
	}
	return p, nil
}

// resolveSearch validates the search surface: everything recall takes,
// plus the mandatory query.
func (r SearchRequest) resolveSearch() (params, error) {
	p, err := r.RecallRequest.resolve(opSearch, defaultSearchLookback)
	if err != nil {
		return params{}, err
	}
	query, err := sanitize.ValidateString(r.Query, "query", maxTextLen, true)
	if err != nil {
		return params{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	p.query = query
	p.includeContent = r.IncludeContent
	return p, nil
}

// textParam bounds one free-text parameter.
func textParam(s, field string) (string, error) {
	v, err := sanitize.ValidateString(s, field, maxTextLen, false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return v, nil
}

// listParam bounds one list parameter, dropping blank entries.
func listParam(vals []string, field string) ([]string, error) {
	out, err := sanitize.ValidateArray(vals, field, maxListItems, maxListItemLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return out, nil
}

// searchText joins the query-ish inputs handed to the keyword builder.
func (p params) searchText() string {
	if p.query == "" {
		return p.searchQuery
	}
	if p.searchQuery == "" {
		return p.query
	}
	return p.query + " " + p.searchQuery
}

// typeAllowed reports whether a scored type passes the request filter.
func (p params) typeAllowed(ct schema.ConversationType) bool {
	if len(p.types) == 0 {
		return true
	}
	_, ok := p.types[ct]
	return ok
}
