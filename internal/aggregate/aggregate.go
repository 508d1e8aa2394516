// Package aggregate runs the conversation retrieval pipeline shared by
// the recall and search tools: resolve the project, derive context
// keywords, discover stores, extract from every requested source in
// parallel, score and normalize what comes back, and merge the
// survivors into one ranked set.
//
// Per-source failures never fail a request. Each source lands in the
// result with its own status; the worst a broken store can do is make
// the result partial.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/convcache"
	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/keywords"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/normalize"
	"github.com/fyrsmithlabs/gandalf/internal/project"
	"github.com/fyrsmithlabs/gandalf/internal/relevance"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// Per-source statuses surfaced in tool results.
const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
	StatusTimeout     = "timeout"
	StatusError       = "error"
)

// SourceReport is one tool's outcome within an aggregated result.
type SourceReport struct {
	Tool         schema.SourceTool `json:"tool"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	Stores       int               `json:"stores"`
	Scanned      int               `json:"scanned"`
	Kept         int               `json:"kept"`
	DecodeErrors int               `json:"decode_errors,omitempty"`
}

// Result is the ranked, merged outcome of one recall or search run.
// Records is capped at the request limit; TotalFound counts survivors
// before the cap.
type Result struct {
	Operation       string
	Records         []schema.Record
	TotalFound      int
	ContextKeywords []string
	ProjectRoot     string
	AvailableTools  []string
	Sources         []SourceReport
	Partial         bool
	Cached          bool
	ProcessingMS    int64
}

// Options wires an Aggregator's dependencies. Cache may be nil to run
// without one.
type Options struct {
	Config    *config.Config
	Locator   *discovery.Locator
	Providers []sources.Provider
	Keywords  *keywords.Builder
	Cache     *convcache.Cache
	Resolver  *project.Resolver
}

// Aggregator executes recall and search requests.
type Aggregator struct {
	cfg       *config.Config
	locator   *discovery.Locator
	providers map[schema.SourceTool]sources.Provider
	keywords  *keywords.Builder
	cache     *convcache.Cache
	resolver  *project.Resolver
	log       *logging.Logger
	now       func() time.Time
}

// New creates an aggregator.
func New(opts Options, log *logging.Logger) *Aggregator {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = project.NewResolver(log)
	}
	kb := opts.Keywords
	if kb == nil {
		kb = keywords.NewBuilder(cfg.Keywords, log)
	}
	providers := make(map[schema.SourceTool]sources.Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		providers[p.Tool()] = p
	}
	return &Aggregator{
		cfg:       cfg,
		locator:   opts.Locator,
		providers: providers,
		keywords:  kb,
		cache:     opts.Cache,
		resolver:  resolver,
		log:       log.Named("aggregate"),
		now:       time.Now,
	}
}

// Recall runs the recall_conversations pipeline.
func (a *Aggregator) Recall(ctx context.Context, req RecallRequest) (*Result, error) {
	p, err := req.resolve(opRecall, defaultRecallLookback)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, p)
}

// Search runs the search_conversations pipeline.
func (a *Aggregator) Search(ctx context.Context, req SearchRequest) (*Result, error) {
	p, err := req.resolveSearch()
	if err != nil {
		return nil, err
	}
	return a.run(ctx, p)
}

// runState is the per-request context shared by the source workers.
type runState struct {
	p      params
	root   string
	kws    []string
	scorer *relevance.Scorer
	since  time.Time
}

// outcome is one source worker's return.
type outcome struct {
	report  SourceReport
	records []schema.Record
	partial bool
}

func (a *Aggregator) run(ctx context.Context, p params) (*Result, error) {
	start := a.now()

	for _, name := range p.unknownTools {
		a.log.Warn(ctx, "ignoring unknown tool", zap.String("tool", name))
	}

	root, err := a.resolver.Resolve(ctx, p.projectRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: project_root: %v", ErrValidation, err)
	}
	name := project.Name(root)

	kws := keywords.Cap(a.keywords.Build(ctx, root, p.userPrompt, p.searchText()), a.keywords.Max())

	stores := a.locator.DiscoverAll(ctx)
	var available []string
	for _, tool := range schema.AllTools() {
		if len(stores[tool]) > 0 {
			available = append(available, string(tool))
		}
	}

	res := &Result{
		Operation:       p.op,
		ContextKeywords: kws,
		ProjectRoot:     root,
		AvailableTools:  available,
	}

	hash := convcache.ContextHash(root, kws)
	if a.cache != nil {
		if entry, ok := a.cache.Load(ctx, p.op, hash); ok && a.fromCache(res, entry, p, start) {
			res.ProcessingMS = a.now().Sub(start).Milliseconds()
			a.log.Info(ctx, "served from cache",
				zap.String("operation", p.op),
				zap.String("project", name),
				zap.Int("records", len(res.Records)))
			return res, nil
		}
	}

	// File references are scored against the project tree; a failed
	// listing just means no file pass.
	files, err := project.ListFiles(root, project.DefaultMaxFiles)
	if err != nil {
		a.log.Debug(ctx, "project file listing failed", zap.Error(err))
	}

	scorer := relevance.NewScorer(a.cfg.Relevance, relevance.NewFileSet(files), start)
	scorer.Detailed = !p.fastMode

	st := runState{
		p:      p,
		root:   root,
		kws:    kws,
		scorer: scorer,
		since:  start.AddDate(0, 0, -p.daysLookback),
	}

	outcomes := make([]outcome, len(p.tools))
	var eg errgroup.Group
	for i, tool := range p.tools {
		eg.Go(func() error {
			outcomes[i] = a.collectSource(ctx, st, tool, stores[tool])
			return nil
		})
	}
	// Workers contain their own failures.
	_ = eg.Wait()

	var all []schema.Record
	for _, o := range outcomes {
		res.Sources = append(res.Sources, o.report)
		all = append(all, o.records...)
		if o.partial {
			res.Partial = true
		}
	}
	sortRecords(all)
	res.TotalFound = len(all)

	// A partial set must not poison the cache: the next identical
	// request should retry the broken source, not inherit its absence.
	if a.cache != nil && !res.Partial && ctx.Err() == nil {
		err := a.cache.Store(ctx, p.op, hash, convcache.Entry{
			Project:          name,
			Records:          all,
			TotalFound:       len(all),
			ProcessingTimeMS: a.now().Sub(start).Milliseconds(),
		})
		if err != nil {
			a.log.Warn(ctx, "cache store failed", zap.Error(err))
		}
	}

	if len(all) > p.limit {
		all = all[:p.limit]
	}
	res.Records = all
	res.ProcessingMS = a.now().Sub(start).Milliseconds()

	a.log.Info(ctx, "aggregation complete",
		zap.String("operation", p.op),
		zap.String("project", name),
		zap.String("root", root),
		zap.Int("total_found", res.TotalFound),
		zap.Int("returned", len(res.Records)),
		zap.Bool("partial", res.Partial),
		zap.Int64("elapsed_ms", res.ProcessingMS))
	return res, nil
}

// fromCache re-checks a cached record set against this request's
// filters. The context hash covers root and keywords but not min_score,
// lookback, types, or limit, so those re-apply here. The hit serves
// only when the filtered set still fills the limit; a narrower cached
// set cannot prove the fresh path would find nothing more.
func (a *Aggregator) fromCache(res *Result, entry *convcache.Entry, p params, start time.Time) bool {
	sinceMillis := start.AddDate(0, 0, -p.daysLookback).UnixMilli()

	kept := make([]schema.Record, 0, len(entry.Records))
	for _, rec := range entry.Records {
		if rec.RelevanceScore < p.minScore {
			continue
		}
		// Undated records survived extraction; keep them here too.
		if ms := rec.UpdatedAt.EpochMillis(); ms != 0 && ms < sinceMillis {
			continue
		}
		if !p.typeAllowed(rec.Type) {
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) < p.limit {
		return false
	}

	sortRecords(kept)
	res.TotalFound = len(kept)
	if len(kept) > p.limit {
		kept = kept[:p.limit]
	}
	res.Records = kept
	res.Cached = true
	return true
}

// collectSource extracts, scores, and normalizes one tool under the
// per-source deadline. Collection stops early once limit × multiplier
// records are kept; ranking happens after the merge.
func (a *Aggregator) collectSource(ctx context.Context, st runState, tool schema.SourceTool, stores []discovery.Store) outcome {
	out := outcome{report: SourceReport{Tool: tool, Status: StatusOK}}

	provider, ok := a.providers[tool]
	if !ok {
		out.report.Status = StatusUnavailable
		out.report.Error = "no provider registered"
		return out
	}
	if len(stores) == 0 {
		out.report.Status = StatusUnavailable
		out.report.Error = "no stores discovered"
		return out
	}
	out.report.Stores = len(stores)

	opCtx, cancel := context.WithTimeout(ctx, a.cfg.Pool.OperationTimeout.Duration())
	defer cancel()

	res, err := provider.Extract(opCtx, sources.ExtractRequest{
		Stores:          stores,
		ProjectRoot:     st.root,
		Since:           st.since,
		IncludeMessages: st.p.includeContent,
	})
	if err != nil {
		out.report.Status = statusFromErr(err)
		out.report.Error = err.Error()
		out.partial = true
		return out
	}

	out.report.Scanned = res.Stats.Scanned
	out.report.DecodeErrors = res.Stats.DecodeErrors

	// Store-level failures mean this source's coverage is incomplete.
	// Decode errors alone do not: the bad records were dropped and
	// counted, the rest of the store was read.
	if cause := firstFailure(res.Errors); cause != nil {
		out.partial = true
		out.report.Error = cause.Error()
		if len(res.Conversations) == 0 {
			out.report.Status = statusFromErr(cause)
			return out
		}
	}

	budget := st.p.limit * earlyTerminationMultiplier
	for _, conv := range res.Conversations {
		if ctx.Err() != nil {
			out.partial = true
			break
		}
		if conv.Count() < 1 {
			continue
		}
		analysis := st.scorer.Score(ctx, conv, st.kws)
		if analysis.Score < st.p.minScore {
			continue
		}
		if !st.p.typeAllowed(analysis.Type) {
			continue
		}
		out.records = append(out.records, normalize.Normalize(conv, analysis))
		if len(out.records) >= budget {
			break
		}
	}
	out.report.Kept = len(out.records)
	return out
}

// firstFailure returns the first store-level failure in a contained
// error list, ignoring per-record decode errors.
func firstFailure(errs []error) error {
	for _, e := range errs {
		if errors.Is(e, sources.ErrUnavailable) || errors.Is(e, sources.ErrTimeout) {
			return e
		}
	}
	return nil
}

// statusFromErr maps an extraction error onto a source status.
func statusFromErr(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, sources.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, sources.ErrUnavailable):
		return StatusUnavailable
	default:
		return StatusError
	}
}

// sortRecords orders a merged set: score descending, then recency
// descending, then ID and tool ascending. The trailing keys make the
// order total so identical runs serialize identically.
func sortRecords(recs []schema.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].RelevanceScore != recs[j].RelevanceScore {
			return recs[i].RelevanceScore > recs[j].RelevanceScore
		}
		ui, uj := recs[i].UpdatedAt.EpochMillis(), recs[j].UpdatedAt.EpochMillis()
		if ui != uj {
			return ui > uj
		}
		if recs[i].ID != recs[j].ID {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].SourceTool < recs[j].SourceTool
	})
}
