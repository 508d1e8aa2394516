// Package keywords derives the context keyword list that drives
// relevance scoring: what the project is called, what it declares in
// its manifests, which technologies its files imply, and the words of
// the request itself.
package keywords

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/project"
)

// DefaultMax is the emission cap when configuration does not set one.
const DefaultMax = 20

// tokensPerField caps what one free-text field may contribute.
const tokensPerField = 20

// fileScanLimit bounds the extension scan; a prefix of the tree is
// plenty to tell what languages live in it.
const fileScanLimit = 500

// stopWords are dropped from free-text fields before tokenizing.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "about": true, "after": true,
	"before": true, "does": true, "doesnt": true, "dont": true, "how": true,
	"are": true, "was": true, "were": true, "will": true, "would": true,
	"can": true, "could": true, "should": true, "have": true, "has": true,
	"had": true, "not": true, "but": true, "all": true, "any": true,
	"its": true, "their": true, "there": true, "then": true, "than": true,
	"some": true, "such": true, "only": true, "also": true, "just": true,
	"being": true, "over": true, "under": true, "between": true, "out": true,
	"use": true, "using": true, "used": true, "get": true, "make": true,
	"like": true, "want": true, "need": true, "please": true, "help": true,
}

// extTech maps file extensions to technology keywords.
var extTech = map[string]string{
	".go":     "go",
	".py":     "python",
	".rs":     "rust",
	".ts":     "typescript",
	".tsx":    "typescript",
	".js":     "javascript",
	".jsx":    "javascript",
	".rb":     "ruby",
	".java":   "java",
	".kt":     "kotlin",
	".swift":  "swift",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".cs":     "csharp",
	".php":    "php",
	".sh":     "shell",
	".sql":    "sql",
	".tf":     "terraform",
	".proto":  "protobuf",
	".vue":    "vue",
	".svelte": "svelte",
}

// techVocabulary is matched against README / CLAUDE.md headings.
var techVocabulary = []string{
	"go", "golang", "python", "rust", "typescript", "javascript", "node",
	"react", "vue", "svelte", "django", "flask", "fastapi", "rails",
	"docker", "kubernetes", "terraform", "grpc", "graphql", "rest",
	"postgres", "postgresql", "mysql", "sqlite", "redis", "kafka",
	"mongodb", "elasticsearch", "aws", "gcp", "azure", "mcp", "cli",
	"api", "sdk", "webassembly", "wasm",
}

// Builder computes and caches context keywords.
type Builder struct {
	max      int
	cacheTTL time.Duration
	log      *logging.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	keywords []string
	expires  time.Time
}

// NewBuilder creates a keyword builder.
func NewBuilder(cfg config.KeywordsConfig, log *logging.Logger) *Builder {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	max := cfg.Max
	if max <= 0 {
		max = DefaultMax
	}
	ttl := cfg.CacheTTL.Duration()
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Builder{
		max:      max,
		cacheTTL: ttl,
		log:      log.Named("keywords"),
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
	}
}

// Max returns the configured emission cap.
func (b *Builder) Max() int { return b.max }

// Build combines request tokens with project-derived keywords. Request
// words lead so the cap never squeezes out what the user actually
// asked about. The returned list is deduplicated but NOT capped; use
// Cap for emission.
func (b *Builder) Build(ctx context.Context, root, userPrompt, searchQuery string) []string {
	var kws []string
	kws = append(kws, Tokenize(searchQuery)...)
	kws = append(kws, Tokenize(userPrompt)...)
	kws = append(kws, b.ForProject(ctx, root)...)
	return dedupe(kws)
}

// ForProject returns project-derived keywords, cached per root.
func (b *Builder) ForProject(ctx context.Context, root string) []string {
	if root == "" {
		return nil
	}

	b.mu.Lock()
	if entry, ok := b.cache[root]; ok && b.now().Before(entry.expires) {
		kws := entry.keywords
		b.mu.Unlock()
		return kws
	}
	b.mu.Unlock()

	kws := b.computeProject(ctx, root)

	b.mu.Lock()
	b.cache[root] = cacheEntry{keywords: kws, expires: b.now().Add(b.cacheTTL)}
	b.mu.Unlock()
	return kws
}

func (b *Builder) computeProject(ctx context.Context, root string) []string {
	var kws []string

	// Project identity first.
	kws = append(kws, splitIdentifier(lastPathElement(root))...)

	// Declared names and keywords from manifests.
	kws = append(kws, b.readManifests(ctx, root)...)

	// Technologies mentioned in the docs.
	kws = append(kws, readDocTech(root)...)

	// Technologies implied by the files on disk.
	kws = append(kws, b.fileTech(root)...)

	kws = dedupe(kws)
	b.log.Debug(ctx, "project keywords computed",
		zap.String("root", root), zap.Int("count", len(kws)))
	return kws
}

// fileTech scans a bounded prefix of the tree and maps extensions onto
// technologies, most common first.
func (b *Builder) fileTech(root string) []string {
	files, err := project.ListFiles(root, fileScanLimit)
	if err != nil {
		return nil
	}
	counts := make(map[string]int)
	for _, f := range files {
		if i := strings.LastIndex(f, "."); i >= 0 {
			if tech, ok := extTech[strings.ToLower(f[i:])]; ok {
				counts[tech]++
			}
		}
	}
	techs := make([]string, 0, len(counts))
	for tech := range counts {
		techs = append(techs, tech)
	}
	sort.Slice(techs, func(i, j int) bool {
		if counts[techs[i]] != counts[techs[j]] {
			return counts[techs[i]] > counts[techs[j]]
		}
		return techs[i] < techs[j]
	})
	return techs
}

// Cap truncates a keyword list to at most max entries.
func Cap(kws []string, max int) []string {
	if max <= 0 || len(kws) <= max {
		return kws
	}
	return kws[:max]
}

// Tokenize lowercases text, strips punctuation, and drops stop words
// and short tokens. At most tokensPerField tokens are returned, in
// order of first appearance.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '.', r == '/', r == '_', r == '-':
			// Path-ish characters survive so file references keep their
			// shape for the scorer.
			return r
		default:
			return ' '
		}
	}, text)

	seen := make(map[string]bool)
	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		tok = strings.Trim(tok, "./-_")
		if len(tok) < 3 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
		if len(tokens) >= tokensPerField {
			break
		}
	}
	return tokens
}

// splitIdentifier breaks an identifier like my-api_server into words.
func splitIdentifier(name string) []string {
	parts := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	var words []string
	for _, p := range parts {
		if len(p) >= 2 && !stopWords[p] {
			words = append(words, p)
		}
	}
	return words
}

func lastPathElement(path string) string {
	path = strings.TrimRight(path, "/\\")
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// dedupe keeps first occurrences, case-insensitively.
func dedupe(kws []string) []string {
	seen := make(map[string]bool, len(kws))
	out := kws[:0]
	for _, kw := range kws {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}
