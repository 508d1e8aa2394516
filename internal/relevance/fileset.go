package relevance

import (
	"path"
	"sort"
	"strings"
)

// FileSet indexes a project's file listing so conversation text can be
// checked for references to files that actually exist.
type FileSet struct {
	paths map[string]struct{}
	bases map[string][]string
}

// NewFileSet builds an index from slash-separated relative paths, as
// produced by project.ListFiles.
func NewFileSet(files []string) *FileSet {
	fs := &FileSet{
		paths: make(map[string]struct{}, len(files)),
		bases: make(map[string][]string),
	}
	for _, f := range files {
		f = strings.TrimPrefix(path.Clean(f), "./")
		if f == "" || f == "." {
			continue
		}
		fs.paths[f] = struct{}{}
		base := path.Base(f)
		fs.bases[base] = append(fs.bases[base], f)
	}
	for base := range fs.bases {
		sort.Strings(fs.bases[base])
	}
	return fs
}

// Len reports how many files are indexed.
func (fs *FileSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.paths)
}

// ResolveReferences scans text for path-like tokens and returns the
// project files they resolve to, in first-mention order, up to max.
// Repeated mentions of the same file count once.
func (fs *FileSet) ResolveReferences(text string, max int) []string {
	if fs == nil || len(fs.paths) == 0 || max <= 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var refs []string
	for _, tok := range strings.Fields(text) {
		cand := trimToken(tok)
		if !pathLike(cand) {
			continue
		}
		resolved, ok := fs.resolve(cand)
		if !ok {
			continue
		}
		if _, dup := seen[resolved]; dup {
			continue
		}
		seen[resolved] = struct{}{}
		refs = append(refs, resolved)
		if len(refs) >= max {
			break
		}
	}
	return refs
}

// resolve matches a token against the index: exact relative path
// first, then unique-enough base name.
func (fs *FileSet) resolve(cand string) (string, bool) {
	cand = strings.TrimPrefix(cand, "./")
	if _, ok := fs.paths[cand]; ok {
		return cand, true
	}
	if matches, ok := fs.bases[path.Base(cand)]; ok {
		// A bare filename still names a real file; credit the
		// lexically first match for determinism.
		return matches[0], true
	}
	return "", false
}

// trimToken strips punctuation that prose wraps around paths. The
// leading cutset keeps the dot so ./relative prefixes survive.
func trimToken(tok string) string {
	tok = strings.TrimLeft(tok, "`'\"([{<,;:!?")
	return strings.TrimRight(tok, "`'\")]}>.,;:!?")
}

// pathLike filters tokens worth a lookup: they need a separator or an
// extension dot, and must not be bare punctuation or a version number.
func pathLike(tok string) bool {
	if len(tok) < 3 || len(tok) > 256 {
		return false
	}
	if !strings.ContainsAny(tok, "/.") {
		return false
	}
	// Reject dotted numerics like 1.2.3 so version strings do not
	// trigger base-name lookups.
	hasAlpha := false
	for _, r := range tok {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			hasAlpha = true
			break
		}
	}
	return hasAlpha
}
