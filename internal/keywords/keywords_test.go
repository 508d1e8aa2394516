package keywords

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/gandalf/internal/config"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "punctuation and stop words",
			text: "How do I fix the race condition in the worker pool?",
			want: []string{"fix", "race", "condition", "worker", "pool"},
		},
		{
			name: "path tokens survive",
			text: "look at internal/server/main.go first",
			want: []string{"look", "internal/server/main.go", "first"},
		},
		{
			name: "dedup preserves first occurrence",
			text: "retry retry RETRY backoff",
			want: []string{"retry", "backoff"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestTokenize_FieldCap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "word%02d ", i)
	}
	got := Tokenize(sb.String())
	assert.Len(t, got, tokensPerField)
}

func TestCap(t *testing.T) {
	kws := []string{"a", "b", "c"}
	assert.Equal(t, kws, Cap(kws, 5))
	assert.Equal(t, []string{"a", "b"}, Cap(kws, 2))
	assert.Equal(t, kws, Cap(kws, 0))
}

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestForProject_CollectsAllSources(t *testing.T) {
	root := filepath.Join(t.TempDir(), "search-helper")
	require.NoError(t, os.MkdirAll(root, 0o755))

	writeProjectFile(t, root, "package.json",
		`{"name":"@acme/cool-tool","keywords":["cli","Search"]}`)
	writeProjectFile(t, root, "go.mod",
		"module github.com/acme/search-helper\n\ngo 1.22\n\nrequire github.com/stretchr/testify v1.9.0\n")
	writeProjectFile(t, root, "README.md",
		"# search-helper\n\n## Built with Docker and Postgres\n\nplain text mentioning kubernetes is ignored\n")
	writeProjectFile(t, root, "main.go", "package main")
	writeProjectFile(t, root, "util.go", "package main")
	writeProjectFile(t, root, "scripts/gen.py", "print()")

	b := NewBuilder(config.KeywordsConfig{}, nil)
	got := b.ForProject(context.Background(), root)

	// Identity words from the directory name.
	assert.Contains(t, got, "search")
	assert.Contains(t, got, "helper")
	// Manifest names and keywords.
	assert.Contains(t, got, "javascript")
	assert.Contains(t, got, "cool")
	assert.Contains(t, got, "cli")
	assert.Contains(t, got, "testify")
	// Doc headings, but only headings.
	assert.Contains(t, got, "docker")
	assert.Contains(t, got, "postgres")
	assert.NotContains(t, got, "kubernetes")
	// File extensions, most common language first.
	goIdx, pyIdx := indexOf(got, "go"), indexOf(got, "python")
	require.GreaterOrEqual(t, goIdx, 0)
	require.GreaterOrEqual(t, pyIdx, 0)
	assert.Less(t, goIdx, pyIdx, "two .go files outrank one .py")

	// Case-insensitive dedup: "Search" from keywords collapsed into the
	// identity word.
	assert.Equal(t, 1, countFold(got, "search"))
}

func indexOf(list []string, want string) int {
	for i, v := range list {
		if v == want {
			return i
		}
	}
	return -1
}

func countFold(list []string, want string) int {
	n := 0
	for _, v := range list {
		if strings.EqualFold(v, want) {
			n++
		}
	}
	return n
}

func TestReadRequirements_OversizedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requirements.txt")
	long := strings.Repeat("x", bufio.MaxScanTokenSize+1)
	require.NoError(t, os.WriteFile(path,
		[]byte("flask\nrequests\n"+long+"\ndjango\n"), 0o644))

	kws, err := readRequirements(path)
	require.ErrorIs(t, err, bufio.ErrTooLong)

	// Everything scanned before the oversized line survives.
	assert.Contains(t, kws, "python")
	assert.Contains(t, kws, "flask")
	assert.Contains(t, kws, "requests")
	assert.NotContains(t, kws, "django")
}

func TestReadRequirements_MissingFile(t *testing.T) {
	kws, err := readRequirements(filepath.Join(t.TempDir(), "requirements.txt"))
	require.NoError(t, err)
	assert.Empty(t, kws)
}

func TestForProject_CacheHonorsTTL(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "go.mod", "module example.com/first\n")

	b := NewBuilder(config.KeywordsConfig{}, nil)
	base := time.Now()
	b.now = func() time.Time { return base }

	first := b.ForProject(context.Background(), root)
	assert.Contains(t, first, "first")

	// The manifest changes, but the cache entry is still fresh.
	writeProjectFile(t, root, "go.mod", "module example.com/second\n")
	cached := b.ForProject(context.Background(), root)
	assert.Equal(t, first, cached)

	// After the TTL the recompute sees the new module name.
	b.now = func() time.Time { return base.Add(10 * time.Minute) }
	recomputed := b.ForProject(context.Background(), root)
	assert.Contains(t, recomputed, "second")
}

func TestBuild_RequestTokensLead(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "go.mod", "module example.com/myproj\n")

	b := NewBuilder(config.KeywordsConfig{}, nil)
	got := b.Build(context.Background(), root, "debug the flaky websocket test", "websocket reconnect")

	require.NotEmpty(t, got)
	assert.Equal(t, "websocket", got[0], "search query tokens come first")
	assert.Contains(t, got, "reconnect")
	assert.Contains(t, got, "flaky")
	assert.Contains(t, got, "myproj")
	assert.Equal(t, 1, countFold(got, "websocket"), "deduplicated across fields")
}
