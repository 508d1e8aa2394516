// Package discovery enumerates candidate conversation store paths per
// tool across Linux, macOS, and WSL.
//
// Discovery is pure: paths are probed for existence and readability but
// no store is ever opened here. Opening belongs to the extractors, which
// go through the connection pool.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
)

// Kind classifies what a discovered path contains.
type Kind string

const (
	// KindWorkspaceDB is a per-workspace state.vscdb file.
	KindWorkspaceDB Kind = "workspace"
	// KindGlobalDB is the editor's global storage state.vscdb file.
	KindGlobalDB Kind = "global"
	// KindProjectsDir is a directory of per-project JSONL session files.
	KindProjectsDir Kind = "projects"
)

// Store is one discovered conversation store.
type Store struct {
	Tool        schema.SourceTool `json:"tool"`
	Kind        Kind              `json:"kind"`
	Path        string            `json:"path"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
}

// Locator probes the filesystem for tool storage locations.
type Locator struct {
	cfg config.SourcesConfig
	log *logging.Logger

	// Test seams. Defaults cover the real system; tests point them at
	// fixture trees.
	goos            string
	home            func() (string, error)
	procVersionPath string
	windowsUsersDir string
}

// NewLocator creates a locator for the configured sources.
func NewLocator(cfg config.SourcesConfig, log *logging.Logger) *Locator {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	return &Locator{
		cfg:             cfg,
		log:             log.Named("discovery"),
		goos:            runtime.GOOS,
		home:            os.UserHomeDir,
		procVersionPath: "/proc/version",
		windowsUsersDir: "/mnt/c/Users",
	}
}

// Discover returns the stores for one tool. A disabled tool yields no
// stores. Unknown tools are an error.
func (l *Locator) Discover(ctx context.Context, tool schema.SourceTool) ([]Store, error) {
	switch tool {
	case schema.ToolCursor:
		if !l.cfg.Cursor.Enabled() {
			return nil, nil
		}
		return l.vscdbStores(ctx, tool, l.cursorBases(ctx), l.cfg.Cursor.Path), nil
	case schema.ToolClaudeCode:
		if !l.cfg.ClaudeCode.Enabled() {
			return nil, nil
		}
		return l.claudeStores(ctx), nil
	case schema.ToolWindsurf:
		if !l.cfg.Windsurf.Enabled() {
			return nil, nil
		}
		return l.vscdbStores(ctx, tool, l.windsurfBases(ctx), l.cfg.Windsurf.Path), nil
	default:
		return nil, schema.ErrUnknownTool
	}
}

// DiscoverAll probes every known tool.
func (l *Locator) DiscoverAll(ctx context.Context) map[schema.SourceTool][]Store {
	out := make(map[schema.SourceTool][]Store, len(schema.AllTools()))
	for _, tool := range schema.AllTools() {
		stores, err := l.Discover(ctx, tool)
		if err != nil {
			continue
		}
		out[tool] = stores
	}
	return out
}

// cursorBases returns candidate Cursor `User` directories in probe order.
func (l *Locator) cursorBases(ctx context.Context) []string {
	var bases []string

	if l.goos == "linux" && l.isWSL() {
		if winHome := l.windowsUserDir(ctx); winHome != "" {
			bases = append(bases, filepath.Join(winHome, "AppData", "Roaming", "Cursor", "User"))
		}
	}

	home, err := l.home()
	if err != nil {
		l.log.Warn(ctx, "cannot resolve home directory", zap.Error(err))
		return bases
	}

	switch l.goos {
	case "darwin":
		bases = append(bases, filepath.Join(home, "Library", "Application Support", "Cursor", "User"))
	default:
		bases = append(bases, filepath.Join(home, ".config", "Cursor", "User"))
	}

	// Remote sessions (cursor-server) keep their own storage tree.
	bases = append(bases, filepath.Join(home, ".cursor-server", "data", "User"))

	return bases
}

// windsurfBases returns candidate Windsurf `User` directories, covering
// the Windsurf-Next preview build.
func (l *Locator) windsurfBases(ctx context.Context) []string {
	var bases []string

	if l.goos == "linux" && l.isWSL() {
		if winHome := l.windowsUserDir(ctx); winHome != "" {
			bases = append(bases,
				filepath.Join(winHome, ".codeium", "windsurf", "User"),
				filepath.Join(winHome, ".codeium", "windsurf-next", "User"),
				filepath.Join(winHome, "AppData", "Roaming", "Windsurf", "User"),
			)
		}
	}

	home, err := l.home()
	if err != nil {
		l.log.Warn(ctx, "cannot resolve home directory", zap.Error(err))
		return bases
	}

	bases = append(bases,
		filepath.Join(home, ".codeium", "windsurf", "User"),
		filepath.Join(home, ".codeium", "windsurf-next", "User"),
	)

	if l.goos == "darwin" {
		bases = append(bases, filepath.Join(home, "Library", "Application Support", "Windsurf", "User"))
	}

	return bases
}

// vscdbStores scans each base User directory for workspace and global
// state.vscdb files. A non-empty override replaces the probed bases.
func (l *Locator) vscdbStores(ctx context.Context, tool schema.SourceTool, bases []string, override string) []Store {
	if override != "" {
		bases = []string{expandHome(override, l.home)}
	}

	var stores []Store
	seen := make(map[string]bool)

	add := func(s Store) {
		if seen[s.Path] {
			return
		}
		seen[s.Path] = true
		stores = append(stores, s)
	}

	for _, base := range bases {
		wsRoot := filepath.Join(base, "workspaceStorage")
		entries, err := os.ReadDir(wsRoot)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				dbPath := filepath.Join(wsRoot, entry.Name(), "state.vscdb")
				if !isReadableFile(dbPath) {
					continue
				}
				add(Store{Tool: tool, Kind: KindWorkspaceDB, Path: dbPath, WorkspaceID: entry.Name()})
				l.log.Trace(ctx, "found workspace store",
					zap.String("tool", string(tool)),
					zap.String("path", dbPath))
			}
		}

		globalPath := filepath.Join(base, "globalStorage", "state.vscdb")
		if isReadableFile(globalPath) {
			add(Store{Tool: tool, Kind: KindGlobalDB, Path: globalPath})
			l.log.Trace(ctx, "found global store",
				zap.String("tool", string(tool)),
				zap.String("path", globalPath))
		}
	}

	l.log.Debug(ctx, "store discovery complete",
		zap.String("tool", string(tool)),
		zap.Int("stores", len(stores)))
	return stores
}

// claudeStores finds Claude Code projects directories.
func (l *Locator) claudeStores(ctx context.Context) []Store {
	var candidates []string

	if l.cfg.ClaudeCode.Path != "" {
		candidates = []string{expandHome(l.cfg.ClaudeCode.Path, l.home)}
	} else {
		if l.goos == "linux" && l.isWSL() {
			if winHome := l.windowsUserDir(ctx); winHome != "" {
				candidates = append(candidates, filepath.Join(winHome, ".claude", "projects"))
			}
		}
		home, err := l.home()
		if err != nil {
			l.log.Warn(ctx, "cannot resolve home directory", zap.Error(err))
			return nil
		}
		candidates = append(candidates, filepath.Join(home, ".claude", "projects"))
	}

	var stores []Store
	seen := make(map[string]bool)
	for _, dir := range candidates {
		if seen[dir] || !isReadableDir(dir) {
			continue
		}
		seen[dir] = true
		stores = append(stores, Store{Tool: schema.ToolClaudeCode, Kind: KindProjectsDir, Path: dir})
		l.log.Trace(ctx, "found projects dir", zap.String("path", dir))
	}

	l.log.Debug(ctx, "store discovery complete",
		zap.String("tool", string(schema.ToolClaudeCode)),
		zap.Int("stores", len(stores)))
	return stores
}

// isWSL reports whether this Linux environment is actually WSL.
func (l *Locator) isWSL() bool {
	data, err := os.ReadFile(l.procVersionPath)
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}

// windowsUserDir resolves the Windows-side user directory under WSL.
// $WINDOWS_USERNAME wins; otherwise the first non-default entry under
// /mnt/c/Users is taken.
func (l *Locator) windowsUserDir(ctx context.Context) string {
	if user := os.Getenv("WINDOWS_USERNAME"); user != "" {
		dir := filepath.Join(l.windowsUsersDir, user)
		if isReadableDir(dir) {
			return dir
		}
		l.log.Debug(ctx, "WINDOWS_USERNAME does not name a readable directory",
			zap.String("user", user))
	}

	entries, err := os.ReadDir(l.windowsUsersDir)
	if err != nil {
		return ""
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !isDefaultWindowsUser(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return filepath.Join(l.windowsUsersDir, names[0])
}

func isDefaultWindowsUser(name string) bool {
	switch name {
	case "Public", "Default", "Default User", "All Users":
		return true
	}
	return false
}

// isReadableFile reports whether path names a regular file we can open.
func isReadableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// isReadableDir reports whether path names a directory we can list.
func isReadableDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// expandHome replaces a leading ~ with the home directory.
func expandHome(path string, home func() (string, error)) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		h, err := home()
		if err != nil {
			return path
		}
		return filepath.Join(h, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
