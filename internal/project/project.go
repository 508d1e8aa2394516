// Package project resolves which project a request is about and lists
// project files for reference scoring.
//
// Resolution never trusts the caller blindly: explicit paths go through
// traversal validation, and everything else falls back through editor
// workspace hints, the enclosing git worktree, and finally the working
// directory.
package project

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/sanitize"
)

// EnvWorkspaceFolders is the editor-provided workspace list, one or
// more paths separated by commas. The first readable entry wins.
const EnvWorkspaceFolders = "WORKSPACE_FOLDER_PATHS"

// DefaultMaxFiles bounds ListFiles when the caller passes no limit.
const DefaultMaxFiles = 2000

// skipDirs are never descended into when listing files.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
}

// Resolver picks project roots. The function fields exist for tests.
type Resolver struct {
	log   *logging.Logger
	env   func(string) string
	getwd func() (string, error)
}

// NewResolver creates a resolver backed by the real environment.
func NewResolver(log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	return &Resolver{
		log:   log.Named("project"),
		env:   os.Getenv,
		getwd: os.Getwd,
	}
}

// Resolve returns the project root for a request. Precedence: the
// explicit path, the first workspace folder from the environment, the
// nearest .git-bearing ancestor of the working directory, then the
// working directory itself.
func (r *Resolver) Resolve(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		clean, err := sanitize.ValidateProjectPath(explicit)
		if err != nil {
			return "", err
		}
		r.log.Debug(ctx, "project root from request", zap.String("root", clean))
		return clean, nil
	}

	if root := r.workspaceFolder(); root != "" {
		r.log.Debug(ctx, "project root from workspace env", zap.String("root", root))
		return root, nil
	}

	wd, err := r.getwd()
	if err != nil {
		return "", err
	}
	if root := GitRoot(wd); root != "" {
		r.log.Debug(ctx, "project root from git worktree", zap.String("root", root))
		return root, nil
	}
	r.log.Debug(ctx, "project root from working directory", zap.String("root", wd))
	return wd, nil
}

// workspaceFolder returns the first existing directory from the
// workspace environment hint.
func (r *Resolver) workspaceFolder() string {
	raw := r.env(EnvWorkspaceFolders)
	if raw == "" {
		return ""
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean, err := sanitize.ValidateProjectPath(part)
		if err != nil {
			continue
		}
		if info, err := os.Stat(clean); err == nil && info.IsDir() {
			return clean
		}
	}
	return ""
}

// Name derives a short identifier from a resolved root, usable as a
// cache metadata value or log field. It never fails: an unusable root
// yields the sanitize default.
func Name(root string) string {
	base, err := sanitize.SafeBasename(root)
	if err != nil {
		return sanitize.DefaultName
	}
	return sanitize.SanitizeProjectName(base)
}

// GitRoot returns the worktree root of the repository enclosing dir,
// or "" when dir is not inside one.
func GitRoot(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	wt, err := repo.Worktree()
	if err != nil {
		// Bare repository; no files to score against anyway.
		return ""
	}
	return wt.Filesystem.Root()
}

// ListFiles walks root and returns up to maxFiles relative paths,
// sorted. Dependency and VCS directories are skipped, as are hidden
// files; the walk stops as soon as the cap is reached so huge trees
// stay cheap.
func ListFiles(root string, maxFiles int) ([]string, error) {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
