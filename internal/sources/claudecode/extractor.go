package claudecode

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/gandalf/internal/discovery"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// defaultFileLimit caps how many session files one request parses when
// the caller gives no limit.
const defaultFileLimit = 50

// Extractor reads Claude Code projects directories.
type Extractor struct {
	log *logging.Logger
}

// New creates a Claude Code extractor.
func New(log *logging.Logger) *Extractor {
	if log == nil {
		log = logging.FromContext(context.Background())
	}
	return &Extractor{log: log.Named("claudecode")}
}

// Tool implements sources.Provider.
func (e *Extractor) Tool() schema.SourceTool { return schema.ToolClaudeCode }

// Extract implements sources.Provider. One conversation is emitted per
// session file; files are taken most-recently-modified first so the
// parse budget goes to fresh sessions.
func (e *Extractor) Extract(ctx context.Context, req sources.ExtractRequest) (*sources.ExtractResult, error) {
	start := time.Now()
	res := &sources.ExtractResult{}

	fileLimit := req.Limit
	if fileLimit <= 0 {
		fileLimit = defaultFileLimit
	}

	for _, store := range req.Stores {
		if store.Tool != schema.ToolClaudeCode || store.Kind != discovery.KindProjectsDir {
			continue
		}
		res.Stats.Stores++

		files, err := listSessionFiles(store.Path, req.ProjectRoot)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("%w: %s: %v", sources.ErrUnavailable, store.Path, err))
			e.log.Warn(ctx, "claude projects dir skipped",
				zap.String("path", store.Path), zap.Error(err))
			continue
		}

		for _, sf := range files {
			if err := ctx.Err(); err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("%w: %s: %v", sources.ErrTimeout, store.Path, err))
				break
			}
			if res.Stats.Scanned >= fileLimit {
				break
			}
			if !req.Since.IsZero() && sf.modTime.Before(req.Since) {
				// Files sort newest first, so everything after this one
				// is older still.
				break
			}
			res.Stats.Scanned++

			conv, err := e.extractFile(sf, res)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("%w: %s: %v", sources.ErrUnavailable, sf.path, err))
				continue
			}
			if conv == nil {
				res.Stats.Skipped++
				continue
			}
			res.Conversations = append(res.Conversations, *conv)
		}
	}

	sources.Finalize(res, req)
	res.Stats.ElapsedMS = time.Since(start).Milliseconds()
	return res, nil
}

// extractFile parses one session file into a conversation. A file with
// no usable messages returns nil.
func (e *Extractor) extractFile(sf sessionFile, res *sources.ExtractResult) (*sources.Conversation, error) {
	parsed, err := parseFile(sf.path)
	if err != nil {
		return nil, err
	}
	res.Stats.DecodeErrors += parsed.ErrorCount
	for _, pe := range parsed.Errors {
		res.Errors = append(res.Errors, fmt.Errorf("%w: %s line %d: %s", sources.ErrDecode, sf.path, pe.Line, pe.Err))
	}
	if len(parsed.Messages) == 0 {
		return nil, nil
	}

	meta := parsed.Meta
	created := meta.Start
	updated := meta.End
	if updated.IsZero() {
		updated = schema.FromMillis(sf.modTime.UnixMilli())
	}

	sessionData := map[string]any{"session_id": meta.SessionID}
	if meta.CWD != "" {
		sessionData["cwd"] = meta.CWD
	}
	if meta.Version != "" {
		sessionData["version"] = meta.Version
	}
	if meta.GitBranch != "" {
		sessionData["git_branch"] = meta.GitBranch
	}
	if !meta.Start.IsZero() {
		sessionData["start_time"] = meta.Start
	}

	return &sources.Conversation{
		Tool:         schema.ToolClaudeCode,
		ID:           meta.SessionID,
		CreatedAt:    created,
		UpdatedAt:    updated,
		Messages:     parsed.Messages,
		SessionID:    meta.SessionID,
		DatabasePath: sf.path,
		SessionData:  sessionData,
	}, nil
}

// sessionFile pairs a path with its modification time for ordering.
type sessionFile struct {
	path    string
	modTime time.Time
}

// listSessionFiles walks the projects directory for *.jsonl files,
// newest first. When projectRoot is set, only files inside the
// directory encoding that root are considered.
func listSessionFiles(dir, projectRoot string) ([]sessionFile, error) {
	wantDir := ""
	if projectRoot != "" {
		wantDir = encodeProjectDir(projectRoot)
	}

	var files []sessionFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// A vanished or unreadable subdirectory should not hide the
			// rest of the sessions.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		if wantDir != "" && filepath.Base(filepath.Dir(path)) != wantDir {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, sessionFile{path: path, modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].path < files[j].path
	})
	return files, nil
}

// encodeProjectDir mirrors how Claude Code names per-project session
// directories: every path separator becomes a dash, so /home/x/proj
// lives under -home-x-proj.
func encodeProjectDir(root string) string {
	return strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(root)
}
