// Package claudecode extracts conversations from Claude Code's
// per-project JSONL session files.
//
// Each session is one file of independent JSON lines. Lines are decoded
// tolerantly: a malformed line is counted and skipped, never fails the
// file. Assistant content arrives as typed blocks (text, tool_use,
// tool_result) and is flattened to plain text.
package claudecode

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/gandalf/internal/schema"
	"github.com/fyrsmithlabs/gandalf/internal/sources"
)

// maxScanTokenSize bounds a single JSONL line. Sessions with large
// pasted files produce lines in the megabytes.
const maxScanTokenSize = 10 * 1024 * 1024

// maxStoredErrors caps how many line errors one file retains.
const maxStoredErrors = 10

// jsonlLine is the raw shape of one session file line.
type jsonlLine struct {
	UUID       string          `json:"uuid"`
	ParentUUID string          `json:"parentUuid"`
	Type       string          `json:"type"`
	Message    json.RawMessage `json:"message"`
	Timestamp  string          `json:"timestamp"`
	SessionID  string          `json:"sessionId"`
	CWD        string          `json:"cwd"`
	Version    string          `json:"version"`
	GitBranch  string          `json:"gitBranch"`
}

// claudeMessage is the nested message payload. Content is either a
// plain string or a list of typed blocks.
type claudeMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of a block-style content list.
type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
}

// ParseError records one undecodable line.
type ParseError struct {
	Line int
	Err  string
}

// sessionMeta is seeded from the first decoded line of a file.
type sessionMeta struct {
	SessionID string
	CWD       string
	Version   string
	GitBranch string
	Start     schema.Timestamp
	End       schema.Timestamp
}

// parseResult is one file's messages plus tolerated damage.
type parseResult struct {
	Messages   []sources.Message
	Meta       sessionMeta
	ErrorCount int
	Errors     []ParseError
}

// parseFile reads one session file. Only the open and scanner errors
// are fatal; everything line-level is contained in the result.
func parseFile(path string) (*parseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer file.Close()

	res := &parseResult{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxScanTokenSize), maxScanTokenSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var jl jsonlLine
		if err := json.Unmarshal([]byte(line), &jl); err != nil {
			res.ErrorCount++
			if len(res.Errors) < maxStoredErrors {
				res.Errors = append(res.Errors, ParseError{Line: lineNum, Err: err.Error()})
			}
			continue
		}

		res.Meta.observe(jl)

		if jl.Type != "user" && jl.Type != "assistant" {
			continue
		}
		msg := parseMessage(jl)
		if msg.Content == "" {
			continue
		}
		res.Messages = append(res.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning session file: %w", err)
	}

	// The session ID is usually on every line; the filename stem is the
	// fallback for hand-rolled or truncated files.
	if res.Meta.SessionID == "" {
		res.Meta.SessionID = strings.TrimSuffix(filepath.Base(path), ".jsonl")
	}
	return res, nil
}

// observe folds one line's envelope fields into the session metadata.
// First writer wins for identity fields; timestamps track the span.
func (m *sessionMeta) observe(jl jsonlLine) {
	if m.SessionID == "" {
		m.SessionID = jl.SessionID
	}
	if m.CWD == "" {
		m.CWD = jl.CWD
	}
	if m.Version == "" {
		m.Version = jl.Version
	}
	if m.GitBranch == "" {
		m.GitBranch = jl.GitBranch
	}
	if jl.Timestamp == "" {
		return
	}
	ts := schema.FromISO(jl.Timestamp)
	if ts.EpochMillis() == 0 {
		return
	}
	if m.Start.IsZero() || ts.EpochMillis() < m.Start.EpochMillis() {
		m.Start = ts
	}
	if m.End.IsZero() || ts.EpochMillis() > m.End.EpochMillis() {
		m.End = ts
	}
}

// parseMessage flattens one user/assistant line to a message.
func parseMessage(jl jsonlLine) sources.Message {
	msg := sources.Message{
		Type:       jl.Type,
		Role:       jl.Type,
		Timestamp:  schema.FromISO(jl.Timestamp),
		ParentUUID: jl.ParentUUID,
	}
	if len(jl.Message) == 0 {
		return msg
	}

	var cm claudeMessage
	if err := json.Unmarshal(jl.Message, &cm); err != nil {
		return msg
	}
	if cm.Role != "" {
		msg.Role = cm.Role
	}
	msg.Content = flattenContent(cm.Content)
	return msg
}

// flattenContent renders a content payload (string or block list) as
// plain text. Block lists are joined by newlines; tool traffic keeps a
// short marker so context is not silently lost.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case "tool_use":
			if b.Name != "" {
				parts = append(parts, "[tool_use: "+b.Name+"]")
			}
		case "tool_result":
			if nested := flattenContent(b.Content); nested != "" {
				parts = append(parts, nested)
			}
		}
	}
	return strings.Join(parts, "\n")
}
