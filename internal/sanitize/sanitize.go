// Package sanitize provides shared input validation and name sanitization
// for the tool surface. Every request parameter passes through here before
// any source store is touched.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxNameLength is the maximum length for sanitized project names and
	// export filename stems.
	MaxNameLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated
	// names. Format: _<8-char-hash> = 9 characters total.
	HashSuffixLength = 9

	// DefaultName is used when sanitization produces an empty result.
	DefaultName = "untitled"
)

// SanitizeProjectName sanitizes a string for use as a project identifier in
// cache directories and log fields.
//
// Rules applied:
//   - Converts to lowercase
//   - Replaces invalid characters with underscores
//   - Collapses multiple underscores
//   - Trims leading/trailing underscores
//   - Truncates to MaxNameLength with hash suffix if too long
//   - Returns DefaultName if result would be empty
//
// Examples:
//
//	"github.com/user" -> "github_com_user"
//	"My Project!"     -> "my_project"
//	"" or "!!!"       -> "untitled"
func SanitizeProjectName(s string) string {
	return sanitizeName(s, false)
}

// SafeFilename sanitizes a conversation title for use as an export filename
// stem. Same rules as SanitizeProjectName but hyphens are preserved; they are
// common in conversation titles and harmless in filenames.
func SafeFilename(s string) string {
	return sanitizeName(s, true)
}

func sanitizeName(s string, keepHyphens bool) string {
	if s == "" {
		return DefaultName
	}

	s = strings.ToLower(s)

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			result.WriteRune(r)
		case keepHyphens && r == '-':
			result.WriteRune(r)
		default:
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_-")

	if sanitized == "" {
		return DefaultName
	}

	if len(sanitized) > MaxNameLength {
		sanitized = truncateWithHash(sanitized)
	}

	return sanitized
}

// truncateWithHash truncates a string to fit within MaxNameLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
// Example: "very_long_name..." -> "very_long_na_a1b2c3d4"
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	maxBase := MaxNameLength - HashSuffixLength
	truncated := strings.TrimRight(s[:maxBase], "_-")

	return truncated + hashSuffix
}
