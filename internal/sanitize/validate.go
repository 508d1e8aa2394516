package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Validation errors for request-entry checks.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidInput indicates a request parameter failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidatePath checks a path for security issues:
//   - No directory traversal (..)
//   - Resolves to absolute path and validates it stays within expected root
//   - Returns the cleaned, absolute path or an error
//
// If allowedRoot is empty, only traversal checks are performed.
// If allowedRoot is provided, the path must resolve within that directory.
func ValidatePath(path, allowedRoot string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	// Check for obvious traversal patterns before any processing
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: contains '..'", ErrPathTraversal)
	}

	cleanPath := filepath.Clean(path)

	// Re-check after cleaning (handles edge cases like "foo/../..")
	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("%w: resolves to traversal", ErrPathTraversal)
	}

	absPath := cleanPath
	if !filepath.IsAbs(cleanPath) {
		var err error
		absPath, err = filepath.Abs(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
	}

	if strings.Contains(absPath, "..") {
		return "", fmt.Errorf("%w: absolute path contains traversal", ErrPathTraversal)
	}

	if allowedRoot != "" {
		absRoot, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", fmt.Errorf("failed to resolve allowed root: %w", err)
		}

		rel, err := filepath.Rel(absRoot, absPath)
		if err != nil {
			return "", fmt.Errorf("%w: path outside allowed root", ErrPathTraversal)
		}

		// If relative path starts with "..", it's outside the root
		if strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("%w: path escapes allowed root", ErrPathTraversal)
		}
	}

	return absPath, nil
}

// ValidateProjectPath validates a caller-supplied project path.
// Tool handlers operate on user-specified paths, so only traversal is blocked.
func ValidateProjectPath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	return ValidatePath(path, "")
}

// SafeBasename returns the base name of a path after validation.
// This is a secure replacement for filepath.Base() on untrusted input.
func SafeBasename(path string) (string, error) {
	cleanPath, err := ValidateProjectPath(path)
	if err != nil {
		return "", err
	}

	base := filepath.Base(cleanPath)
	if base == "" || base == "." || base == "/" || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid path base", ErrPathTraversal)
	}

	return base, nil
}

// ValidateString trims a string parameter and enforces a length ceiling.
// Returns the trimmed value. Empty results are errors when required is set.
func ValidateString(s, field string, maxLen int, required bool) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		if required {
			return "", fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field)
		}
		return "", nil
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: %s contains invalid UTF-8", ErrInvalidInput, field)
	}
	if strings.ContainsRune(trimmed, 0) {
		return "", fmt.Errorf("%w: %s contains NUL byte", ErrInvalidInput, field)
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidInput, field, maxLen)
	}
	return trimmed, nil
}

// ValidateArray validates each element of a string array parameter, dropping
// empties after trimming and capping the element count.
func ValidateArray(vals []string, field string, maxItems, maxItemLen int) ([]string, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	if maxItems > 0 && len(vals) > maxItems {
		return nil, fmt.Errorf("%w: %s exceeds %d items", ErrInvalidInput, field, maxItems)
	}
	out := make([]string, 0, len(vals))
	for i, v := range vals {
		trimmed, err := ValidateString(v, fmt.Sprintf("%s[%d]", field, i), maxItemLen, false)
		if err != nil {
			return nil, err
		}
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// ValidateFileExtension normalizes an extension (leading dot optional,
// lowercased) and checks membership in the allowed set.
func ValidateFileExtension(ext string, allowed []string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(ext))
	normalized = strings.TrimPrefix(normalized, ".")
	if normalized == "" {
		return "", fmt.Errorf("%w: file extension cannot be empty", ErrInvalidInput)
	}
	for _, a := range allowed {
		if normalized == strings.TrimPrefix(strings.ToLower(a), ".") {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("%w: extension %q not in allowed set %v", ErrInvalidInput, ext, allowed)
}

// ValidateInteger checks an integer parameter against an inclusive range.
func ValidateInteger(v int, field string, min, max int) (int, error) {
	if v < min || v > max {
		return 0, fmt.Errorf("%w: %s must be in [%d, %d], got %d", ErrInvalidInput, field, min, max, v)
	}
	return v, nil
}

// ClampInt clamps v into [min, max].
func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ValidateEnum checks that a value is one of the allowed members,
// case-insensitively, returning the canonical (allowed-list) form.
func ValidateEnum(v, field string, allowed []string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if trimmed == strings.ToLower(a) {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s must be one of %v, got %q", ErrInvalidInput, field, allowed, v)
}
