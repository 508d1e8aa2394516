// Package secrets provides secret detection and redaction.
//
// Conversation logs are exactly where pasted API keys and tokens end up,
// so exported files and (optionally) tool-result snippets pass through a
// scrubber before leaving gandalf. Detection is rule-based: each rule
// pairs a regexp with optional keyword pre-filters, and findings keep
// their rule IDs and counts while the matched content is redacted.
package secrets
