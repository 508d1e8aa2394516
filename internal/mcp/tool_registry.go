package mcp

import (
	"sort"
	"sync"
)

// ToolCategory represents the functional category of a tool.
type ToolCategory string

const (
	// CategoryRecall is for ranked recall/search over the merged view.
	CategoryRecall ToolCategory = "recall"
	// CategoryQuery is for raw per-tool conversation dumps.
	CategoryQuery ToolCategory = "query"
	// CategoryExport is for file export tools.
	CategoryExport ToolCategory = "export"
	// CategoryDiscovery is for store discovery tools.
	CategoryDiscovery ToolCategory = "discovery"
)

// ToolMetadata describes one registered MCP tool.
type ToolMetadata struct {
	// Name is the unique tool name (e.g., "recall_conversations").
	Name string `json:"name"`

	// Description is a human-readable description of what the tool does.
	Description string `json:"description"`

	// Category is the functional category of the tool.
	Category ToolCategory `json:"category"`

	// Keywords are additional searchable terms for this tool.
	Keywords []string `json:"keywords,omitempty"`
}

// ToolRegistry tracks metadata for every registered MCP tool. The server
// populates it during registration; the CLI and tests read it to present
// or assert the tool surface.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMetadata
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*ToolMetadata),
	}
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(tool *ToolMetadata) {
	if tool == nil || tool.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get returns the metadata for a specific tool.
func (r *ToolRegistry) Get(name string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool metadata, sorted by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ListNames returns all registered tool names, sorted.
func (r *ToolRegistry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.tools))
	for name := range r.tools {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// ListByCategory returns all tools in a category, sorted by name.
func (r *ToolRegistry) ListByCategory(category ToolCategory) []*ToolMetadata {
	result := make([]*ToolMetadata, 0)
	for _, tool := range r.List() {
		if tool.Category == category {
			result = append(result, tool)
		}
	}
	return result
}

// Count returns the total number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
