package tool

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/strandworks/strand/internal/llm"
)

// SourceLocal tags tools registered by the process itself. Remote tool
// proxies use "remote:<server-id>" so a disconnect can revoke exactly
// that server's tools.
const SourceLocal = "local"

// SourceRemote builds the source tag for a remote tool server.
func SourceRemote(serverID string) string {
	return "remote:" + serverID
}

// SourceRemotePrefix matches every remote source tag.
const SourceRemotePrefix = "remote:"

type entry struct {
	tool   Tool
	source string
}

// Registry maps unique tool names to (tool, source) entries with
// thread-safe access. Names are unique: adding a duplicate name is a
// no-op that preserves the earlier registration.
//
// Tools() returns an immutable snapshot, so a single think call sees a
// consistent tool set even while a remote server connects or disconnects
// concurrently.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Add registers a tool under the given source tag. If a tool with the
// same name already exists, the call is a no-op and the earlier
// registration is preserved.
func (r *Registry) Add(t Tool, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t.Name()]; exists {
		log.Printf("[Registry] Ignoring duplicate tool %q (source %s)", t.Name(), source)
		return
	}
	r.entries[t.Name()] = entry{tool: t, source: source}
}

// Remove deletes a tool by name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// RemoveBySource deletes all entries whose source equals tag and returns
// how many were removed.
func (r *Registry) RemoveBySource(tag string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for name, e := range r.entries {
		if e.source == tag {
			delete(r.entries, name)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[Registry] Removed %d tools with source %q", removed, tag)
	}
	return removed
}

// RemoveBySourcePrefix deletes all entries whose source starts with
// prefix and returns how many were removed.
func (r *Registry) RemoveBySourcePrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for name, e := range r.entries {
		if strings.HasPrefix(e.source, prefix) {
			delete(r.entries, name)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[Registry] Removed %d tools with source prefix %q", removed, prefix)
	}
	return removed
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Tools returns a snapshot of all registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.tool)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Info describes one registry entry for listings.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// List returns name, description and source for every registered tool,
// sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, Info{
			Name:        e.tool.Name(),
			Description: e.tool.Description(),
			Source:      e.source,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Definitions creates function-calling definitions for all registered
// tools, in name order. Used by think to build the model request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.Tools()
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = ToParam(t)
	}
	return defs
}

// InitAll initializes all registered tools.
func (r *Registry) InitAll(ctx context.Context) error {
	for _, t := range r.Tools() {
		if err := t.Init(ctx); err != nil {
			return fmt.Errorf("init tool %q: %w", t.Name(), err)
		}
	}
	log.Printf("[Registry] Initialized %d tools", r.Len())
	return nil
}

// CloseAll closes all registered tools, logging errors but not failing.
func (r *Registry) CloseAll() {
	for _, t := range r.Tools() {
		if err := t.Close(); err != nil {
			log.Printf("[Registry] Error closing tool %s: %v", t.Name(), err)
		}
	}
}
