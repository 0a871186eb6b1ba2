// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package capability enforces per-plugin capability grants at runtime.
//
// Capabilities are dot-separated names matched with gobwas/glob using '.' as
// the segment separator:
//   - '*' matches one segment: "resources.read.*" matches
//     "resources.read.collection" but not "resources.read.collection.meta"
//   - '**' crosses segments: "events.**" matches every event capability
//
// Unknown plugins and unmatched capabilities are denied; there is no
// allow-by-default path.
package capability

import (
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeDenied is the error code Require attaches when a capability is missing.
const CodeDenied = "CAPABILITY_DENIED"

// grant pairs the original pattern with its compiled matcher.
type grant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer holds the capability grants declared by plugin manifests and
// answers runtime capability checks. Safe for concurrent use; the zero value
// works without NewEnforcer.
type Enforcer struct {
	mu     sync.RWMutex
	grants map[string][]grant
}

// NewEnforcer creates an empty enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]grant)}
}

// SetGrants replaces a plugin's grants with the given patterns. All patterns
// are compiled before any state changes, so an invalid pattern leaves the
// previous grants intact. The slice is copied.
func (e *Enforcer) SetGrants(plugin string, capabilities []string) error {
	if plugin == "" {
		return oops.In("capability").Errorf("plugin id cannot be empty")
	}

	compiled := make([]grant, len(capabilities))
	for i, pattern := range capabilities {
		if pattern == "" {
			return oops.In("capability").
				With("plugin", plugin).
				Errorf("capability %d is empty", i)
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.In("capability").
				With("plugin", plugin).
				With("pattern", pattern).
				Wrapf(err, "capability %d", i)
		}
		compiled[i] = grant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]grant)
	}
	e.grants[plugin] = compiled
	return nil
}

// RemoveGrants drops every grant held by a plugin. Unknown plugins are a
// no-op.
func (e *Enforcer) RemoveGrants(plugin string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, plugin)
}

// IsRegistered reports whether SetGrants was called for a plugin. Lets
// callers tell "plugin never declared capabilities" apart from "plugin lacks
// this capability".
func (e *Enforcer) IsRegistered(plugin string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.grants[plugin]
	return ok
}

// GetGrants returns a copy of the patterns granted to a plugin, nil if the
// plugin is not registered.
func (e *Enforcer) GetGrants(plugin string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	grants, ok := e.grants[plugin]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// ListPlugins returns the ids of all plugins with grants, in no particular
// order.
func (e *Enforcer) ListPlugins() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	plugins := make([]string, 0, len(e.grants))
	for id := range e.grants {
		plugins = append(plugins, id)
	}
	return plugins
}

// Check reports whether a plugin holds the requested capability. Empty
// capability names and unknown plugins are denied.
func (e *Enforcer) Check(plugin, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, g := range e.grants[plugin] {
		if g.glob.Match(capability) {
			return true
		}
	}
	return false
}

// Require is Check as an error: it returns a coded error naming the plugin
// and the missing capability.
func (e *Enforcer) Require(plugin, capability string) error {
	if e.Check(plugin, capability) {
		return nil
	}
	return oops.In("capability").
		Code(CodeDenied).
		With("plugin", plugin).
		With("capability", capability).
		Errorf("plugin %q lacks capability %q", plugin, capability)
}
