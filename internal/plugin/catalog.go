// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

import (
	"slices"
	"sync"

	"github.com/samber/oops"
)

// Factory builds a fresh plugin instance. Registered once per compiled-in
// plugin; the loader calls it for each enabled manifest.
type Factory func() Plugin

// Catalog maps plugin ids to the factories compiled into the host. Safe for
// concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Add registers a factory under an id. A duplicate id is rejected.
func (c *Catalog) Add(id string, f Factory) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[id]; exists {
		return oops.Code(CodeDuplicatePlugin).
			With("plugin", id).
			Errorf("catalog already has a factory for %q", id)
	}
	c.factories[id] = f
	return nil
}

// New instantiates the plugin registered under an id.
func (c *Catalog) New(id string) (Plugin, error) {
	c.mu.RLock()
	f, ok := c.factories[id]
	c.mu.RUnlock()
	if !ok {
		return nil, oops.Code(CodeUnknownPlugin).
			With("plugin", id).
			Errorf("no compiled-in plugin %q", id)
	}
	return f(), nil
}

// IDs returns the catalog's plugin ids, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.factories))
	for id := range c.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
