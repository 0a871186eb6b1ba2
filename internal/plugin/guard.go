// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

import (
	"context"

	"github.com/mosaicview/mosaic/internal/plugin/capability"
	"github.com/mosaicview/mosaic/internal/resource"
)

// guardedResources wraps the resource surface with capability checks for one
// plugin. A plugin that never declared capabilities keeps full access; one
// that declared any is limited to the sources its grants match.
type guardedResources struct {
	plugin   string
	enforcer *capability.Enforcer
	inner    Resources
}

var _ Resources = (*guardedResources)(nil)

func (g *guardedResources) require(name string) error {
	if !g.enforcer.IsRegistered(g.plugin) {
		return nil
	}
	return g.enforcer.Require(g.plugin, name)
}

func (g *guardedResources) Resolve(ctx context.Context, src resource.Source) (resource.Resolution, error) {
	if err := g.require(readCapability(src.ID)); err != nil {
		return resource.Resolution{}, err
	}
	return g.inner.Resolve(ctx, src)
}

func (g *guardedResources) LoadCollection(ctx context.Context, paths []string) (resource.Collection, error) {
	if err := g.require(readCapability("")); err != nil {
		return resource.Collection{}, err
	}
	return g.inner.LoadCollection(ctx, paths)
}

func (g *guardedResources) LoadFromSource(ctx context.Context, sourceID string) (resource.Collection, error) {
	if err := g.require(readCapability(sourceID)); err != nil {
		return resource.Collection{}, err
	}
	return g.inner.LoadFromSource(ctx, sourceID)
}

// readCapability names the capability guarding read access to a source.
// Ad-hoc path collections fall under "resources.read.adhoc".
func readCapability(sourceID string) string {
	if sourceID == "" {
		sourceID = "adhoc"
	}
	return "resources.read." + sourceID
}
