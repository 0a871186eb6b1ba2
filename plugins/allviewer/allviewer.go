// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package allviewer is the built-in gallery plugin. It resolves the user's
// configured image folders into one collection and contributes the grid view
// the host shows by default.
package allviewer

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/mosaicview/mosaic/internal/plugin"
	"github.com/mosaicview/mosaic/internal/resource"
)

// ID is the plugin's registry id.
const ID = "allviewer"

// Version is the compiled-in plugin version; manifests pin against it.
const Version = "1.2.0"

const (
	// EventCollectionLoaded announces a freshly resolved collection.
	EventCollectionLoaded = "allviewer:collectionLoaded"
	// EventViewModeChanged announces a view mode switch.
	EventViewModeChanged = "allviewer:viewModeChanged"
	// EventSetViewMode is the component-scoped request to switch modes.
	EventSetViewMode = "allviewer:setViewMode"
)

const (
	minThumbnailSize     = 50
	maxThumbnailSize     = 300
	defaultThumbnailSize = 150
)

var viewModes = map[string]bool{"grid": true, "list": true, "detail": true}

// Plugin shows every resolved image in a grid, list, or detail layout.
type Plugin struct {
	*plugin.Base

	mu         sync.Mutex
	collection resource.Collection
	unsubs     []func()
}

// New creates the plugin. Use it as a catalog factory.
func New() *Plugin {
	return &Plugin{
		Base: plugin.NewBase(plugin.Descriptor{
			ID:          ID,
			Name:        "All Viewer",
			Version:     Version,
			Description: "Browse every image in the configured folders",
			Author:      "Mosaic Contributors",
			Icon:        "grid",
		}),
	}
}

// Factory adapts New to the catalog's factory signature.
func Factory() plugin.Plugin { return New() }

// Initialize loads persisted settings and subscribes to the plugin's
// component-scoped view mode requests.
func (p *Plugin) Initialize(ctx context.Context, pctx *plugin.Context) error {
	if err := p.Base.Initialize(ctx, pctx); err != nil {
		return err
	}

	unsub := pctx.Events.SubscribeComponent(ID, EventSetViewMode, p.onSetViewMode)

	p.mu.Lock()
	p.unsubs = append(p.unsubs, unsub)
	p.mu.Unlock()
	return nil
}

// Activate resolves the configured source paths into the plugin's collection
// and announces it. No configured paths means an empty gallery, not a
// failure.
func (p *Plugin) Activate(ctx context.Context) error {
	pctx := p.Context()

	paths := p.sourcePaths()
	if len(paths) == 0 {
		pctx.Logger.Info("no source paths configured, gallery starts empty", "plugin", ID)
		return nil
	}

	coll, err := pctx.Resources.LoadCollection(ctx, paths)
	if err != nil {
		return oops.In(ID).Hint("failed to load image collection").Wrap(err)
	}

	p.mu.Lock()
	p.collection = coll
	p.mu.Unlock()

	pctx.Events.PublishFrom(ID, EventCollectionLoaded, map[string]any{
		"count": len(coll.Images),
	})
	return nil
}

// Deactivate drops the subscriptions taken in Initialize and forgets the
// collection.
func (p *Plugin) Deactivate(context.Context) error {
	p.mu.Lock()
	unsubs := p.unsubs
	p.unsubs = nil
	p.collection = resource.Collection{}
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	return nil
}

// UpdateConfig validates and clamps incoming settings before storing them.
func (p *Plugin) UpdateConfig(cfg plugin.Config) error {
	if mode, ok := cfg.Data["viewMode"].(string); ok && !viewModes[mode] {
		return oops.In(ID).
			With("viewMode", mode).
			Errorf("view mode must be grid, list, or detail")
	}
	if size, ok := asInt(cfg.Data["thumbnailSize"]); ok {
		// Clamp into a copy so the caller's map is never mutated.
		data := make(map[string]any, len(cfg.Data))
		for k, v := range cfg.Data {
			data[k] = v
		}
		data["thumbnailSize"] = clamp(size, minThumbnailSize, maxThumbnailSize)
		cfg.Data = data
	}
	return p.Base.UpdateConfig(cfg)
}

// UIComponent contributes the gallery panel.
func (p *Plugin) UIComponent() *plugin.UIComponent {
	return &plugin.UIComponent{
		Name: "AllViewerGallery",
		Kind: "panel",
		Props: map[string]any{
			"viewMode":      p.ViewMode(),
			"thumbnailSize": p.ThumbnailSize(),
			"showLabels":    p.Setting("showLabels", true),
		},
	}
}

// MenuItems contributes the view mode switchers.
func (p *Plugin) MenuItems() []plugin.MenuItem {
	return []plugin.MenuItem{
		{ID: "allviewer-grid", Label: "Grid View", Action: EventSetViewMode},
		{ID: "allviewer-list", Label: "List View", Action: EventSetViewMode},
		{ID: "allviewer-detail", Label: "Detail View", Action: EventSetViewMode},
	}
}

// KeyBindings binds the view modes to single keys.
func (p *Plugin) KeyBindings() []plugin.KeyBinding {
	return []plugin.KeyBinding{
		{Chord: "g", Action: EventSetViewMode},
		{Chord: "l", Action: EventSetViewMode},
		{Chord: "d", Action: EventSetViewMode},
	}
}

// ViewMode returns the current view mode setting.
func (p *Plugin) ViewMode() string {
	if mode, ok := p.Setting("viewMode", "grid").(string); ok && viewModes[mode] {
		return mode
	}
	return "grid"
}

// ThumbnailSize returns the clamped thumbnail edge length in pixels.
func (p *Plugin) ThumbnailSize() int {
	if size, ok := asInt(p.Setting("thumbnailSize", defaultThumbnailSize)); ok {
		return clamp(size, minThumbnailSize, maxThumbnailSize)
	}
	return defaultThumbnailSize
}

// Collection returns the last resolved collection.
func (p *Plugin) Collection() resource.Collection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collection
}

// onSetViewMode handles component-scoped view mode requests carrying a
// {"mode": "..."} payload. Unknown modes are ignored.
func (p *Plugin) onSetViewMode(env plugin.Envelope) {
	data, ok := env.Data.(map[string]any)
	if !ok {
		return
	}
	mode, ok := data["mode"].(string)
	if !ok || !viewModes[mode] {
		return
	}

	cfg := p.Config()
	cfg.Data["viewMode"] = mode
	if err := p.Base.UpdateConfig(cfg); err != nil {
		return
	}

	p.Context().Events.PublishFrom(ID, EventViewModeChanged, map[string]any{
		"mode": mode,
	})
}

func (p *Plugin) sourcePaths() []string {
	raw, ok := p.Setting("sourcePaths", nil).([]any)
	if !ok {
		return nil
	}
	paths := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			paths = append(paths, s)
		}
	}
	return paths
}

// asInt normalizes the numeric types YAML and JSON decoding produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
