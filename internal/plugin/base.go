// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// Base is a composition helper providing default contract behavior. Embed it
// in a plugin and override what the plugin actually needs; there is no
// inheritance chain beyond this single embedding.
//
// Defaults: Activate and Deactivate succeed trivially, the presentation
// surface is empty, and Initialize loads the plugin's persisted config
// through the context's config accessor.
type Base struct {
	desc Descriptor

	mu   sync.Mutex
	pctx *Context
	cfg  Config
}

// NewBase creates the helper for the given descriptor.
func NewBase(desc Descriptor) *Base {
	return &Base{
		desc: desc,
		cfg:  Config{PluginID: desc.ID, Data: map[string]any{}},
	}
}

// Info returns the plugin's descriptor.
func (b *Base) Info() Descriptor { return b.desc }

// Initialize stores the context and loads the plugin's persisted config.
// Persisted values overlay any settings already applied, so a manifest seed
// survives a fresh install while saved user values still win. It fails only
// if the config accessor itself fails.
func (b *Base) Initialize(_ context.Context, pctx *Context) error {
	cfg, err := pctx.Config.PluginConfig(b.desc.ID)
	if err != nil {
		return oops.In("plugin").With("plugin", b.desc.ID).Hint("failed to load persisted config").Wrap(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pctx = pctx
	for k, v := range cfg.Data {
		b.cfg.Data[k] = v
	}
	b.cfg.Version = cfg.Version
	return nil
}

// Activate succeeds trivially.
func (b *Base) Activate(context.Context) error { return nil }

// Deactivate succeeds trivially.
func (b *Base) Deactivate(context.Context) error { return nil }

// UIComponent defaults to no contributed view.
func (b *Base) UIComponent() *UIComponent { return nil }

// MenuItems defaults to empty.
func (b *Base) MenuItems() []MenuItem { return nil }

// KeyBindings defaults to empty.
func (b *Base) KeyBindings() []KeyBinding { return nil }

// Config returns a copy of the plugin's current settings.
func (b *Base) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyConfig(b.cfg)
}

// UpdateConfig replaces the plugin's settings. A config addressed to a
// different plugin id is rejected.
func (b *Base) UpdateConfig(cfg Config) error {
	if cfg.PluginID != b.desc.ID {
		return oops.Code(CodeConfigIDMismatch).
			With("plugin", b.desc.ID).
			With("config_plugin", cfg.PluginID).
			Errorf("config addressed to %q, not %q", cfg.PluginID, b.desc.ID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = copyConfig(cfg)
	return nil
}

// Context returns the capability context stored by Initialize, or nil before
// initialization. For use by embedding plugins.
func (b *Base) Context() *Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pctx
}

// Setting reads one key from the plugin's config data, falling back to def.
func (b *Base) Setting(key string, def any) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.cfg.Data[key]; ok {
		return v
	}
	return def
}

func copyConfig(cfg Config) Config {
	data := make(map[string]any, len(cfg.Data))
	for k, v := range cfg.Data {
		data[k] = v
	}
	cfg.Data = data
	return cfg
}
