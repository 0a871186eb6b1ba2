// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

import (
	"context"
	"log/slog"

	"github.com/mosaicview/mosaic/internal/bus"
	"github.com/mosaicview/mosaic/internal/resource"
)

// Envelope and Handler alias the bus types so plugins only import this
// package.
type (
	Envelope = bus.Envelope
	Handler  = bus.Handler
)

// Events is the bus surface exposed to plugins and the registry.
// *bus.Bus satisfies it.
type Events interface {
	Subscribe(eventType string, handler bus.Handler) func()
	SubscribeComponent(componentID, eventType string, handler bus.Handler) func()
	UnsubscribeComponent(componentID string)
	Publish(eventType string, data any) bool
	PublishFrom(sourceID, eventType string, data any) bool
	PublishTo(targetID, eventType string, data any) bool
	PublishBetween(sourceID, targetID, eventType string, data any) bool
}

// ConfigStore is the configuration persistence surface. It must tolerate
// being called before its backing file is loaded (returning defaults and
// logging a warning).
type ConfigStore interface {
	Get(key string, def any) any
	Set(key string, value any, autoSave bool) error
	PluginConfig(id string) (Config, error)
	SavePluginConfig(cfg Config) error
}

// Resources is the image resource surface exposed to plugins.
type Resources interface {
	Resolve(ctx context.Context, src resource.Source) (resource.Resolution, error)
	LoadCollection(ctx context.Context, paths []string) (resource.Collection, error)
	LoadFromSource(ctx context.Context, sourceID string) (resource.Collection, error)
}

// Context is the fixed bundle of collaborator handles given to every plugin.
// It is built once at registry construction, shared by reference, and never
// mutated afterward; plugins mutate only the data reachable through it.
type Context struct {
	Events    Events
	Config    ConfigStore
	Resources Resources
	Logger    *slog.Logger
}

// NewContext bundles the collaborators for plugin consumption. A nil logger
// falls back to slog.Default().
func NewContext(events Events, cfg ConfigStore, res Resources, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		Events:    events,
		Config:    cfg,
		Resources: res,
		Logger:    logger,
	}
}
