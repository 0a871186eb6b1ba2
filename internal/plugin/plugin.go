// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package plugin provides the plugin capability contract and the registry
// that drives every plugin through its lifecycle.
package plugin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// Descriptor is the immutable identity and metadata of a plugin. The ID is
// the identity key and must be unique among registered plugins.
type Descriptor struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Author       string   `json:"author,omitempty" yaml:"author,omitempty"`
	Icon         string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// maxIDLength is the maximum allowed length for plugin IDs.
const maxIDLength = 64

// idPattern validates plugin IDs: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens, and must not end with
// a hyphen. Single character IDs are allowed.
var idPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// Validate checks descriptor constraints.
func (d Descriptor) Validate() error {
	if d.ID == "" || !idPattern.MatchString(d.ID) {
		return fmt.Errorf("id %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", d.ID)
	}
	if len(d.ID) > maxIDLength {
		return fmt.Errorf("id must be %d characters or less, got %d", maxIDLength, len(d.ID))
	}
	if d.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(d.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", d.Version, err)
	}
	return nil
}

// Config holds a plugin's local settings. PluginID ties the config to its
// owner; UpdateConfig rejects a config addressed to a different plugin.
type Config struct {
	PluginID string         `json:"pluginId" yaml:"pluginId"`
	Data     map[string]any `json:"data" yaml:"data"`
	Version  int            `json:"version,omitempty" yaml:"version,omitempty"`
}

// UIComponent describes the view a plugin contributes to the presentation
// layer. The host never renders it; it is declarative data consumed
// elsewhere.
type UIComponent struct {
	Name  string         `json:"name"`
	Kind  string         `json:"kind"` // e.g. "grid", "game", "panel"
	Props map[string]any `json:"props,omitempty"`
}

// MenuItem is one entry a plugin contributes to the host menu.
type MenuItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Action string `json:"action"` // event type published when selected
}

// KeyBinding maps a key chord to an action event type.
type KeyBinding struct {
	Chord  string `json:"chord"` // e.g. "ctrl+shift+f"
	Action string `json:"action"`
}

// Plugin is the contract every feature module must satisfy. The registry is
// the only caller of the lifecycle methods and guarantees it never invokes
// Activate on an already-Active plugin or Deactivate on a non-Active one.
//
// Lifecycle methods report failure by returning a non-nil error; the registry
// additionally recovers panics at its boundary, so a failing plugin can never
// unwind the host's call stack.
type Plugin interface {
	// Info returns the plugin's descriptor. Pure; called on registration.
	Info() Descriptor

	// Initialize is called at most once per registration, while the plugin
	// is Unloaded and after all of its declared dependencies initialized.
	// On nil return the plugin must be ready to be activated.
	Initialize(ctx context.Context, pctx *Context) error

	// Activate and Deactivate toggle the plugin between Active and Inactive.
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error

	// Presentation surface, consumed by the host's view layer.
	UIComponent() *UIComponent
	MenuItems() []MenuItem
	KeyBindings() []KeyBinding

	// Config returns the plugin's current local settings; UpdateConfig
	// validates and applies a replacement.
	Config() Config
	UpdateConfig(cfg Config) error
}
