// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

import (
	"context"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/mosaicview/mosaic/pkg/errutil"
)

// Discovered pairs a parsed manifest with the directory it came from.
type Discovered struct {
	Manifest *Manifest
	Dir      string
}

// Discover finds all valid plugin manifests under pluginsDir. Invalid
// manifests are logged and skipped; a missing directory yields no manifests
// and no error.
func (r *Registry) Discover(_ context.Context, pluginsDir string) ([]*Discovered, error) {
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.With("dir", pluginsDir).Hint("failed to read plugins directory").Wrap(err)
	}

	var found []*Discovered
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(pluginsDir, entry.Name())
		manifestPath := filepath.Join(pluginDir, ManifestFileName)

		data, err := os.ReadFile(manifestPath) //nolint:gosec // manifestPath is constructed from ReadDir entries
		if err != nil {
			r.logger.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		if err := ValidateSchema(data); err != nil {
			r.logger.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", FormatSchemaError(err))
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			r.logger.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		found = append(found, &Discovered{Manifest: manifest, Dir: pluginDir})
	}

	return found, nil
}

// LoadAll discovers manifests under pluginsDir and registers the matching
// catalog plugins. When no manifests exist the whole catalog is registered,
// so a fresh install still comes up with its built-in plugins.
//
// Loading uses graceful degradation: a failure on one manifest is logged and
// the loop continues, so no single bad plugin blocks the rest. LoadAll
// publishes registry:initialized once the pass completes.
func (r *Registry) LoadAll(ctx context.Context, pluginsDir string, catalog *Catalog) error {
	discovered, err := r.Discover(ctx, pluginsDir)
	if err != nil {
		return err
	}

	if len(discovered) == 0 {
		for _, id := range catalog.IDs() {
			if err := r.loadFromCatalog(ctx, catalog, id, nil); err != nil {
				errutil.LogError(r.logger, "failed to load plugin", err)
			}
		}
	} else {
		for _, d := range discovered {
			if !d.Manifest.IsEnabled() {
				r.logger.Info("plugin disabled by manifest", "plugin", d.Manifest.ID)
				continue
			}
			if err := r.loadFromCatalog(ctx, catalog, d.Manifest.ID, d.Manifest); err != nil {
				errutil.LogError(r.logger, "failed to load plugin", err)
			}
		}
	}

	r.publish(event{EventRegistryInitialized, map[string]any{}})
	return nil
}

// loadFromCatalog instantiates one catalog plugin, applies its manifest if
// present, and registers it.
func (r *Registry) loadFromCatalog(ctx context.Context, catalog *Catalog, id string, manifest *Manifest) error {
	p, err := catalog.New(id)
	if err != nil {
		return err
	}
	desc := p.Info()

	if manifest != nil {
		if err := manifest.Satisfies(desc); err != nil {
			return oops.Code(CodeInvalidManifest).With("plugin", id).Wrap(err)
		}
		// A manifest without capabilities leaves the plugin unregistered in
		// the enforcer, which means full trust. Declaring any capability
		// limits the plugin's resource access to what the grants match.
		if r.enforcer != nil && len(manifest.Capabilities) > 0 {
			if err := r.enforcer.SetGrants(id, manifest.Capabilities); err != nil {
				return oops.Code(CodeInvalidManifest).With("plugin", id).Wrap(err)
			}
		}
		if len(manifest.Settings) > 0 {
			seed := Config{PluginID: id, Data: manifest.Settings}
			if err := callPlugin(func() error { return p.UpdateConfig(seed) }); err != nil {
				return oops.Code(CodeInvalidManifest).
					With("plugin", id).
					Hint("manifest settings rejected").
					Wrap(err)
			}
		}
	}

	if err := r.Register(ctx, p); err != nil {
		return err
	}

	r.logger.Info("loaded plugin",
		"plugin", id,
		"version", desc.Version)
	return nil
}
