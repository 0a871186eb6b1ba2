// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the per-plugin manifest read by the loader.
const ManifestFileName = "plugin.yaml"

// Manifest represents a plugin.yaml file. A manifest selects a plugin from
// the compiled-in catalog and configures how the host loads it: whether it
// is enabled, which capabilities it is granted, and its initial settings.
type Manifest struct {
	ID           string         `yaml:"id" json:"id"`
	Version      string         `yaml:"version" json:"version"`
	Enabled      *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Capabilities []string       `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Settings     map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// IsEnabled reports whether the manifest enables its plugin. Absent means
// enabled.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.ID == "" || !idPattern.MatchString(m.ID) {
		return fmt.Errorf("id %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.ID)
	}
	if len(m.ID) > maxIDLength {
		return fmt.Errorf("id must be %d characters or less, got %d", maxIDLength, len(m.ID))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
	}

	for i, cap := range m.Capabilities {
		if cap == "" {
			return fmt.Errorf("capability %d is empty", i)
		}
	}

	return nil
}

// Satisfies reports whether the descriptor's version satisfies the version
// pinned by the manifest. Manifests pin exact versions; a compiled-in plugin
// of a different version is refused rather than silently loaded.
func (m *Manifest) Satisfies(desc Descriptor) error {
	want, err := semver.NewVersion(m.Version)
	if err != nil {
		return fmt.Errorf("manifest version %q is not valid semver: %w", m.Version, err)
	}
	got, err := semver.NewVersion(desc.Version)
	if err != nil {
		return fmt.Errorf("plugin version %q is not valid semver: %w", desc.Version, err)
	}
	if !want.Equal(got) {
		return fmt.Errorf("manifest pins version %s but plugin %q is version %s", want, desc.ID, got)
	}
	return nil
}
