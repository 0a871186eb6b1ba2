// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package config persists host and plugin settings in a single YAML file.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"gopkg.in/yaml.v3"

	"github.com/mosaicview/mosaic/internal/plugin"
)

const saveAttempts = 3

// Manager implements plugin.ConfigStore on top of a koanf tree backed by one
// YAML file. Plugin settings live under "plugins.<id>.settings" with a
// monotonic "plugins.<id>.version" beside them.
//
// Reads before Load return defaults with a one-time warning instead of
// failing, so early callers degrade instead of crashing the host.
type Manager struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	k      *koanf.Koanf
	loaded bool

	warnOnce sync.Once
}

var _ plugin.ConfigStore = (*Manager)(nil)

// NewManager creates a manager for the given config file path. Nothing is
// read until Load.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		path:   path,
		logger: logger,
		k:      koanf.New("."),
	}
}

// Path returns the backing file path.
func (m *Manager) Path() string { return m.path }

// Load reads the backing file into the tree. A missing file is not an error;
// the manager starts empty and creates the file on first Save.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := koanf.New(".")
	if _, err := os.Stat(m.path); err == nil {
		if err := k.Load(kfile.Provider(m.path), kyaml.Parser()); err != nil {
			return oops.In("config").With("path", m.path).Hint("failed to parse config file").Wrap(err)
		}
	} else if !os.IsNotExist(err) {
		return oops.In("config").With("path", m.path).Wrap(err)
	}

	m.k = k
	m.loaded = true
	return nil
}

// Get reads one key, falling back to def when the key is absent. Called
// before Load it warns once and returns def.
func (m *Manager) Get(key string, def any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.loaded {
		m.warnOnce.Do(func() {
			m.logger.Warn("config read before load, returning defaults", "key", key)
		})
		return def
	}
	if !m.k.Exists(key) {
		return def
	}
	return m.k.Get(key)
}

// Set writes one key into the tree and optionally persists the whole tree.
func (m *Manager) Set(key string, value any, autoSave bool) error {
	m.mu.Lock()
	if err := m.k.Set(key, value); err != nil {
		m.mu.Unlock()
		return oops.In("config").With("key", key).Wrap(err)
	}
	m.mu.Unlock()

	if autoSave {
		return m.Save(context.Background())
	}
	return nil
}

// PluginConfig returns a plugin's persisted settings. A plugin with no
// persisted settings gets an empty config at version 0, not an error.
func (m *Manager) PluginConfig(id string) (plugin.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := plugin.Config{PluginID: id, Data: map[string]any{}}
	if !m.loaded {
		m.warnOnce.Do(func() {
			m.logger.Warn("config read before load, returning defaults", "plugin", id)
		})
		return cfg, nil
	}

	base := "plugins." + id
	if raw := m.k.Get(base + ".settings"); raw != nil {
		data, ok := raw.(map[string]any)
		if !ok {
			return plugin.Config{}, oops.In("config").
				With("plugin", id).
				Errorf("settings for %q are %T, not a mapping", id, raw)
		}
		for k, v := range data {
			cfg.Data[k] = v
		}
	}
	cfg.Version = m.k.Int(base + ".version")
	return cfg, nil
}

// SavePluginConfig stores a plugin's settings in the tree and persists it.
func (m *Manager) SavePluginConfig(cfg plugin.Config) error {
	m.mu.Lock()
	base := "plugins." + cfg.PluginID
	if err := m.k.Set(base+".settings", cfg.Data); err != nil {
		m.mu.Unlock()
		return oops.In("config").With("plugin", cfg.PluginID).Wrap(err)
	}
	if err := m.k.Set(base+".version", cfg.Version); err != nil {
		m.mu.Unlock()
		return oops.In("config").With("plugin", cfg.PluginID).Wrap(err)
	}
	m.mu.Unlock()

	return m.Save(context.Background())
}

// Save writes the whole tree to the backing file. The write goes through a
// temp file and rename so a crash mid-write never truncates the config, and
// transient filesystem errors are retried with fibonacci backoff.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.RLock()
	raw := m.k.Raw()
	m.mu.RUnlock()

	data, err := yaml.Marshal(raw)
	if err != nil {
		return oops.In("config").With("path", m.path).Hint("failed to marshal config").Wrap(err)
	}

	backoff := retry.WithMaxRetries(saveAttempts, retry.NewFibonacci(50*time.Millisecond))
	err = retry.Do(ctx, backoff, func(_ context.Context) error {
		if err := writeAtomic(m.path, data); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.In("config").With("path", m.path).Hint("failed to write config file").Wrap(err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
