// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package resource resolves image sources on disk into sorted collections.
package resource

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
)

// imageExtensions are the file extensions treated as images, lowercase with
// the leading dot.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// Filter narrows which files a source yields.
type Filter struct {
	// Extensions overrides the default image extensions when non-empty.
	// Entries are matched case-insensitively and may omit the leading dot.
	Extensions []string
	// Recursive descends into subdirectories of each include.
	Recursive bool
	// Exclude lists path prefixes to skip entirely.
	Exclude []string
}

// Source describes where a collection's images come from.
type Source struct {
	// ID keys the resolution cache. Sources with an empty ID resolve fresh
	// every time.
	ID       string
	Includes []string
	Filter   Filter
}

// ImageMeta is one resolved image file.
type ImageMeta struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Collection is the resolved, deduplicated, path-sorted set of images for a
// source.
type Collection struct {
	SourceID string
	Images   []ImageMeta
}

// Resolution pairs a collection with the source that produced it and when.
type Resolution struct {
	Source     Source
	Collection Collection
	ResolvedAt time.Time
}

// Manager resolves sources into collections and caches resolutions by source
// id. Safe for concurrent use.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string]Source
	cache   map[string]Resolution
}

// NewManager creates an empty resource manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		sources: make(map[string]Source),
		cache:   make(map[string]Resolution),
	}
}

// AddSource registers a named source for later LoadFromSource calls.
// Re-adding an id replaces the source and drops its cached resolution.
func (m *Manager) AddSource(src Source) error {
	if src.ID == "" {
		return oops.In("resource").Errorf("source id cannot be empty")
	}
	if len(src.Includes) == 0 {
		return oops.In("resource").With("source", src.ID).Errorf("source has no includes")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[src.ID] = src
	delete(m.cache, src.ID)
	return nil
}

// RemoveSource unregisters a source and drops its cached resolution.
func (m *Manager) RemoveSource(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sources, id)
	delete(m.cache, id)
}

// Sources returns the registered source ids, sorted.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Resolve walks a source's includes and returns its collection. Resolutions
// of sources with an id are cached; pass the same id again to get the cached
// collection until Invalidate or ClearCache.
func (m *Manager) Resolve(ctx context.Context, src Source) (Resolution, error) {
	if src.ID != "" {
		m.mu.RLock()
		cached, ok := m.cache[src.ID]
		m.mu.RUnlock()
		if ok {
			return cached, nil
		}
	}

	images, err := m.walk(ctx, src)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		Source:     src,
		Collection: Collection{SourceID: src.ID, Images: images},
		ResolvedAt: time.Now(),
	}

	if src.ID != "" {
		m.mu.Lock()
		m.cache[src.ID] = res
		m.mu.Unlock()
	}

	m.logger.Debug("resolved source",
		"source", src.ID,
		"images", len(images))
	return res, nil
}

// LoadCollection resolves an ad-hoc, uncached source made from the given
// paths, recursing into directories.
func (m *Manager) LoadCollection(ctx context.Context, paths []string) (Collection, error) {
	res, err := m.Resolve(ctx, Source{
		Includes: paths,
		Filter:   Filter{Recursive: true},
	})
	if err != nil {
		return Collection{}, err
	}
	return res.Collection, nil
}

// LoadFromSource resolves a previously registered source by id.
func (m *Manager) LoadFromSource(ctx context.Context, sourceID string) (Collection, error) {
	m.mu.RLock()
	src, ok := m.sources[sourceID]
	m.mu.RUnlock()
	if !ok {
		return Collection{}, oops.In("resource").
			With("source", sourceID).
			Errorf("source %q not registered", sourceID)
	}

	res, err := m.Resolve(ctx, src)
	if err != nil {
		return Collection{}, err
	}
	return res.Collection, nil
}

// Invalidate drops the cached resolution for one source id.
func (m *Manager) Invalidate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, id)
}

// ClearCache drops every cached resolution.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]Resolution)
}

// walk visits every include, collecting matching files deduplicated by path
// and sorted.
func (m *Manager) walk(ctx context.Context, src Source) ([]ImageMeta, error) {
	seen := make(map[string]ImageMeta)

	for _, include := range src.Includes {
		if err := ctx.Err(); err != nil {
			return nil, oops.In("resource").Wrap(err)
		}

		info, err := os.Stat(include)
		if err != nil {
			return nil, oops.In("resource").With("path", include).Wrap(err)
		}

		if !info.IsDir() {
			if matches(include, src.Filter) {
				seen[include] = metaFor(include, info)
			}
			continue
		}

		err = filepath.WalkDir(include, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if excluded(path, src.Filter.Exclude) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if !src.Filter.Recursive && path != include {
					return filepath.SkipDir
				}
				return nil
			}
			if !matches(path, src.Filter) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			seen[path] = metaFor(path, fi)
			return nil
		})
		if err != nil {
			return nil, oops.In("resource").With("path", include).Wrap(err)
		}
	}

	images := make([]ImageMeta, 0, len(seen))
	for _, meta := range seen {
		images = append(images, meta)
	}
	slices.SortFunc(images, func(a, b ImageMeta) int {
		return strings.Compare(a.Path, b.Path)
	})
	return images, nil
}

func metaFor(path string, info fs.FileInfo) ImageMeta {
	return ImageMeta{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

func matches(path string, f Filter) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	if len(f.Extensions) == 0 {
		return slices.Contains(imageExtensions, ext)
	}
	for _, want := range f.Extensions {
		want = strings.ToLower(want)
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}

func excluded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
