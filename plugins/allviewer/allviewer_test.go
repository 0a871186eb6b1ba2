// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package allviewer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicview/mosaic/internal/bus"
	"github.com/mosaicview/mosaic/internal/config"
	"github.com/mosaicview/mosaic/internal/plugin"
	"github.com/mosaicview/mosaic/internal/resource"
	"github.com/mosaicview/mosaic/plugins/allviewer"
)

func newTestContext(t *testing.T) (*plugin.Context, *bus.Bus) {
	t.Helper()
	b := bus.New()
	cfg := config.NewManager(filepath.Join(t.TempDir(), "mosaic.yaml"), nil)
	require.NoError(t, cfg.Load())
	res := resource.NewManager(nil)
	return plugin.NewContext(b, cfg, res, nil), b
}

func galleryDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o600))
	}
	return dir
}

func TestPlugin_Descriptor(t *testing.T) {
	p := allviewer.New()
	desc := p.Info()
	assert.Equal(t, allviewer.ID, desc.ID)
	assert.Equal(t, allviewer.Version, desc.Version)
	assert.NoError(t, desc.Validate())
}

func TestPlugin_ActivateLoadsConfiguredPaths(t *testing.T) {
	pctx, b := newTestContext(t)
	dir := galleryDir(t, "a.jpg", "b.png")

	loaded := 0
	var count any
	b.Subscribe(allviewer.EventCollectionLoaded, func(env bus.Envelope) {
		loaded++
		count = env.Data.(map[string]any)["count"]
	})

	p := allviewer.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.NoError(t, p.UpdateConfig(plugin.Config{
		PluginID: allviewer.ID,
		Data:     map[string]any{"sourcePaths": []any{dir}},
	}))
	require.NoError(t, p.Activate(t.Context()))

	assert.Equal(t, 1, loaded)
	assert.Equal(t, 2, count)
	assert.Len(t, p.Collection().Images, 2)
}

func TestPlugin_ActivateWithoutPathsIsEmptyGallery(t *testing.T) {
	pctx, _ := newTestContext(t)

	p := allviewer.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.NoError(t, p.Activate(t.Context()))
	assert.Empty(t, p.Collection().Images)
}

func TestPlugin_UpdateConfigValidation(t *testing.T) {
	p := allviewer.New()

	err := p.UpdateConfig(plugin.Config{
		PluginID: allviewer.ID,
		Data:     map[string]any{"viewMode": "mosaic"},
	})
	require.Error(t, err)

	// Thumbnail size is clamped, not rejected.
	require.NoError(t, p.UpdateConfig(plugin.Config{
		PluginID: allviewer.ID,
		Data:     map[string]any{"thumbnailSize": 9999},
	}))
	assert.Equal(t, 300, p.ThumbnailSize())

	require.NoError(t, p.UpdateConfig(plugin.Config{
		PluginID: allviewer.ID,
		Data:     map[string]any{"thumbnailSize": 1},
	}))
	assert.Equal(t, 50, p.ThumbnailSize())
}

func TestPlugin_UpdateConfigLeavesInputUntouched(t *testing.T) {
	p := allviewer.New()

	data := map[string]any{"thumbnailSize": 9999}
	require.NoError(t, p.UpdateConfig(plugin.Config{
		PluginID: allviewer.ID,
		Data:     data,
	}))

	assert.Equal(t, 300, p.ThumbnailSize())
	assert.Equal(t, 9999, data["thumbnailSize"], "clamping must not mutate the caller's map")
}

func TestPlugin_SetViewModeEvent(t *testing.T) {
	pctx, b := newTestContext(t)

	changed := 0
	b.Subscribe(allviewer.EventViewModeChanged, func(bus.Envelope) { changed++ })

	p := allviewer.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	assert.Equal(t, "grid", p.ViewMode())

	b.PublishTo(allviewer.ID, allviewer.EventSetViewMode, map[string]any{"mode": "list"})
	assert.Equal(t, "list", p.ViewMode())
	assert.Equal(t, 1, changed)

	// Unknown modes are ignored.
	b.PublishTo(allviewer.ID, allviewer.EventSetViewMode, map[string]any{"mode": "spiral"})
	assert.Equal(t, "list", p.ViewMode())
	assert.Equal(t, 1, changed)
}

func TestPlugin_DeactivateDropsSubscriptions(t *testing.T) {
	pctx, b := newTestContext(t)

	p := allviewer.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.NoError(t, p.Activate(t.Context()))
	require.NoError(t, p.Deactivate(t.Context()))

	b.PublishTo(allviewer.ID, allviewer.EventSetViewMode, map[string]any{"mode": "detail"})
	assert.Equal(t, "grid", p.ViewMode(), "a deactivated plugin must not react to events")
}

func TestPlugin_Surface(t *testing.T) {
	p := allviewer.New()

	ui := p.UIComponent()
	require.NotNil(t, ui)
	assert.Equal(t, "AllViewerGallery", ui.Name)
	assert.Equal(t, "grid", ui.Props["viewMode"])

	assert.Len(t, p.MenuItems(), 3)
	assert.Len(t, p.KeyBindings(), 3)
}
