// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package findme_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicview/mosaic/internal/bus"
	"github.com/mosaicview/mosaic/internal/config"
	"github.com/mosaicview/mosaic/internal/plugin"
	"github.com/mosaicview/mosaic/internal/resource"
	"github.com/mosaicview/mosaic/plugins/findme"
)

// newGameContext builds a context whose "gallery" source holds the given
// image names.
func newGameContext(t *testing.T, names ...string) (*plugin.Context, *bus.Bus, string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o600))
	}

	b := bus.New()
	cfg := config.NewManager(filepath.Join(t.TempDir(), "mosaic.yaml"), nil)
	require.NoError(t, cfg.Load())
	res := resource.NewManager(nil)
	if len(names) > 0 {
		require.NoError(t, res.AddSource(resource.Source{ID: "gallery", Includes: []string{dir}}))
	}
	return plugin.NewContext(b, cfg, res, nil), b, dir
}

func TestPlugin_Descriptor(t *testing.T) {
	p := findme.New()
	desc := p.Info()
	assert.Equal(t, findme.ID, desc.ID)
	assert.NoError(t, desc.Validate())
	assert.Equal(t, []string{"allviewer"}, desc.Dependencies)
}

func TestPlugin_ActivateStartsRound(t *testing.T) {
	pctx, b, _ := newGameContext(t, "a.jpg", "b.jpg")

	started := 0
	b.Subscribe(findme.EventRoundStarted, func(env bus.Envelope) {
		started++
		data := env.Data.(map[string]any)
		assert.Equal(t, 2, data["images"])
		assert.Equal(t, 60, data["timeLimitSeconds"])
	})

	p := findme.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.NoError(t, p.Activate(t.Context()))
	assert.Equal(t, 1, started)
}

func TestPlugin_ActivateFailsOnEmptyGallery(t *testing.T) {
	pctx, _, _ := newGameContext(t)

	p := findme.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.Error(t, p.Activate(t.Context()))
}

func TestPlugin_CorrectGuessScores(t *testing.T) {
	// Single image makes the round's target deterministic.
	pctx, b, dir := newGameContext(t, "only.jpg")

	var ended, scored []map[string]any
	b.Subscribe(findme.EventRoundEnded, func(env bus.Envelope) {
		ended = append(ended, env.Data.(map[string]any))
	})
	b.Subscribe(findme.EventScoreChanged, func(env bus.Envelope) {
		scored = append(scored, env.Data.(map[string]any))
	})

	p := findme.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.NoError(t, p.Activate(t.Context()))

	b.PublishTo(findme.ID, findme.EventGuess, map[string]any{
		"path": filepath.Join(dir, "only.jpg"),
	})

	assert.Equal(t, 1, p.Score())
	require.Len(t, ended, 1)
	assert.Equal(t, true, ended[0]["found"])
	require.Len(t, scored, 1)
	assert.Equal(t, 1, scored[0]["score"])

	// Score persists through the config store.
	cfg, err := pctx.Config.PluginConfig(findme.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Data["score"])
}

func TestPlugin_WrongGuessIgnored(t *testing.T) {
	pctx, b, _ := newGameContext(t, "only.jpg")

	ended := 0
	b.Subscribe(findme.EventRoundEnded, func(bus.Envelope) { ended++ })

	p := findme.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.NoError(t, p.Activate(t.Context()))

	b.PublishTo(findme.ID, findme.EventGuess, map[string]any{"path": "/nope.jpg"})

	assert.Zero(t, p.Score())
	assert.Zero(t, ended, "a wrong guess keeps the round running")
}

func TestPlugin_GuessWithoutRoundIgnored(t *testing.T) {
	pctx, b, dir := newGameContext(t, "only.jpg")

	p := findme.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))

	b.PublishTo(findme.ID, findme.EventGuess, map[string]any{
		"path": filepath.Join(dir, "only.jpg"),
	})
	assert.Zero(t, p.Score())
}

func TestPlugin_DeactivateEndsRunningRound(t *testing.T) {
	pctx, b, _ := newGameContext(t, "only.jpg")

	var reasons []any
	b.Subscribe(findme.EventRoundEnded, func(env bus.Envelope) {
		reasons = append(reasons, env.Data.(map[string]any)["reason"])
	})

	p := findme.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	require.NoError(t, p.Activate(t.Context()))
	require.NoError(t, p.Deactivate(t.Context()))

	assert.Equal(t, []any{"deactivated"}, reasons)
}

func TestPlugin_DifficultyConfig(t *testing.T) {
	p := findme.New()
	assert.Equal(t, "medium", p.Difficulty())
	assert.Equal(t, 60*time.Second, p.TimeLimit())

	require.NoError(t, p.UpdateConfig(plugin.Config{
		PluginID: findme.ID,
		Data:     map[string]any{"difficulty": "hard"},
	}))
	assert.Equal(t, 30*time.Second, p.TimeLimit())

	err := p.UpdateConfig(plugin.Config{
		PluginID: findme.ID,
		Data:     map[string]any{"difficulty": "impossible"},
	})
	require.Error(t, err)
	assert.Equal(t, "hard", p.Difficulty(), "a rejected config must not apply")
}

func TestPlugin_RestoresPersistedScore(t *testing.T) {
	pctx, _, _ := newGameContext(t, "only.jpg")
	require.NoError(t, pctx.Config.SavePluginConfig(plugin.Config{
		PluginID: findme.ID,
		Data:     map[string]any{"score": 7},
	}))

	p := findme.New()
	require.NoError(t, p.Initialize(t.Context(), pctx))
	assert.Equal(t, 7, p.Score())
}
