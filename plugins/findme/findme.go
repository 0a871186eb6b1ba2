// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package findme is the built-in hidden-image game plugin. Each round picks
// one image from the gallery; the player has to spot it before the timer
// runs out.
package findme

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/mosaicview/mosaic/internal/plugin"
)

// ID is the plugin's registry id.
const ID = "findme"

// Version is the compiled-in plugin version; manifests pin against it.
const Version = "0.9.0"

const (
	// EventRoundStarted announces a new round with its time limit.
	EventRoundStarted = "findme:roundStarted"
	// EventRoundEnded announces the round's outcome.
	EventRoundEnded = "findme:roundEnded"
	// EventScoreChanged announces the running score.
	EventScoreChanged = "findme:scoreChanged"
	// EventGuess is the component-scoped guess carrying {"path": ...}.
	EventGuess = "findme:guess"
)

// timeLimits maps difficulty to seconds per round.
var timeLimits = map[string]int{"easy": 120, "medium": 60, "hard": 30}

// Plugin runs the find-the-image game over the resolved gallery.
type Plugin struct {
	*plugin.Base

	mu      sync.Mutex
	target  string
	started time.Time
	score   int
	unsubs  []func()
}

// New creates the plugin. Use it as a catalog factory.
func New() *Plugin {
	return &Plugin{
		Base: plugin.NewBase(plugin.Descriptor{
			ID:           ID,
			Name:         "Find Me",
			Version:      Version,
			Description:  "Spot the hidden image before time runs out",
			Author:       "Mosaic Contributors",
			Icon:         "search",
			Dependencies: []string{"allviewer"},
		}),
	}
}

// Factory adapts New to the catalog's factory signature.
func Factory() plugin.Plugin { return New() }

// Initialize restores the persisted score and subscribes to guesses.
func (p *Plugin) Initialize(ctx context.Context, pctx *plugin.Context) error {
	if err := p.Base.Initialize(ctx, pctx); err != nil {
		return err
	}

	unsub := pctx.Events.SubscribeComponent(ID, EventGuess, p.onGuess)

	p.mu.Lock()
	p.unsubs = append(p.unsubs, unsub)
	if score, ok := asInt(p.Setting("score", 0)); ok {
		p.score = score
	}
	p.mu.Unlock()
	return nil
}

// Activate starts the first round.
func (p *Plugin) Activate(ctx context.Context) error {
	return p.StartRound(ctx)
}

// Deactivate ends any running round and drops subscriptions.
func (p *Plugin) Deactivate(context.Context) error {
	p.mu.Lock()
	running := p.target != ""
	p.target = ""
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if running {
		p.Context().Events.PublishFrom(ID, EventRoundEnded, map[string]any{
			"found": false, "reason": "deactivated",
		})
	}
	return nil
}

// UpdateConfig validates the difficulty before storing settings.
func (p *Plugin) UpdateConfig(cfg plugin.Config) error {
	if d, ok := cfg.Data["difficulty"].(string); ok {
		if _, known := timeLimits[d]; !known {
			return oops.In(ID).
				With("difficulty", d).
				Errorf("difficulty must be easy, medium, or hard")
		}
	}
	return p.Base.UpdateConfig(cfg)
}

// UIComponent contributes the game overlay.
func (p *Plugin) UIComponent() *plugin.UIComponent {
	return &plugin.UIComponent{
		Name: "FindMeOverlay",
		Kind: "overlay",
		Props: map[string]any{
			"difficulty": p.Difficulty(),
			"score":      p.Score(),
		},
	}
}

// MenuItems contributes the round controls.
func (p *Plugin) MenuItems() []plugin.MenuItem {
	return []plugin.MenuItem{
		{ID: "findme-new-round", Label: "New Round", Action: EventRoundStarted},
	}
}

// KeyBindings binds starting a round to "n".
func (p *Plugin) KeyBindings() []plugin.KeyBinding {
	return []plugin.KeyBinding{
		{Chord: "n", Action: EventRoundStarted},
	}
}

// StartRound picks a random image as the new target and announces the round.
// An empty gallery fails the round before it starts.
func (p *Plugin) StartRound(ctx context.Context) error {
	pctx := p.Context()

	coll, err := pctx.Resources.LoadFromSource(ctx, "gallery")
	if err != nil {
		return oops.In(ID).Hint("failed to load gallery for a round").Wrap(err)
	}
	if len(coll.Images) == 0 {
		return oops.In(ID).Errorf("cannot start a round over an empty gallery")
	}

	target := coll.Images[rand.IntN(len(coll.Images))].Path
	limit := p.TimeLimit()

	p.mu.Lock()
	p.target = target
	p.started = time.Now()
	p.mu.Unlock()

	pctx.Events.PublishFrom(ID, EventRoundStarted, map[string]any{
		"images":           len(coll.Images),
		"timeLimitSeconds": int(limit.Seconds()),
	})
	return nil
}

// Difficulty returns the configured difficulty.
func (p *Plugin) Difficulty() string {
	if d, ok := p.Setting("difficulty", "medium").(string); ok {
		if _, known := timeLimits[d]; known {
			return d
		}
	}
	return "medium"
}

// TimeLimit returns the per-round limit for the configured difficulty.
func (p *Plugin) TimeLimit() time.Duration {
	return time.Duration(timeLimits[p.Difficulty()]) * time.Second
}

// Score returns the running score.
func (p *Plugin) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

// onGuess scores a component-scoped guess. A correct guess inside the time
// limit ends the round and bumps the score; a late or wrong guess ends or
// ignores it.
func (p *Plugin) onGuess(env plugin.Envelope) {
	data, ok := env.Data.(map[string]any)
	if !ok {
		return
	}
	path, ok := data["path"].(string)
	if !ok {
		return
	}

	limit := p.TimeLimit()

	p.mu.Lock()
	if p.target == "" {
		p.mu.Unlock()
		return
	}
	elapsed := time.Since(p.started)
	if elapsed > limit {
		p.target = ""
		p.mu.Unlock()
		p.Context().Events.PublishFrom(ID, EventRoundEnded, map[string]any{
			"found": false, "reason": "timeout",
		})
		return
	}
	if path != p.target {
		p.mu.Unlock()
		return
	}
	p.target = ""
	p.score++
	score := p.score
	p.mu.Unlock()

	events := p.Context().Events
	events.PublishFrom(ID, EventRoundEnded, map[string]any{
		"found":          true,
		"elapsedSeconds": int(elapsed.Seconds()),
	})
	events.PublishFrom(ID, EventScoreChanged, map[string]any{"score": score})

	cfg := p.Config()
	cfg.Data["score"] = score
	if err := p.Base.UpdateConfig(cfg); err == nil {
		if err := p.Context().Config.SavePluginConfig(p.Config()); err != nil {
			p.Context().Logger.Warn("failed to persist score", "plugin", ID, "error", err)
		}
	}
}

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
