// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/mosaicview/mosaic/internal/bus"
	"github.com/mosaicview/mosaic/internal/config"
	"github.com/mosaicview/mosaic/internal/plugin"
	"github.com/mosaicview/mosaic/internal/plugin/capability"
	"github.com/mosaicview/mosaic/internal/resource"
	"github.com/mosaicview/mosaic/plugins/allviewer"
	"github.com/mosaicview/mosaic/plugins/findme"
)

// hostEnv wires the full host stack the way cmd/mosaic does.
type hostEnv struct {
	bus        *bus.Bus
	cfg        *config.Manager
	resources  *resource.Manager
	enforcer   *capability.Enforcer
	registry   *plugin.Registry
	catalog    *plugin.Catalog
	pluginsDir string
	galleryDir string

	mu     sync.Mutex
	events []string
}

func newHostEnv(images ...string) *hostEnv {
	tmpDir, err := os.MkdirTemp("", "mosaic-test-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = os.RemoveAll(tmpDir) })

	env := &hostEnv{
		pluginsDir: filepath.Join(tmpDir, "plugins.d"),
		galleryDir: filepath.Join(tmpDir, "gallery"),
	}

	Expect(os.MkdirAll(env.galleryDir, 0o750)).To(Succeed())
	for _, name := range images {
		Expect(os.WriteFile(filepath.Join(env.galleryDir, name), []byte("img"), 0o600)).To(Succeed())
	}

	env.bus = bus.New()
	for _, typ := range []string{
		plugin.EventRegistered, plugin.EventInitialized, plugin.EventActivated,
		plugin.EventDeactivated, plugin.EventUnregistered, plugin.EventError,
		plugin.EventRegistryInitialized,
	} {
		env.bus.Subscribe(typ, func(e bus.Envelope) {
			env.mu.Lock()
			env.events = append(env.events, e.Type)
			env.mu.Unlock()
		})
	}

	env.cfg = config.NewManager(filepath.Join(tmpDir, "mosaic.yaml"), nil)
	Expect(env.cfg.Load()).To(Succeed())

	env.resources = resource.NewManager(nil)
	Expect(env.resources.AddSource(resource.Source{
		ID:       "gallery",
		Includes: []string{env.galleryDir},
		Filter:   resource.Filter{Recursive: true},
	})).To(Succeed())

	env.enforcer = capability.NewEnforcer()
	pctx := plugin.NewContext(env.bus, env.cfg, env.resources, nil)
	env.registry = plugin.NewRegistry(pctx, plugin.Options{AutoInitialize: true},
		plugin.WithEnforcer(env.enforcer))

	env.catalog = plugin.NewCatalog()
	Expect(env.catalog.Add(allviewer.ID, allviewer.Factory)).To(Succeed())
	Expect(env.catalog.Add(findme.ID, findme.Factory)).To(Succeed())
	return env
}

func (env *hostEnv) writeManifest(id, content string) {
	dir := filepath.Join(env.pluginsDir, id)
	Expect(os.MkdirAll(dir, 0o750)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(dir, plugin.ManifestFileName), []byte(content), 0o600)).To(Succeed())
}

func (env *hostEnv) eventTypes() []string {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]string(nil), env.events...)
}

var _ = Describe("Plugin host lifecycle", func() {
	It("loads manifests, initializes, and activates the built-in plugins", func(ctx SpecContext) {
		env := newHostEnv("a.jpg", "b.jpg")
		env.writeManifest("allviewer", "id: allviewer\nversion: "+allviewer.Version+"\ncapabilities:\n  - resources.read.**\n")
		env.writeManifest("findme", "id: findme\nversion: "+findme.Version+"\n")

		Expect(env.registry.LoadAll(ctx, env.pluginsDir, env.catalog)).To(Succeed())
		Expect(env.registry.Count()).To(Equal(2))
		Expect(env.eventTypes()).To(ContainElement(plugin.EventRegistryInitialized))
		Expect(env.enforcer.Check("allviewer", "resources.read.collection")).To(BeTrue())

		// findme declares allviewer as a dependency; activating it drives
		// both plugins through initialization.
		Expect(env.registry.Activate(ctx, "findme")).To(Succeed())

		st, err := env.registry.StateOf("findme")
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(plugin.StateActive))
		st, err = env.registry.StateOf("allviewer")
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(plugin.StateInitialized))
	})

	It("runs a full find-me round over the real bus and persists the score", func(ctx SpecContext) {
		env := newHostEnv("only.jpg")

		Expect(env.registry.LoadAll(ctx, env.pluginsDir, env.catalog)).To(Succeed())
		Expect(env.registry.Activate(ctx, "findme")).To(Succeed())

		var ended []map[string]any
		env.bus.Subscribe(findme.EventRoundEnded, func(e bus.Envelope) {
			ended = append(ended, e.Data.(map[string]any))
		})

		env.bus.PublishTo(findme.ID, findme.EventGuess, map[string]any{
			"path": filepath.Join(env.galleryDir, "only.jpg"),
		})

		Expect(ended).To(HaveLen(1))
		Expect(ended[0]).To(HaveKeyWithValue("found", true))

		// The score survives a full config reload from disk.
		reloaded := config.NewManager(env.cfg.Path(), nil)
		Expect(reloaded.Load()).To(Succeed())
		cfg, err := reloaded.PluginConfig(findme.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Data).To(HaveKeyWithValue("score", 1))
	})

	It("deactivates and unregisters cleanly", func(ctx SpecContext) {
		env := newHostEnv("a.jpg")

		Expect(env.registry.LoadAll(ctx, env.pluginsDir, env.catalog)).To(Succeed())
		Expect(env.registry.Activate(ctx, "allviewer")).To(Succeed())
		Expect(env.registry.Deactivate(ctx, "allviewer")).To(Succeed())

		st, err := env.registry.StateOf("allviewer")
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(plugin.StateInactive))

		Expect(env.registry.Unregister(ctx, "allviewer")).To(Succeed())
		Expect(env.registry.Count()).To(Equal(1))
		Expect(env.eventTypes()).To(ContainElement(plugin.EventUnregistered))
	})

	It("denies resource access outside a plugin's declared grants", func(ctx SpecContext) {
		env := newHostEnv("a.jpg")
		env.writeManifest("allviewer", "id: allviewer\nversion: "+allviewer.Version+"\n")
		// findme declares capabilities but not resources.read.gallery, so its
		// round cannot load the gallery source.
		env.writeManifest("findme", "id: findme\nversion: "+findme.Version+"\ncapabilities:\n  - events.**\n")

		Expect(env.registry.LoadAll(ctx, env.pluginsDir, env.catalog)).To(Succeed())

		err := env.registry.Activate(ctx, "findme")
		Expect(err).To(HaveOccurred())

		st, stErr := env.registry.StateOf("findme")
		Expect(stErr).NotTo(HaveOccurred())
		Expect(st).To(Equal(plugin.StateError))

		// Re-registering with widened grants recovers the plugin. Unregister
		// drops the old grants, so the new ones go in afterwards.
		Expect(env.registry.Unregister(ctx, "findme")).To(Succeed())
		Expect(env.enforcer.SetGrants("findme", []string{"events.**", "resources.read.gallery"})).To(Succeed())
		fresh, newErr := env.catalog.New("findme")
		Expect(newErr).NotTo(HaveOccurred())
		Expect(env.registry.Register(ctx, fresh)).To(Succeed())
		Expect(env.registry.Activate(ctx, "findme")).To(Succeed())
	})

	It("keeps a broken manifest from blocking the rest of the load", func(ctx SpecContext) {
		env := newHostEnv("a.jpg")
		env.writeManifest("allviewer", "id: allviewer\nversion: 0.0.1\n") // wrong pin
		env.writeManifest("findme", "id: findme\nversion: "+findme.Version+"\n")

		Expect(env.registry.LoadAll(ctx, env.pluginsDir, env.catalog)).To(Succeed())
		Expect(env.registry.Count()).To(Equal(1))

		_, err := env.registry.StateOf("allviewer")
		Expect(err).To(HaveOccurred())
	})

	It("shuts down every active plugin", func(ctx SpecContext) {
		env := newHostEnv("a.jpg")

		Expect(env.registry.LoadAll(ctx, env.pluginsDir, env.catalog)).To(Succeed())
		Expect(env.registry.Activate(ctx, "allviewer")).To(Succeed())
		Expect(env.registry.Activate(ctx, "findme")).To(Succeed())

		env.registry.Shutdown(ctx)
		Expect(env.registry.Active()).To(BeEmpty())
		env.bus.Clear()
	})
})
