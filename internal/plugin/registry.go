// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/mosaicview/mosaic/internal/observability"
	"github.com/mosaicview/mosaic/internal/plugin/capability"
	"github.com/mosaicview/mosaic/pkg/errutil"
)

// Options governs how the registry treats plugins after registration.
// Updating options affects only future operations, never existing
// registrations.
type Options struct {
	// AutoInitialize runs Initialize immediately after a successful Register.
	AutoInitialize bool
	// AutoActivate lists plugin ids activated right after registration.
	AutoActivate []string
	// ActivateOnLoad activates every plugin right after registration.
	ActivateOnLoad bool
	// Debug enables registry debug logging.
	Debug bool
}

// Registration is a point-in-time copy of the registry's bookkeeping record
// for one plugin. The Plugin handle is shared, never copied.
type Registration struct {
	Descriptor   Descriptor
	Plugin       Plugin
	State        State
	Err          string
	Dependencies []string
}

// registration is the mutable record owned exclusively by the registry.
// Fields are guarded by Registry.mu; lock serializes lifecycle operations
// on this plugin id.
type registration struct {
	descriptor   Descriptor
	plugin       Plugin
	state        State
	err          string
	dependencies []string
	lock         *sync.Mutex
}

// event is a lifecycle event queued for publication after the per-plugin
// lock is released, so bus handlers may call back into the registry.
type event struct {
	typ  string
	data map[string]any
}

// Registry owns all plugin registrations and drives the lifecycle state
// machine, publishing lifecycle events through the capability context's bus.
//
// Lifecycle operations on the same plugin id are serialized by a per-id
// mutex; operations on different ids may run concurrently. Plugin panics are
// recovered at the registry boundary and converted into stored error
// strings, so a failing plugin cannot unwind the host's call stack.
type Registry struct {
	pctx     *Context
	logger   *slog.Logger
	enforcer *capability.Enforcer

	mu      sync.RWMutex
	plugins map[string]*registration
	opts    Options
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithEnforcer attaches a capability enforcer. Plugins that declared
// capabilities receive a context whose resource surface is limited to the
// sources their grants match; grants are removed when a plugin is
// unregistered.
func WithEnforcer(e *capability.Enforcer) RegistryOption {
	return func(r *Registry) {
		r.enforcer = e
	}
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a plugin registry bound to the given capability
// context. The context is shared by reference with every plugin and never
// mutated afterward.
func NewRegistry(pctx *Context, opts Options, ropts ...RegistryOption) *Registry {
	r := &Registry{
		pctx:    pctx,
		logger:  pctx.Logger,
		plugins: make(map[string]*registration),
		opts:    opts,
	}
	for _, opt := range ropts {
		opt(r)
	}
	return r
}

// Context returns the capability context plugins receive.
func (r *Registry) Context() *Context { return r.pctx }

// Options returns a copy of the current registry options.
func (r *Registry) Options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opts := r.opts
	opts.AutoActivate = slices.Clone(opts.AutoActivate)
	return opts
}

// SetOptions replaces the registry options. Affects only future operations.
func (r *Registry) SetOptions(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	opts.AutoActivate = slices.Clone(opts.AutoActivate)
	r.opts = opts
}

// Register stores a new registration in the Unloaded state and publishes
// plugin:registered. A duplicate id is rejected without an event and leaves
// the existing registration untouched. Depending on Options, registration is
// followed by initialization and activation; failures of those steps are
// reflected in the plugin's state and events, not in Register's return.
func (r *Registry) Register(ctx context.Context, p Plugin) error {
	desc := p.Info()
	if err := desc.Validate(); err != nil {
		return oops.Code(CodeInvalidManifest).With("plugin", desc.ID).Wrap(err)
	}

	reg := &registration{
		descriptor:   desc,
		plugin:       p,
		state:        StateUnloaded,
		dependencies: slices.Clone(desc.Dependencies),
		lock:         &sync.Mutex{},
	}

	r.mu.Lock()
	if _, exists := r.plugins[desc.ID]; exists {
		r.mu.Unlock()
		return oops.Code(CodeDuplicatePlugin).
			With("plugin", desc.ID).
			Errorf("plugin %q is already registered", desc.ID)
	}
	r.plugins[desc.ID] = reg
	r.mu.Unlock()

	r.publish(event{EventRegistered, map[string]any{"pluginId": desc.ID, "info": desc}})
	r.logger.Info("plugin registered", "plugin", desc.ID, "version", desc.Version)

	opts := r.Options()
	if opts.AutoInitialize {
		if err := r.Initialize(ctx, desc.ID); err != nil {
			errutil.LogError(r.logger, "auto-initialize failed", err)
		}
	}
	if opts.ActivateOnLoad || slices.Contains(opts.AutoActivate, desc.ID) {
		if err := r.Activate(ctx, desc.ID); err != nil {
			errutil.LogError(r.logger, "auto-activate failed", err)
		}
	}
	return nil
}

// RegisterAll registers a batch of plugins. A failure on one entry is logged
// and the loop continues; no single bad plugin blocks the rest.
func (r *Registry) RegisterAll(ctx context.Context, plugins []Plugin) {
	for _, p := range plugins {
		if err := r.Register(ctx, p); err != nil {
			errutil.LogError(r.logger, "failed to register plugin", err)
		}
	}
}

// Initialize drives a plugin from Unloaded to Initialized, initializing its
// declared dependencies first. Already-initialized plugins are a no-op
// success; a plugin in Error fails immediately surfacing the stored error.
// A dependency cycle is detected and fails initialization instead of
// recursing.
func (r *Registry) Initialize(ctx context.Context, id string) error {
	return r.initialize(ctx, id, make(map[string]struct{}))
}

func (r *Registry) initialize(ctx context.Context, id string, visiting map[string]struct{}) error {
	if _, ok := visiting[id]; ok {
		return oops.Code(CodeDependencyCycle).
			With("plugin", id).
			Errorf("dependency cycle detected at %q", id)
	}

	reg, unlock, err := r.acquire(id)
	if err != nil {
		return err
	}
	var events []event
	err = r.initializeLocked(ctx, reg, visiting, &events)
	unlock()
	r.publishAll(events)
	return err
}

// initializeLocked does the initialization work while holding reg.lock.
// Lifecycle events for this plugin are queued into events; dependency events
// publish as each dependency completes.
func (r *Registry) initializeLocked(ctx context.Context, reg *registration, visiting map[string]struct{}, events *[]event) error {
	id := reg.descriptor.ID
	visiting[id] = struct{}{}
	defer delete(visiting, id)

	st, stored := r.stateOf(reg)
	if st == StateError {
		return oops.Code(CodePluginInError).
			With("plugin", id).
			Errorf("plugin %q is in error state: %s", id, stored)
	}
	if st != StateUnloaded {
		// Already past Unloaded: nothing to do.
		return nil
	}

	// Dependencies initialize first. If one fails, this plugin goes to Error
	// and its own Initialize is never invoked.
	for _, dep := range reg.dependencies {
		if depErr := r.initialize(ctx, dep, visiting); depErr != nil {
			msg := fmt.Sprintf("dependency %q failed to initialize: %v", dep, depErr)
			r.setState(reg, StateError, msg)
			*events = append(*events, event{EventError, map[string]any{
				"pluginId": id, "error": msg, "operation": "initialize",
			}})
			observability.RecordLifecycleTransition("initialize", "failure")
			return oops.Code(CodeDependencyFailed).
				With("plugin", id).
				With("dependency", dep).
				Wrap(depErr)
		}
	}

	pctx := r.contextFor(id)
	if initErr := callPlugin(func() error { return reg.plugin.Initialize(ctx, pctx) }); initErr != nil {
		r.setState(reg, StateError, initErr.Error())
		*events = append(*events, event{EventError, map[string]any{
			"pluginId": id, "error": initErr.Error(), "operation": "initialize",
		}})
		observability.RecordLifecycleTransition("initialize", "failure")
		return oops.Code(CodeInitializeFailed).With("plugin", id).Wrap(initErr)
	}

	r.setState(reg, StateInitialized, "")
	*events = append(*events, event{EventInitialized, map[string]any{"pluginId": id}})
	observability.RecordLifecycleTransition("initialize", "success")
	r.debug("plugin initialized", "plugin", id)
	return nil
}

// Activate drives a plugin to Active. An Unloaded plugin is initialized
// first; initialization failure aborts activation. An already-Active plugin
// is a no-op success. Activation failure stores the error, transitions the
// plugin to Error, and publishes plugin:activationFailed.
func (r *Registry) Activate(ctx context.Context, id string) error {
	reg, unlock, err := r.acquire(id)
	if err != nil {
		return err
	}
	var events []event
	err = r.activateLocked(ctx, reg, &events)
	unlock()
	r.publishAll(events)
	return err
}

func (r *Registry) activateLocked(ctx context.Context, reg *registration, events *[]event) error {
	id := reg.descriptor.ID

	st, stored := r.stateOf(reg)
	if st == StateActive {
		return nil
	}
	if st == StateError {
		return oops.Code(CodePluginInError).
			With("plugin", id).
			Errorf("cannot activate plugin %q in error state: %s", id, stored)
	}
	if st == StateUnloaded {
		if err := r.initializeLocked(ctx, reg, map[string]struct{}{}, events); err != nil {
			return err
		}
	}

	if actErr := callPlugin(func() error { return reg.plugin.Activate(ctx) }); actErr != nil {
		r.setState(reg, StateError, actErr.Error())
		*events = append(*events, event{EventActivationFailed, map[string]any{
			"pluginId": id, "error": actErr.Error(),
		}})
		observability.RecordLifecycleTransition("activate", "failure")
		return oops.Code(CodeActivateFailed).With("plugin", id).Wrap(actErr)
	}

	r.setState(reg, StateActive, "")
	*events = append(*events, event{EventActivated, map[string]any{"pluginId": id}})
	observability.RecordLifecycleTransition("activate", "success")
	r.debug("plugin activated", "plugin", id)
	return nil
}

// Deactivate moves an Active plugin to Inactive. A non-Active plugin is a
// no-op success with no event and no call to the plugin. On failure the
// error is recorded, plugin:deactivationFailed is published, and the plugin
// deliberately remains Active: it keeps running until a retry succeeds or it
// is forcibly unregistered.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	reg, unlock, err := r.acquire(id)
	if err != nil {
		return err
	}
	var events []event
	err = r.deactivateLocked(ctx, reg, &events)
	unlock()
	r.publishAll(events)
	return err
}

func (r *Registry) deactivateLocked(ctx context.Context, reg *registration, events *[]event) error {
	id := reg.descriptor.ID

	st, _ := r.stateOf(reg)
	if st != StateActive {
		return nil
	}

	if deErr := callPlugin(func() error { return reg.plugin.Deactivate(ctx) }); deErr != nil {
		r.recordError(reg, deErr.Error())
		*events = append(*events, event{EventDeactivationFailed, map[string]any{
			"pluginId": id, "error": deErr.Error(),
		}})
		observability.RecordLifecycleTransition("deactivate", "failure")
		return oops.Code(CodeDeactivateFailed).With("plugin", id).Wrap(deErr)
	}

	r.setState(reg, StateInactive, "")
	*events = append(*events, event{EventDeactivated, map[string]any{"pluginId": id}})
	observability.RecordLifecycleTransition("deactivate", "success")
	r.debug("plugin deactivated", "plugin", id)
	return nil
}

// Unregister removes a plugin's registration. An Active plugin is deactivated
// first; if that fails, unregistration fails and the registration is left
// untouched. On success the plugin's capability grants and component-scoped
// subscriptions are dropped and plugin:unregistered is published.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	reg, unlock, err := r.acquire(id)
	if err != nil {
		return err
	}

	var events []event
	st, _ := r.stateOf(reg)
	if st == StateActive {
		if deErr := r.deactivateLocked(ctx, reg, &events); deErr != nil {
			unlock()
			r.publishAll(events)
			return oops.Code(CodeDeactivateFailed).
				With("plugin", id).
				Hint("cannot unregister while deactivation fails").
				Wrap(deErr)
		}
	}

	r.mu.Lock()
	delete(r.plugins, id)
	r.mu.Unlock()
	unlock()

	if r.enforcer != nil {
		r.enforcer.RemoveGrants(id)
	}
	r.pctx.Events.UnsubscribeComponent(id)
	r.updateActiveGauge()

	events = append(events, event{EventUnregistered, map[string]any{"pluginId": id}})
	r.publishAll(events)
	r.logger.Info("plugin unregistered", "plugin", id)
	return nil
}

// UpdateConfig verifies the target plugin exists, delegates validation and
// application to the plugin's own UpdateConfig, persists the accepted config
// through the config collaborator, and publishes plugin:configUpdated. A
// config the plugin rejects is neither persisted nor announced.
func (r *Registry) UpdateConfig(cfg Config) error {
	reg, unlock, err := r.acquire(cfg.PluginID)
	if err != nil {
		return err
	}
	updErr := callPlugin(func() error { return reg.plugin.UpdateConfig(cfg) })
	unlock()
	if updErr != nil {
		return oops.With("plugin", cfg.PluginID).Wrap(updErr)
	}

	if saveErr := r.pctx.Config.SavePluginConfig(cfg); saveErr != nil {
		errutil.LogError(r.logger, "failed to persist plugin config", saveErr)
		return oops.With("plugin", cfg.PluginID).Wrap(saveErr)
	}

	r.publish(event{EventConfigUpdated, map[string]any{"pluginId": cfg.PluginID, "config": cfg}})
	return nil
}

// Shutdown deactivates every Active plugin. Failures are logged and do not
// stop the remaining plugins from being deactivated.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, id := range r.Active() {
		if err := r.Deactivate(ctx, id); err != nil {
			errutil.LogWarn(r.logger, "failed to deactivate plugin during shutdown", err)
		}
	}
}

// Plugin returns the registered plugin instance for an id.
func (r *Registry) Plugin(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.plugins[id]
	if !ok {
		return nil, notFound(id)
	}
	return reg.plugin, nil
}

// Registration returns a copy of the registry's record for an id.
func (r *Registry) Registration(id string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.plugins[id]
	if !ok {
		return Registration{}, notFound(id)
	}
	return Registration{
		Descriptor:   reg.descriptor,
		Plugin:       reg.plugin,
		State:        reg.state,
		Err:          reg.err,
		Dependencies: slices.Clone(reg.dependencies),
	}, nil
}

// All returns every registered plugin instance, ordered by id.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.plugins))
	for _, id := range r.sortedIDs() {
		out = append(out, r.plugins[id].plugin)
	}
	return out
}

// AllInfo returns every registered plugin's descriptor, ordered by id.
func (r *Registry) AllInfo() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.plugins))
	for _, id := range r.sortedIDs() {
		out = append(out, r.plugins[id].descriptor)
	}
	return out
}

// Active returns the ids of plugins currently in the Active state.
func (r *Registry) Active() []string {
	return r.ByState(StateActive)
}

// ByState returns the ids of plugins currently in the given state, sorted.
func (r *Registry) ByState(st State) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, reg := range r.plugins {
		if reg.state == st {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// StateOf returns a plugin's current lifecycle state.
func (r *Registry) StateOf(id string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.plugins[id]
	if !ok {
		return StateUnloaded, notFound(id)
	}
	return reg.state, nil
}

// ErrOf returns the stored error message for a plugin, empty if none.
func (r *Registry) ErrOf(id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.plugins[id]
	if !ok {
		return "", notFound(id)
	}
	return reg.err, nil
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// contextFor returns the capability context handed to one plugin. With an
// enforcer attached, the resource surface is wrapped so a plugin that
// declared capabilities can only reach the sources its grants match.
func (r *Registry) contextFor(id string) *Context {
	if r.enforcer == nil || r.pctx.Resources == nil {
		return r.pctx
	}
	scoped := *r.pctx
	scoped.Resources = &guardedResources{
		plugin:   id,
		enforcer: r.enforcer,
		inner:    r.pctx.Resources,
	}
	return &scoped
}

// acquire looks up a registration and takes its per-id lock, re-checking
// that the plugin was not unregistered while waiting.
func (r *Registry) acquire(id string) (*registration, func(), error) {
	r.mu.RLock()
	reg, ok := r.plugins[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, notFound(id)
	}

	reg.lock.Lock()

	r.mu.RLock()
	cur, ok := r.plugins[id]
	r.mu.RUnlock()
	if !ok || cur != reg {
		reg.lock.Unlock()
		return nil, nil, notFound(id)
	}
	return reg, reg.lock.Unlock, nil
}

// stateOf reads a registration's state and stored error under the registry lock.
func (r *Registry) stateOf(reg *registration) (State, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return reg.state, reg.err
}

// setState transitions a registration and refreshes the active gauge.
func (r *Registry) setState(reg *registration, st State, errMsg string) {
	r.mu.Lock()
	reg.state = st
	reg.err = errMsg
	r.mu.Unlock()
	r.updateActiveGauge()
}

// recordError stores an error message without changing state.
func (r *Registry) recordError(reg *registration, errMsg string) {
	r.mu.Lock()
	reg.err = errMsg
	r.mu.Unlock()
}

func (r *Registry) updateActiveGauge() {
	r.mu.RLock()
	active := 0
	for _, reg := range r.plugins {
		if reg.state == StateActive {
			active++
		}
	}
	r.mu.RUnlock()
	observability.SetActivePlugins(active)
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) publish(ev event) {
	r.pctx.Events.Publish(ev.typ, ev.data)
}

func (r *Registry) publishAll(events []event) {
	for _, ev := range events {
		r.publish(ev)
	}
}

func (r *Registry) debug(msg string, args ...any) {
	if r.Options().Debug {
		r.logger.Debug(msg, args...)
	}
}

func notFound(id string) error {
	return oops.Code(CodePluginNotFound).
		With("plugin", id).
		Errorf("plugin %q not found", id)
}

// callPlugin invokes a plugin method, converting a panic into an error so it
// never crosses the registry boundary.
func callPlugin(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = oops.Errorf("plugin panicked: %v", rec)
		}
	}()
	return fn()
}
