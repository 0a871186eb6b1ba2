// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

// Lifecycle event types published on the bus. Payloads are map[string]any
// with the keys noted per event.
const (
	EventRegistered          = "plugin:registered"          // pluginId, info
	EventInitialized         = "plugin:initialized"         // pluginId
	EventActivated           = "plugin:activated"           // pluginId
	EventDeactivated         = "plugin:deactivated"         // pluginId
	EventUnregistered        = "plugin:unregistered"        // pluginId
	EventError               = "plugin:error"               // pluginId, error, operation
	EventActivationFailed    = "plugin:activationFailed"    // pluginId, error
	EventDeactivationFailed  = "plugin:deactivationFailed"  // pluginId, error
	EventConfigUpdated       = "plugin:configUpdated"       // pluginId, config
	EventRegistryInitialized = "registry:initialized"       // (empty)
)
