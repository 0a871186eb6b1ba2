// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

// Error codes attached to oops errors returned by the registry.
const (
	CodeDuplicatePlugin  = "DUPLICATE_PLUGIN"
	CodePluginNotFound   = "PLUGIN_NOT_FOUND"
	CodePluginInError    = "PLUGIN_IN_ERROR"
	CodeDependencyFailed = "DEPENDENCY_FAILED"
	CodeDependencyCycle  = "DEPENDENCY_CYCLE"
	CodeInitializeFailed = "INITIALIZE_FAILED"
	CodeActivateFailed   = "ACTIVATE_FAILED"
	CodeDeactivateFailed = "DEACTIVATE_FAILED"
	CodeConfigIDMismatch = "CONFIG_ID_MISMATCH"
	CodeInvalidManifest  = "INVALID_MANIFEST"
	CodeUnknownPlugin    = "UNKNOWN_PLUGIN" // manifest names an id absent from the catalog
)
