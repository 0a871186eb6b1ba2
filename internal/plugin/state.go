// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin

// State is a plugin's position in the lifecycle state machine.
//
// Unloaded is the only initial state. The happy path is monotonic
// (Unloaded -> Initialized -> Active) with a controlled Active <-> Inactive
// cycle. Error is reachable from any non-terminal state via failure and has
// no outgoing transition except removal: a plugin in Error must be
// unregistered and re-registered to retry.
type State uint8

const (
	StateUnloaded State = iota
	StateInitialized
	StateActive
	StateInactive
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
