// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

// Package errutil bridges samber/oops errors into structured slog output.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// attrs extracts structured attributes from an error. For oops errors the
// message, code, and context are logged as separate attributes; standard
// errors contribute only the error string.
func attrs(err error) []any {
	if oopsErr, ok := oops.AsOops(err); ok {
		out := []any{"error", oopsErr.Error()}
		if code := oopsErr.Code(); code != nil {
			out = append(out, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			out = append(out, "context", ctx)
		}
		return out
	}
	return []any{"error", err}
}

// LogError logs an error with structured context at error level.
func LogError(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, attrs(err)...)
}

// LogWarn logs an error with structured context at warn level. Used where a
// failure is recorded but the operation is allowed to continue.
func LogWarn(logger *slog.Logger, msg string, err error) {
	logger.Warn(msg, attrs(err)...)
}
