// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicview/mosaic/internal/logging"
)

func TestSetup_AddsServiceIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("mosaic", "1.0.0", "json", false, &buf)

	logger.Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "mosaic", record["service"])
	assert.Equal(t, "1.0.0", record["version"])
	assert.Equal(t, "hello", record["msg"])
}

func TestSetup_DebugGating(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("mosaic", "1.0.0", "json", false, &buf)
	logger.Debug("invisible")
	assert.Empty(t, buf.String())

	logger = logging.Setup("mosaic", "1.0.0", "json", true, &buf)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("mosaic", "1.0.0", "text", false, &buf)

	logger.Info("hello", "plugin", "allviewer")

	out := buf.String()
	assert.True(t, strings.Contains(out, "msg=hello"))
	assert.True(t, strings.Contains(out, "plugin=allviewer"))
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestSetup_AttrsSurviveWrapping(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("mosaic", "1.0.0", "json", false, &buf)

	logger.With("plugin", "findme").WithGroup("round").Info("started", "limit", 60)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "findme", record["plugin"])
	round, ok := record["round"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 60, round["limit"])
}
