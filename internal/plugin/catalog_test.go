// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicview/mosaic/internal/plugin"
	"github.com/mosaicview/mosaic/pkg/errutil"
)

func TestCatalog(t *testing.T) {
	c := plugin.NewCatalog()
	require.NoError(t, c.Add("findme", func() plugin.Plugin { return newTestPlugin("findme") }))
	require.NoError(t, c.Add("allviewer", func() plugin.Plugin { return newTestPlugin("allviewer") }))

	assert.Equal(t, []string{"allviewer", "findme"}, c.IDs())

	p, err := c.New("allviewer")
	require.NoError(t, err)
	assert.Equal(t, "allviewer", p.Info().ID)

	// Each New call produces a fresh instance.
	q, err := c.New("allviewer")
	require.NoError(t, err)
	assert.NotSame(t, p.(*testPlugin), q.(*testPlugin))
}

func TestCatalog_DuplicateFactory(t *testing.T) {
	c := plugin.NewCatalog()
	require.NoError(t, c.Add("allviewer", func() plugin.Plugin { return newTestPlugin("allviewer") }))

	err := c.Add("allviewer", func() plugin.Plugin { return newTestPlugin("allviewer") })
	errutil.AssertErrorCode(t, err, plugin.CodeDuplicatePlugin)
}

func TestCatalog_UnknownPlugin(t *testing.T) {
	c := plugin.NewCatalog()
	_, err := c.New("ghost")
	errutil.AssertErrorCode(t, err, plugin.CodeUnknownPlugin)
}
