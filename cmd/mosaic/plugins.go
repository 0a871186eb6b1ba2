// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mosaic Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPluginsCmd creates the plugins subcommand.
func NewPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the plugins compiled into this binary",
		Long: `List the id and version of every plugin in the built-in catalog.
A plugin.yaml manifest must pin one of these versions to load.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := builtinCatalog()
			if err != nil {
				return err
			}
			for _, id := range catalog.IDs() {
				p, err := catalog.New(id)
				if err != nil {
					return err
				}
				info := p.Info()
				cmd.Println(fmt.Sprintf("%s %s - %s", info.ID, info.Version, info.Description))
			}
			return nil
		},
	}
}
