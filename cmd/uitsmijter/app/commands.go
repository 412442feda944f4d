// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the command-line surface of the uitsmijter
// authorization server.
package app

import (
	"github.com/spf13/cobra"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "uitsmijter",
	DisableAutoGenTag: true,
	Short:             "Uitsmijter is a multi-tenant OAuth 2.0 and OIDC authorization server",
	Long: `Uitsmijter is a multi-tenant OAuth 2.0 and OIDC authorization server with a
forward-auth interceptor mode for zero-code migrations.

Tenants and clients are declarative resources, loaded from YAML files on disk
or from Kubernetes custom resources. User authentication is delegated to
per-tenant Lua provider scripts, so no user database migration is needed.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("failed to display help: %v", err)
		}
	},
}

// NewRootCmd assembles the root command of the CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRoutesCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
