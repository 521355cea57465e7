// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the grantly command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grantly-io/grantly/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "grantly",
	DisableAutoGenTag: true,
	Short:             "Grantly is a multi-tenant authorization and token service",
	Long: `Grantly serves organization-scoped RBAC decisions, a staged login flow,
and an OAuth2 authorization server with PKCE, backed by postgres and redis.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the grantly CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newClientCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
