// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/veilchat/veilchat/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigFile returns the --config value, or the XDG default
// config file when the flag was not given. May return "".
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.DefaultConfigFile()
}

// NewRootCmd creates the root command for the VeilChat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "veilchat",
		Short: "VeilChat - secure messaging platform backend",
		Long: `VeilChat is a messaging platform backend centered on an
authentication and session security engine with account lockout and an
irreversible destruction safety mechanism.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
