// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/visitor/internal/config"
	"github.com/holomush/visitor/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the visitor CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visitor",
		Short: "visitor - user accounts for web applications",
		Long: `visitor serves account pages: registration, login, password
reset and invitations, guarded by one-time email links.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/visitor/config.yaml if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewInviteCmd())

	return cmd
}

// configPath returns --config, or the XDG config file when the flag is
// unset. An empty result means defaults only.
func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return xdg.FindConfigFile()
}

// loadConfig reads the config file, the changed flags of cmd and the
// environment, then validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
