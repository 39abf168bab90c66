/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/config"
)

func newInitCmd() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with default settings and a generated API key
for the inspector.

Examples:
  framedb init
  framedb init --config ./framedb.yaml --data-dir ./data`,
		Annotations: map[string]string{skipStorage: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			force, _ := cmd.Flags().GetBool("force")

			if config.ConfigExists(configPath) && !force {
				return errors.Newf("configuration already exists at %s (use --force to overwrite)", configPath)
			}

			cfg, err := config.BootstrapConfig(configPath, dataDir)
			if err != nil {
				return err
			}

			cmd.Printf("Configuration written to %s\n", configPath)
			cmd.Printf("Data directory: %s\n", cfg.DataDir)
			cmd.Printf("Storage backend: %s\n", cfg.Storage.Backend)
			cmd.Printf("Inspector API key: %s\n", cfg.Security.APIKey)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	return initCmd
}
