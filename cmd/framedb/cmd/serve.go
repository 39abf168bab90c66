/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/api"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only inspector API",
		Long: `Start the inspector: a read-only REST API over the catalog and its
records, with Prometheus metrics on /metrics. Requests need the X-API-Key
header when security.api_key is set.

Examples:
  framedb serve
  framedb serve --port 9000 --bind 127.0.0.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}

			serverConfig := api.ServerConfig{
				Bind:   e.cfg.Server.Bind,
				Port:   e.cfg.Server.Port,
				APIKey: e.cfg.Security.APIKey,
			}
			if cmd.Flags().Changed("port") {
				serverConfig.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				serverConfig.Bind, _ = cmd.Flags().GetString("bind")
			}

			metrics := api.NewMetrics(e.registry)
			server := api.NewServer(e.catalog, e.durable, serverConfig, metrics, e.logger)
			handler := api.NewRouter(server, e.registry)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmd.Printf("Inspector listening on %s:%d\n", serverConfig.Bind, serverConfig.Port)
			if serverConfig.APIKey == "" {
				cmd.Println("Warning: no API key configured, requests are not authenticated")
			}
			return container.GetServerStarter().StartServer(ctx, handler, serverConfig)
		},
	}
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().String("bind", "", "Address to bind (overrides server.bind)")
	return serveCmd
}
