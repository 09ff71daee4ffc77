package main

import (
	"fmt"

	"github.com/dapp-works/urpc/bootstrap"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	Long: `Start the urpc server.

The server will:
  - Load configuration from urpc.yaml (or --config)
  - Or load configuration from URPC_* environment variables
  - Open the document store and seed the demo documents
  - Serve POST /urpc, the WebSocket endpoint /urpc/ws and /metrics

Environment variables (for Docker deployments):
  URPC_SERVER_PORT        - Server port (default: 8080)
  URPC_STORE_DRIVER       - Store driver: memory or sqlite
  URPC_STORE_DSN          - SQLite database path (default: urpc.db)
  URPC_AUTH_MODE          - Auth mode: none or jwt
  URPC_AUTH_JWT_SECRET    - Token signing secret for jwt mode
  URPC_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  urpc serve
  urpc serve --config /etc/urpc/config.yaml
  urpc serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Watch:      hotReload,
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
