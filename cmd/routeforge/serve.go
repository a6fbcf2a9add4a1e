package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/routeforge/routeforge/bootstrap"
	"github.com/routeforge/routeforge/config"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Scan the route tree and serve the generated endpoints",
	Long: `Start the RouteForge server.

The server will:
  - Load configuration from routeforge.yaml (or --config)
  - Or load configuration from ROUTEFORGE_* environment variables
  - Scan the route tree and generate endpoints
  - Serve them with authentication and access control
  - Rescan on file changes when scan.watch is enabled

Environment variables (for Docker deployments):
  ROUTEFORGE_SCAN_ROOT       - Route tree to scan (required)
  ROUTEFORGE_SERVER_PORT     - Server port (default: 8080)
  ROUTEFORGE_AUTH_JWT_SECRET - Bearer token signing secret
  ROUTEFORGE_RBAC_ENABLED    - Enable the access engine
  ROUTEFORGE_LOG_LEVEL       - Log level: debug, info, warn, error

Examples:
  routeforge serve
  routeforge serve --config /etc/routeforge/config.yaml
  routeforge serve --hot-reload=false

  # Docker (env vars only):
  ROUTEFORGE_SCAN_ROOT=/srv/routes routeforge serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload configuration on file change or SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
