package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "routeforge",
	Short: "Convention-based REST endpoint generation and serving",
	Long: `RouteForge scans a file tree laid out by convention, generates REST
endpoints from it, and serves them with access control.

Quick start:
  routeforge scan       # Show what the route tree generates
  routeforge serve      # Scan and serve the endpoints

Management:
  routeforge validate   # Validate configuration and route tree
  routeforge openapi    # Print the generated OpenAPI document
  routeforge token      # Issue and inspect bearer tokens`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "routeforge.yaml", "config file path")
}
