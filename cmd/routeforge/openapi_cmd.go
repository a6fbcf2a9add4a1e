package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/routeforge/routeforge/config"
	"github.com/routeforge/routeforge/core/openapi"
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Print the generated OpenAPI document",
	Long: `Scan the route tree and print the OpenAPI 3.0 document for the
generated endpoints to stdout.

Examples:
  routeforge openapi > openapi.json`,
	RunE: runOpenAPI,
}

func init() {
	rootCmd.AddCommand(openapiCmd)
}

func runOpenAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	endpoints, err := scanEndpoints(cfgFile)
	if err != nil {
		return err
	}

	gen := openapi.NewGenerator(openapi.Info{
		Title:   cfg.OpenAPI.Title,
		Version: cfg.OpenAPI.Version,
	})
	data, err := gen.GenerateJSON(endpoints)
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}
