package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and route tree",
	Long: `Validate the configuration file and run a dry scan of the route
tree. Reports generation errors without starting a server.

Examples:
  routeforge validate
  routeforge validate --config /etc/routeforge/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	endpoints, err := scanEndpoints(cfgFile)
	if err != nil {
		return err
	}

	// Duplicate method+path pairs collapse into one registry entry,
	// which almost always means two files generate the same route.
	seen := make(map[string]string)
	conflicts := 0
	for _, ep := range endpoints {
		key := ep.Method + " " + ep.Path
		if prev, ok := seen[key]; ok {
			fmt.Printf("CONFLICT: %s generated by %s and %s\n", key, prev, ep.FilePath)
			conflicts++
			continue
		}
		seen[key] = ep.FilePath
	}

	if conflicts > 0 {
		return fmt.Errorf("%d conflicting endpoints", conflicts)
	}

	fmt.Printf("Configuration OK, %d endpoints generated\n", len(endpoints))
	return nil
}
