package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/routeforge/routeforge/adapters/markers"
	"github.com/routeforge/routeforge/config"
	"github.com/routeforge/routeforge/core/generator"
	"github.com/routeforge/routeforge/core/scanner"
	"github.com/routeforge/routeforge/domain/endpoint"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the route tree and print the generated endpoints",
	Long: `Scan the configured route tree and print every endpoint it would
generate, without starting a server.

Examples:
  routeforge scan
  routeforge scan --json
  ROUTEFORGE_SCAN_ROOT=./routes routeforge scan`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print endpoints as JSON")
}

func runScan(cmd *cobra.Command, args []string) error {
	endpoints, err := scanEndpoints(cfgFile)
	if err != nil {
		return err
	}

	if scanJSON {
		data, err := json.MarshalIndent(endpoints, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tACCESS\tROLES\tSOURCE")
	for _, ep := range endpoints {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ep.Method, ep.Path, accessSummary(ep), strings.Join(ep.Access.RequiredRoles, ","), ep.FilePath)
	}
	w.Flush()

	fmt.Printf("\n%d endpoints\n", len(endpoints))
	return nil
}

// scanEndpoints runs the scan and generation pipeline once.
func scanEndpoints(cfgPath string) ([]*endpoint.Endpoint, error) {
	cfg, err := config.LoadWithFallback(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)
	s := scanner.New(cfg.Scan.Config, logger)

	routes, err := s.Scan(context.Background())
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	yamlMarkers := markers.NewYAMLResolver(cfg.Scan.Root)
	gen := generator.New(generator.Resolvers{
		Schema: yamlMarkers,
		Access: yamlMarkers,
	}, logger)

	endpoints, err := gen.Generate(context.Background(), routes)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return endpoints, nil
}

func accessSummary(ep *endpoint.Endpoint) string {
	switch {
	case ep.Access.IsPublic:
		return "public"
	case ep.Access.RequiresAuth:
		return "auth"
	default:
		return "open"
	}
}
