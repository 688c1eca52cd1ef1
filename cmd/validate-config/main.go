package main

import (
	"fmt"
	"os"

	"github.com/marcelsud/webhook-gateway/endpoint"
	"github.com/marcelsud/webhook-gateway/router"
)

/* validate-config - Standalone CLI tool to validate endpoints.yaml and
 * routes.yaml before deploying them.
 * Usage: go run cmd/validate-config/main.go [endpoints.yaml] [routes.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	endpointsFile := "endpoints.yaml"
	routesFile := "routes.yaml"
	if len(os.Args) > 1 {
		endpointsFile = os.Args[1]
	}
	if len(os.Args) > 2 {
		routesFile = os.Args[2]
	}

	fmt.Printf("Validating endpoints file: %s\n", endpointsFile)
	endpoints := endpoint.NewRegistry()
	if err := endpoints.Load(endpointsFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\nError: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Loaded %d endpoint(s):\n", len(endpoints.List()))
	for i, ep := range endpoints.List() {
		fmt.Printf("\n%d. Endpoint: %s\n", i+1, ep.ID)
		fmt.Printf("   Path:     %s\n", ep.Path)
		fmt.Printf("   Provider: %s\n", ep.Provider)
		fmt.Printf("   Format:   %s\n", ep.Format)
		fmt.Printf("   Dispatch: %s\n", ep.Dispatch)
		fmt.Printf("   Enabled:  %v\n", ep.Enabled())
		fmt.Printf("   Limits:   %d/min %d/hour burst %d per %dms\n",
			ep.RateLimit.PerMinute, ep.RateLimit.PerHour, ep.RateLimit.Burst, ep.RateLimit.BurstWindowMS)
	}

	fmt.Printf("\nValidating routes file: %s\n", routesFile)
	routes := router.NewRegistry()
	if err := router.Load(routes, routesFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\nError: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Loaded %d route(s):\n", len(routes.Snapshot()))
	for i, route := range routes.Snapshot() {
		fmt.Printf("\n%d. Route: %s\n", i+1, route.Name)
		fmt.Printf("   Event Types: %v\n", route.EventTypes)
		fmt.Printf("   Sources:     %v\n", route.Sources)
		fmt.Printf("   Handler:     %s\n", route.HandlerRef)
		fmt.Printf("   Priority:    %s\n", route.Priority)
		fmt.Printf("   Max Retries: %d\n", route.MaxRetries)
		fmt.Printf("   Timeout:     %s\n", route.Timeout)
		fmt.Printf("   Filters:     %d\n", len(route.Filters))
	}

	fmt.Printf("\n✓ All configuration is valid!\n")
	os.Exit(0)
}
