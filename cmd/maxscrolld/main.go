// Package main runs the ingestion server without the CLI wrapper.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/JakeFAU/maxscroll/internal/config"
	"github.com/JakeFAU/maxscroll/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if port := os.Getenv("PORT"); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &cfg.Server.Port); err != nil {
			fmt.Fprintf(os.Stderr, "invalid PORT %q: %v\n", port, err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	srv, err := server.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server exited: %v\n", err)
		os.Exit(1)
	}
}
