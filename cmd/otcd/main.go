// cmd/otcd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rovshanmuradov/solana-otc/internal/app"
	"github.com/rovshanmuradov/solana-otc/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	runner, err := app.NewRunner(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := runner.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "otcd exited with error: %v\n", err)
		os.Exit(1)
	}
}
