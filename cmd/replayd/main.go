// Package main is the entry point for the replay daemon.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/app"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := app.New(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "replayd: %v\n", err)
		os.Exit(1)
	}
}
