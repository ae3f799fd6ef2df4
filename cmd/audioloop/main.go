package main

import (
	"fmt"
	"os"

	"audioloop/internal/cli"
	"audioloop/internal/config"
)

func main() {
	if err := run(); err != nil {
		cli.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	deps := &cli.Dependencies{
		Config: cfg,
	}

	return cli.NewRootCmd(deps).Execute()
}
