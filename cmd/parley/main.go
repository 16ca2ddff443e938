package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/parleyhq/parley/internal/cmd"
	"github.com/parleyhq/parley/internal/server/handlers"
)

// Stamped at build time via -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "Command execution failed", err)
	}
}
