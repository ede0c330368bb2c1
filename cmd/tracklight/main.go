// Package main provides the entry point for the tracklight hub server.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/tracklight/tracklight/cmd/tracklight/cmd"
	"github.com/tracklight/tracklight/pkg/logging"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Load .env before anything reads the environment. Missing files are
	// fine; a local .env is a development convenience.
	_ = godotenv.Load()

	logging.SetDefault(logging.FromEnv())

	root := cmd.NewRootCommand(cmd.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	if err := root.Execute(); err != nil {
		logging.Default().Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
