package main

import (
	"os"

	"github.com/psweeting1/common-dev-enviroment-prototype/internal/cli"
	"github.com/psweeting1/common-dev-enviroment-prototype/internal/logging"
)

// main is the entry point for the devenv CLI binary.
func main() {
	logger := logging.NewLogger(os.Stderr, logging.LevelInfo)
	if err := cli.Execute(os.Args[1:], logger); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(cli.ExitCode(err))
	}
}
