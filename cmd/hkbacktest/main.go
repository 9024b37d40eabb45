// Command hkbacktest runs the backtesting engine from the command line.
package main

import (
	"fmt"
	"os"

	"hkbacktest/internal/cli"
	"hkbacktest/internal/config"
	"hkbacktest/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configDir = os.Args[i+1]
		}
	}
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hkbacktest: loading config: %v\n", err)
		return cli.ExitArgumentValidation
	}

	logger := logging.NewLogger()

	root := cli.NewRootCmd(cfg, logger)
	if err := root.Execute(); err != nil {
		return cli.ExitCodeOf(err)
	}
	return cli.ExitSuccess
}
