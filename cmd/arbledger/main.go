package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "arbledger: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "arbledger",
		Usage: "Arbitrum account history to ledger CSV",
		Description: `Fetches the full history of an address from an Etherscan-compatible
explorer, labels counterparties from tag and category files, and writes a
signed ledger CSV, optionally valued in USD.`,
		Version:  fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Metadata: map[string]interface{}{},
		Before:   setup,
		Commands: []*cli.Command{
			exportCommand(),
			fetchCommand(),
			{
				Name:  "prices",
				Usage: "Inspect and fill the daily price cache",
				Subcommands: []*cli.Command{
					pricesGetCommand(),
					pricesShowCommand(),
				},
			},
			{
				Name:  "tags",
				Usage: "Tag and category file utilities",
				Subcommands: []*cli.Command{
					tagsCheckCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Run exports through Temporal",
				Subcommands: []*cli.Command{
					temporalExportCommand(),
					temporalScheduleCommand(),
					temporalUnscheduleCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML, YAML or JSON file with configuration keys (environment wins)",
				EnvVars: []string{"ARBLEDGER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides LOG_LEVEL)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "json or text (overrides LOG_FORMAT)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
