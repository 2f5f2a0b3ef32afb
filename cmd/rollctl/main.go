// Command rollctl runs operator tasks against a rollguard database: schema
// migration, cluster sweeps, revision batches, audit verification and
// reference-data imports.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rollctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rollctl",
		Usage: "Operate a rollguard voter roll",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a TOML configuration file.",
				EnvVars: []string{"ROLLGUARD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "actor",
				Usage:   "Actor ID recorded in the audit log.",
				EnvVars: []string{"ROLLCTL_ACTOR"},
				Value:   "operator",
			},
			&cli.StringFlag{
				Name:    "role",
				Usage:   "Actor role recorded in the audit log.",
				EnvVars: []string{"ROLLCTL_ROLE"},
				Value:   "registrar",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error.",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			migrateCmd,
			sweepCmd,
			dryRunCmd,
			commitCmd,
			cancelCmd,
			verifyChainCmd,
			importDeathsCmd,
			importNamesCmd,
			tokenCmd,
			watchAlertsCmd,
		},
	}
}
