package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ledgerctl",
		Usage: "Offline balance and validation checks over ledger history exports",
		Description: `Reads a JSON array of transactions, as returned by GET /api/transactions/:address,
and runs the same balance fold and validation rules the server uses.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			balanceCommand(),
			validateCommand(),
		},
	}
}
