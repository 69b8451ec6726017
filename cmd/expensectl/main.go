// Command expensectl records and inspects travel expenses from the terminal.
// It talks to the configured backend directly, without the API server.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"reisekosten/internal/cli"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "expenses")
	}

	flag.Parse()
	ctx, stop := cli.SignalContext(context.Background())
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

var commands = []subcommands.Command{
	&intakeCmd{},
	&listCmd{},
	&statsCmd{},
	&deleteCmd{},
}
