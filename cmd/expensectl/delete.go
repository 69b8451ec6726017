package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type deleteCmd struct{}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete expenses by id" }
func (*deleteCmd) Usage() string {
	return `expensectl delete <id>...

  Removes the given expenses. The ids are shown by expensectl list.
`
}

func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (*deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: no id given")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	status := subcommands.ExitSuccess
	for _, id := range f.Args() {
		if err := a.store.Remove(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: delete %s: %v\n", id, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("Deleted %s\n", id)
	}
	return status
}
