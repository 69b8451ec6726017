package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"reisekosten/internal/core"
	"reisekosten/internal/services"
)

type listCmd struct {
	category string
	from     string
	to       string
	query    string
	latest   int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list recorded expenses" }
func (*listCmd) Usage() string {
	return `expensectl list [-category <c>] [-from <date>] [-to <date>] [-q <text>] [-n <count>]

  Lists expenses newest first. With -n only the latest entries are shown
  and the other filters are ignored.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.category, "category", "", "Only this category (travel, accommodation, food, other or its label)")
	f.StringVar(&c.from, "from", "", "Earliest date, YYYY-MM-DD")
	f.StringVar(&c.to, "to", "", "Latest date, YYYY-MM-DD")
	f.StringVar(&c.query, "q", "", "Text contained in the description")
	f.IntVar(&c.latest, "n", 0, "Show only the n most recent expenses")
}

func (c *listCmd) criteria() (services.Criteria, error) {
	var crit services.Criteria
	var err error
	if c.category != "" {
		if crit.Category, err = core.ParseCategory(c.category); err != nil {
			return crit, err
		}
	}
	if c.from != "" {
		if crit.From, err = core.ParseDate(c.from); err != nil {
			return crit, err
		}
	}
	if c.to != "" {
		if crit.To, err = core.ParseDate(c.to); err != nil {
			return crit, err
		}
	}
	if !crit.From.IsZero() && !crit.To.IsZero() && crit.To.Before(crit.From.Time) {
		return crit, fmt.Errorf("-to %s is before -from %s", crit.To, crit.From)
	}
	crit.Query = c.query
	return crit, nil
}

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	crit, err := c.criteria()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if c.latest < 0 {
		fmt.Fprintln(os.Stderr, "Error: -n must not be negative")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.store.FetchAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.latest > 0 {
		printMarkdown(os.Stdout, expenseTable("Letzte Ausgaben", a.store.Latest(c.latest)))
		return subcommands.ExitSuccess
	}
	printMarkdown(os.Stdout, expenseTable("Ausgaben", a.store.Filter(crit)))
	return subcommands.ExitSuccess
}
