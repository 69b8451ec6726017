package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"reisekosten/internal/analytics"
)

type statsCmd struct {
	frame string
	rng   string
}

func (*statsCmd) Name() string { return "stats" }
func (*statsCmd) Synopsis() string {
	return "show totals, the spending series and the category breakdown"
}
func (*statsCmd) Usage() string {
	return `expensectl stats [-frame week|month|3months|6months|12months] [-range week|month|year]

  Prints the dashboard figures for today in the configured time zone.
`
}

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.frame, "frame", string(analytics.FrameMonth), "Time frame of the series")
	f.StringVar(&c.rng, "range", string(analytics.RangeMonth), "Range of the category breakdown")
}

func (c *statsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	frame, err := analytics.ParseFrame(c.frame)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	rng, err := analytics.ParseRange(c.rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
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
	list := a.store.Snapshot().Expenses
	now := time.Now().In(a.cfg.Location())

	buckets, err := analytics.Series(list, frame, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	cats, err := analytics.Categories(list, rng, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(os.Stdout, statsReport(analytics.Stats(list, now), frame, buckets, rng, cats))
	return subcommands.ExitSuccess
}
