package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"reisekosten/internal/core"
	"reisekosten/internal/intake"
)

type intakeCmd struct {
	auto   bool
	skipAI bool
}

func (*intakeCmd) Name() string     { return "intake" }
func (*intakeCmd) Synopsis() string { return "record expenses from receipt files" }
func (*intakeCmd) Usage() string {
	return `expensectl intake [-auto] [-skip-ai] <file>...

  Queues receipt images or PDFs. Each receipt is analyzed and the prefilled
  draft is shown for review. With -auto every draft is saved without review;
  a missing category becomes "other" and a missing amount 0.
`
}

func (c *intakeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.auto, "auto", false, "Save all drafts without review")
	f.BoolVar(&c.skipAI, "skip-ai", false, "Do not analyze receipts")
}

func (c *intakeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: no files given")
		return subcommands.ExitUsageError
	}
	uploads, err := readUploads(f.Args())
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

	p := intake.New(a.store, a.analyzer, intake.Options{
		Analyze:     !c.skipAI && a.cfg.AnalyzerEnabled(),
		SettleDelay: a.cfg.IntakeSettleDelay,
		Location:    a.cfg.Location(),
		Logger:      a.logger,
		Notifier: intake.NotifierFunc(func(_ context.Context, n intake.Notice) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
		}),
	})
	if err := p.Select(ctx, uploads...); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.auto {
		res, err := p.RunAutomatic(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		printMarkdown(os.Stdout, autoReport(res))
		if len(res.Skipped) > 0 {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	committed, err := review(ctx, p, bufio.NewReader(os.Stdin), os.Stdout)
	if len(committed) > 0 {
		printMarkdown(os.Stdout, expenseTable("Gespeichert", committed))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func readUploads(paths []string) ([]intake.Upload, error) {
	uploads := make([]intake.Upload, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > intake.MaxFileSize {
			return nil, fmt.Errorf("%s: %w", path, intake.ErrFileTooLarge)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, intake.Upload{
			Name:     filepath.Base(path),
			MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
			Data:     data,
		})
	}
	return uploads, nil
}

var errAborted = errors.New("intake aborted")

// review walks the queue draft by draft. Each field is prompted with its
// current value; an empty answer keeps it. The run ends when the queue is
// exhausted, the input ends or the user quits.
func review(ctx context.Context, p *intake.Pipeline, in *bufio.Reader, out io.Writer) ([]core.Expense, error) {
	var committed []core.Expense
	for {
		d, ok := p.Draft()
		if !ok {
			return committed, nil
		}
		v := p.View()
		if v.Current != nil {
			fmt.Fprintf(out, "\nBeleg %d/%d: %s\n", v.Index+1, v.Total, v.Current.Name)
		}

		patch, err := promptDraft(in, out, d)
		if err != nil {
			p.Cancel()
			return committed, err
		}
		if _, err := p.Edit(patch); err != nil {
			fmt.Fprintf(out, "Ungültige Eingabe: %v\n", err)
			continue
		}

		answer, err := prompt(in, out, "Speichern? [J/n/q]", "j")
		if err != nil {
			p.Cancel()
			return committed, err
		}
		switch strings.ToLower(answer) {
		case "q":
			p.Cancel()
			return committed, errAborted
		case "n":
			continue
		}

		res, err := p.Submit(ctx)
		if err != nil {
			if field := core.FieldOf(err); field != "" {
				fmt.Fprintf(out, "Nicht gespeichert, %s: %v\n", field, err)
				continue
			}
			p.Cancel()
			return committed, err
		}
		committed = append(committed, res.Expense)
		fmt.Fprintf(out, "Gespeichert: %s %s\n", res.Expense.Amount, res.Expense.Category.Label())
		if res.Completion != nil {
			return committed, nil
		}
	}
}

func promptDraft(in *bufio.Reader, out io.Writer, d intake.Draft) (intake.DraftPatch, error) {
	var patch intake.DraftPatch
	fields := []struct {
		label, field, current string
	}{
		{"Betrag", "amount", draftAmount(d)},
		{"Kategorie", "category", draftCategory(d)},
		{"Beschreibung", "description", d.Description},
		{"Datum", "date", d.Date.String()},
		{"Kilometer (- löscht)", "kilometers", draftKilometers(d)},
	}
	for _, f := range fields {
		for {
			answer, err := prompt(in, out, f.label, f.current)
			if err != nil {
				return patch, err
			}
			if answer == f.current {
				break
			}
			if err := applyAnswer(&patch, f.field, answer); err != nil {
				fmt.Fprintf(out, "  %v\n", err)
				continue
			}
			break
		}
	}
	return patch, nil
}

// prompt reads one line. An empty line returns def. EOF on an empty line
// is an error so a closed stdin cannot loop forever.
func prompt(in *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", errAborted
		}
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// applyAnswer parses a typed value into the patch.
func applyAnswer(patch *intake.DraftPatch, field, answer string) error {
	switch field {
	case "amount":
		cents, err := core.ParseDecimalToCents(answer)
		if err != nil {
			return err
		}
		m := core.Cents(cents)
		patch.Amount = &m
	case "category":
		c, err := core.ParseCategory(answer)
		if err != nil {
			return err
		}
		patch.Category = &c
	case "description":
		patch.Description = &answer
	case "date":
		d, err := core.ParseDate(answer)
		if err != nil {
			return err
		}
		patch.Date = &d
	case "kilometers":
		if answer == "-" {
			patch.ClearKilometers = true
			return nil
		}
		km, err := core.ParseDistance(answer)
		if err != nil {
			return err
		}
		if err := km.Validate(); err != nil {
			return err
		}
		patch.Kilometers = &km
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

func draftAmount(d intake.Draft) string {
	if d.Amount.IsZero() {
		return ""
	}
	return d.Amount.Plain()
}

func draftCategory(d intake.Draft) string {
	if !d.Category.Valid() {
		return ""
	}
	return d.Category.Label()
}

func draftKilometers(d intake.Draft) string {
	if d.Kilometers == nil {
		return ""
	}
	return d.Kilometers.String()
}
