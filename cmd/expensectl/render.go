package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"reisekosten/internal/analytics"
	"reisekosten/internal/core"
	"reisekosten/internal/intake"
)

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(w io.Writer, md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		if out, err := r.Render(md); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprint(w, md)
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

func cell(s string) string {
	return cellEscaper.Replace(s)
}

func kilometers(e core.Expense) string {
	if d := e.EffectiveKilometers(); d != nil {
		return d.String()
	}
	return ""
}

// expenseTable lists expenses with a total row.
func expenseTable(title string, list []core.Expense) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(list) == 0 {
		b.WriteString("_Keine Ausgaben._\n")
		return b.String()
	}
	b.WriteString("| Datum | Kategorie | Beschreibung | Betrag | km | ID |\n")
	b.WriteString("|---|---|---|---:|---:|---|\n")
	var total core.Money
	for _, e := range list {
		total = total.Add(e.Amount)
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | `%s` |\n",
			e.Date, e.Category.Label(), cell(e.Description), e.Amount, kilometers(e), e.ID)
	}
	fmt.Fprintf(&b, "\n**%d Ausgaben, Summe %s**\n", len(list), total)
	return b.String()
}

// statsReport is the dashboard: summary figures, the series for frame and
// the category breakdown for rng.
func statsReport(s analytics.Summary, frame analytics.Frame, buckets []analytics.Bucket, rng analytics.Range, cats []analytics.CategoryTotal) string {
	var b strings.Builder
	b.WriteString("# Übersicht\n\n")
	fmt.Fprintf(&b, "- Dieser Monat: **%s**\n", s.MonthTotal)
	fmt.Fprintf(&b, "- Dieses Jahr: **%s**\n", s.YearTotal)
	fmt.Fprintf(&b, "- Monatsdurchschnitt: **%s**\n\n", s.MonthlyAverage)

	fmt.Fprintf(&b, "## Verlauf (%s)\n\n", frame)
	b.WriteString("| Zeitraum | Summe |\n|---|---:|\n")
	for _, bk := range buckets {
		fmt.Fprintf(&b, "| %s | %s |\n", bk.Label, bk.Total)
	}
	fmt.Fprintf(&b, "\nSumme %s, Durchschnitt %s\n\n", analytics.Total(buckets), analytics.AveragePerBucket(buckets))

	fmt.Fprintf(&b, "## Kategorien (%s)\n\n", rng)
	if len(cats) == 0 {
		b.WriteString("_Keine Ausgaben im Zeitraum._\n")
		return b.String()
	}
	b.WriteString("| Kategorie | Summe |\n|---|---:|\n")
	for _, c := range cats {
		fmt.Fprintf(&b, "| %s | %s |\n", c.Label, c.Total)
	}
	return b.String()
}

// autoReport summarizes an automatic intake run.
func autoReport(res intake.AutoResult) string {
	var b strings.Builder
	b.WriteString(expenseTable("Gespeichert", res.Committed))
	if len(res.Skipped) > 0 {
		b.WriteString("\n## Übersprungen\n\n")
		for _, s := range res.Skipped {
			fmt.Fprintf(&b, "- %s: %s\n", cell(s.File.Name), cell(s.Error))
		}
	}
	return b.String()
}
