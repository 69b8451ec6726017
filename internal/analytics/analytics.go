// Package analytics derives chart series and summary figures from a set of
// expenses. Every function is pure: the result depends only on the
// expenses, the selector and now. Callers pass now in the user's time zone.
package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"reisekosten/internal/core"
)

var (
	ErrUnknownFrame = errors.New("unknown time frame")
	ErrUnknownRange = errors.New("unknown range")
)

// Frame selects the bucketing of a chart series.
type Frame string

const (
	FrameWeek     Frame = "week"
	FrameMonth    Frame = "month"
	Frame3Months  Frame = "3months"
	Frame6Months  Frame = "6months"
	Frame12Months Frame = "12months"
)

var Frames = []Frame{FrameWeek, FrameMonth, Frame3Months, Frame6Months, Frame12Months}

func ParseFrame(s string) (Frame, error) {
	for _, f := range Frames {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFrame, s)
}

// Range selects the window of a category breakdown.
type Range string

const (
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeYear  Range = "year"
)

func ParseRange(s string) (Range, error) {
	switch Range(s) {
	case RangeWeek, RangeMonth, RangeYear:
		return Range(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
}

// Bucket is one point of a chart series. Start and End are inclusive.
type Bucket struct {
	Label string     `json:"label"`
	Start core.Date  `json:"start"`
	End   core.Date  `json:"end"`
	Total core.Money `json:"total"`
}

type CategoryTotal struct {
	Category core.Category `json:"category"`
	Label    string        `json:"label"`
	Total    core.Money    `json:"total"`
}

// Summary holds the dashboard figures.
type Summary struct {
	MonthTotal     core.Money `json:"month_total"`
	YearTotal      core.Money `json:"year_total"`
	MonthlyAverage core.Money `json:"monthly_average"`
}

var weekdayLabels = [7]string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}

var monthLabels = [12]string{"Jan.", "Feb.", "März", "Apr.", "Mai", "Juni", "Juli", "Aug.", "Sept.", "Okt.", "Nov.", "Dez."}

// Series buckets the expenses for the chart. Buckets are oldest first and
// are returned even when they are empty.
func Series(expenses []core.Expense, frame Frame, now time.Time) ([]Bucket, error) {
	today := core.DateOf(now)

	var buckets []Bucket
	switch frame {
	case FrameWeek:
		monday := weekStart(today)
		for i := 0; i < 7; i++ {
			day := addDays(monday, i)
			buckets = append(buckets, Bucket{Label: weekdayLabels[i], Start: day, End: day})
		}
	case FrameMonth:
		first, last := monthBounds(today)
		for cursor := weekStart(first); !cursor.After(last.Time); cursor = addDays(cursor, 7) {
			start, end := cursor, addDays(cursor, 6)
			if start.Before(first.Time) {
				start = first
			}
			if end.After(last.Time) {
				end = last
			}
			_, week := cursor.ISOWeek()
			buckets = append(buckets, Bucket{Label: fmt.Sprintf("KW %d", week), Start: start, End: end})
		}
	case Frame3Months, Frame6Months, Frame12Months:
		n := map[Frame]int{Frame3Months: 3, Frame6Months: 6, Frame12Months: 12}[frame]
		for i := n - 1; i >= 0; i-- {
			first, last := monthBounds(addMonths(today, -i))
			buckets = append(buckets, Bucket{Label: monthLabels[first.Month()-1], Start: first, End: last})
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frame)
	}

	for i := range buckets {
		buckets[i].Total = sumBetween(expenses, buckets[i].Start, buckets[i].End)
	}
	return buckets, nil
}

// Window is the overall date span covered by a frame's buckets.
func Window(frame Frame, now time.Time) (core.Date, core.Date, error) {
	buckets, err := Series(nil, frame, now)
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	return buckets[0].Start, buckets[len(buckets)-1].End, nil
}

// Categories sums the expenses of the selected range per category, in the
// fixed category order. Categories without expenses are included with zero.
func Categories(expenses []core.Expense, r Range, now time.Time) ([]CategoryTotal, error) {
	start, end, err := rangeBounds(r, core.DateOf(now))
	if err != nil {
		return nil, err
	}

	sums := make(map[core.Category]int64, len(core.Categories))
	for _, e := range expenses {
		if within(e.Date, start, end) {
			sums[e.Category] += e.Amount.Cents
		}
	}

	out := make([]CategoryTotal, 0, len(core.Categories))
	for _, c := range core.Categories {
		out = append(out, CategoryTotal{Category: c, Label: c.Label(), Total: core.Cents(sums[c])})
	}
	return out, nil
}

// Stats computes the current month total, the current year total and the
// year-to-date monthly average, which divides the year total by the number
// of months elapsed including the current one.
func Stats(expenses []core.Expense, now time.Time) Summary {
	today := core.DateOf(now)
	monthStart, monthEnd := monthBounds(today)
	yearStart := core.NewDate(today.Year(), 1, 1)
	yearEnd := core.NewDate(today.Year(), 12, 31)

	s := Summary{
		MonthTotal: sumBetween(expenses, monthStart, monthEnd),
		YearTotal:  sumBetween(expenses, yearStart, yearEnd),
	}
	s.MonthlyAverage = divide(s.YearTotal, int(today.Month()))
	return s
}

// AveragePerBucket is the mean bucket total. An empty series averages to zero.
func AveragePerBucket(buckets []Bucket) core.Money {
	if len(buckets) == 0 {
		return core.Money{}
	}
	return divide(Total(buckets), len(buckets))
}

func Total(buckets []Bucket) core.Money {
	var sum core.Money
	for _, b := range buckets {
		sum = sum.Add(b.Total)
	}
	return sum
}

func divide(m core.Money, n int) core.Money {
	if n <= 0 {
		return core.Money{}
	}
	q := decimal.NewFromInt(m.Cents).Div(decimal.NewFromInt(int64(n))).Round(0)
	return core.Cents(q.IntPart())
}

func sumBetween(expenses []core.Expense, start, end core.Date) core.Money {
	var cents int64
	for _, e := range expenses {
		if within(e.Date, start, end) {
			cents += e.Amount.Cents
		}
	}
	return core.Cents(cents)
}

func within(d, start, end core.Date) bool {
	day := core.DateOf(d.Time)
	return !day.Before(start.Time) && !day.After(end.Time)
}

func rangeBounds(r Range, today core.Date) (core.Date, core.Date, error) {
	switch r {
	case RangeWeek:
		start := weekStart(today)
		return start, addDays(start, 6), nil
	case RangeMonth:
		start, end := monthBounds(today)
		return start, end, nil
	case RangeYear:
		return core.NewDate(today.Year(), 1, 1), core.NewDate(today.Year(), 12, 31), nil
	}
	return core.Date{}, core.Date{}, fmt.Errorf("%w: %q", ErrUnknownRange, r)
}

// weekStart is the Monday of d's ISO week.
func weekStart(d core.Date) core.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return addDays(d, -offset)
}

func monthBounds(d core.Date) (core.Date, core.Date) {
	first := core.NewDate(d.Year(), int(d.Month()), 1)
	last := core.DateOf(first.AddDate(0, 1, -1))
	return first, last
}

func addDays(d core.Date, n int) core.Date {
	return core.DateOf(d.AddDate(0, 0, n))
}

// addMonths moves to the first of the month n months away, so short
// months never overflow.
func addMonths(d core.Date, n int) core.Date {
	return core.DateOf(time.Date(d.Year(), d.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}
