package analytics

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reisekosten/internal/core"
)

// Wednesday in ISO week 25.
var now = time.Date(2025, 6, 18, 15, 4, 0, 0, time.UTC)

func exp(y, m, d int, cents int64, c core.Category) core.Expense {
	return core.Expense{ID: "x", Amount: core.Cents(cents), Category: c, Date: core.NewDate(y, m, d)}
}

func labels(buckets []Bucket) []string {
	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = b.Label
	}
	return out
}

func TestSeries_Week(t *testing.T) {
	expenses := []core.Expense{
		exp(2025, 6, 16, 1000, core.CategoryFood),   // Monday
		exp(2025, 6, 22, 250, core.CategoryTravel),  // Sunday
		exp(2025, 6, 15, 9999, core.CategoryTravel), // previous Sunday
		exp(2025, 6, 23, 9999, core.CategoryTravel), // next Monday
	}
	buckets, err := Series(expenses, FrameWeek, now)
	require.NoError(t, err)
	require.Len(t, buckets, 7)
	assert.Equal(t, []string{"Mo", "Di", "Mi", "Do", "Fr", "Sa", "So"}, labels(buckets))
	assert.Equal(t, "2025-06-16", buckets[0].Start.String())
	assert.Equal(t, "2025-06-22", buckets[6].End.String())
	assert.Equal(t, int64(1000), buckets[0].Total.Cents)
	assert.Equal(t, int64(250), buckets[6].Total.Cents)
	assert.Equal(t, int64(1250), Total(buckets).Cents)
}

func TestSeries_MonthClipsWeeks(t *testing.T) {
	buckets, err := Series(nil, FrameMonth, now)
	require.NoError(t, err)
	// June 2025 starts on a Sunday (KW 22) and ends on a Monday (KW 27).
	assert.Equal(t, []string{"KW 22", "KW 23", "KW 24", "KW 25", "KW 26", "KW 27"}, labels(buckets))
	assert.Equal(t, "2025-06-01", buckets[0].Start.String())
	assert.Equal(t, "2025-06-01", buckets[0].End.String())
	assert.Equal(t, "2025-06-02", buckets[1].Start.String())
	assert.Equal(t, "2025-06-30", buckets[5].Start.String())
	assert.Equal(t, "2025-06-30", buckets[5].End.String())
	for _, b := range buckets {
		assert.Zero(t, b.Total.Cents)
	}
}

func TestSeries_Months(t *testing.T) {
	expenses := []core.Expense{
		exp(2025, 4, 1, 100, core.CategoryFood),
		exp(2025, 4, 30, 200, core.CategoryFood),
		exp(2025, 6, 18, 300, core.CategoryFood),
		exp(2025, 3, 31, 5000, core.CategoryFood),
	}
	buckets, err := Series(expenses, Frame3Months, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apr.", "Mai", "Juni"}, labels(buckets))
	assert.Equal(t, int64(300), buckets[0].Total.Cents)
	assert.Zero(t, buckets[1].Total.Cents)
	assert.Equal(t, int64(300), buckets[2].Total.Cents)

	buckets, err = Series(expenses, Frame12Months, now)
	require.NoError(t, err)
	require.Len(t, buckets, 12)
	assert.Equal(t, "2024-07-01", buckets[0].Start.String())
	assert.Equal(t, "Juli", buckets[0].Label)
	assert.Equal(t, "2025-06-30", buckets[11].End.String())
}

func TestSeries_EndOfMonthDoesNotSkipFebruary(t *testing.T) {
	buckets, err := Series(nil, Frame3Months, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"Jan.", "Feb.", "März"}, labels(buckets))
	assert.Equal(t, "2025-02-28", buckets[1].End.String())
}

func TestSeries_UnknownFrame(t *testing.T) {
	_, err := Series(nil, Frame("decade"), now)
	assert.ErrorIs(t, err, ErrUnknownFrame)
}

func TestSeries_BucketSumsMatchWindowTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var expenses []core.Expense
	for i := 0; i < 500; i++ {
		day := start.AddDate(0, 0, rng.Intn(450))
		expenses = append(expenses, core.Expense{
			Amount:   core.Cents(int64(rng.Intn(20000) + 1)),
			Category: core.Categories[rng.Intn(len(core.Categories))],
			Date:     core.DateOf(day),
		})
	}

	for _, when := range []time.Time{now, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 29, 0, 0, 0, 0, time.UTC)} {
		for _, frame := range Frames {
			buckets, err := Series(expenses, frame, when)
			require.NoError(t, err)

			from, to, err := Window(frame, when)
			require.NoError(t, err)
			var want int64
			for _, e := range expenses {
				if !e.Date.Before(from.Time) && !e.Date.After(to.Time) {
					want += e.Amount.Cents
				}
			}
			assert.Equal(t, want, Total(buckets).Cents, "frame %s at %s", frame, when.Format(core.DateLayout))

			for i := 1; i < len(buckets); i++ {
				assert.Equal(t, addDays(buckets[i-1].End, 1), buckets[i].Start, "buckets must be contiguous")
			}
		}
	}
}

func TestCategories(t *testing.T) {
	expenses := []core.Expense{
		exp(2025, 6, 17, 1234, core.CategoryFood),
		exp(2025, 6, 18, 1, core.CategoryFood),
		exp(2025, 6, 2, 5000, core.CategoryAccommodation),
		exp(2025, 1, 5, 700, core.CategoryTravel),
	}

	week, err := Categories(expenses, RangeWeek, now)
	require.NoError(t, err)
	require.Len(t, week, 4)
	assert.Equal(t, core.CategoryTravel, week[0].Category)
	assert.Equal(t, "Reise", week[0].Label)
	assert.Equal(t, int64(1235), week[2].Total.Cents)
	assert.Zero(t, week[1].Total.Cents)

	month, err := Categories(expenses, RangeMonth, now)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), month[1].Total.Cents)

	year, err := Categories(expenses, RangeYear, now)
	require.NoError(t, err)
	assert.Equal(t, int64(700), year[0].Total.Cents)

	_, err = Categories(expenses, Range("decade"), now)
	assert.ErrorIs(t, err, ErrUnknownRange)
}

func TestStats(t *testing.T) {
	expenses := []core.Expense{
		exp(2025, 6, 1, 10000, core.CategoryFood),
		exp(2025, 6, 30, 2000, core.CategoryFood),
		exp(2025, 1, 15, 1000, core.CategoryTravel),
		exp(2024, 12, 31, 99999, core.CategoryTravel),
	}
	s := Stats(expenses, now)
	assert.Equal(t, int64(12000), s.MonthTotal.Cents)
	assert.Equal(t, int64(13000), s.YearTotal.Cents)
	// 130.00 / 6 months = 21.666.. -> 21.67
	assert.Equal(t, int64(2167), s.MonthlyAverage.Cents)

	jan := Stats(expenses, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, jan.YearTotal, jan.MonthlyAverage)
}

func TestEmptyCollection(t *testing.T) {
	s := Stats(nil, now)
	assert.Equal(t, Summary{}, s)

	for _, frame := range Frames {
		buckets, err := Series(nil, frame, now)
		require.NoError(t, err)
		assert.NotEmpty(t, buckets)
		assert.Zero(t, Total(buckets).Cents)
		assert.Zero(t, AveragePerBucket(buckets).Cents)
	}

	assert.Zero(t, AveragePerBucket(nil).Cents)
}

func TestAveragePerBucket(t *testing.T) {
	buckets := []Bucket{{Total: core.Cents(100)}, {Total: core.Cents(0)}, {Total: core.Cents(201)}}
	assert.Equal(t, int64(100), AveragePerBucket(buckets).Cents)
}

func TestParseSelectors(t *testing.T) {
	f, err := ParseFrame("6months")
	require.NoError(t, err)
	assert.Equal(t, Frame6Months, f)
	_, err = ParseFrame("2months")
	assert.ErrorIs(t, err, ErrUnknownFrame)

	r, err := ParseRange("year")
	require.NoError(t, err)
	assert.Equal(t, RangeYear, r)
}
