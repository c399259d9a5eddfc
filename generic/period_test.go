package generic_test

import (
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
)

func period(t *testing.T, start, end string) generic.Period {
	t.Helper()
	p, err := generic.NewPeriod(generic.MustParseDate(start), generic.MustParseDate(end))
	require.NoError(t, err)
	return p
}

func TestNewPeriod_RejectsReversedOrMissingDates(t *testing.T) {
	_, err := generic.NewPeriod(generic.MustParseDate("2025-03-10"), generic.MustParseDate("2025-03-09"))
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)

	_, err = generic.NewPeriod(generic.TimePoint{}, generic.MustParseDate("2025-03-09"))
	assert.ErrorIs(t, err, generic.ErrInvalidArgument)

	single := period(t, "2025-03-10", "2025-03-10")
	assert.Equal(t, 1, single.Length())
}

func TestPeriod_OverlapsIsInclusive(t *testing.T) {
	base := period(t, "2025-03-10", "2025-03-14")

	tests := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"identical", "2025-03-10", "2025-03-14", true},
		{"inside", "2025-03-11", "2025-03-12", true},
		{"covers", "2025-03-01", "2025-03-31", true},
		{"touches start", "2025-03-05", "2025-03-10", true},
		{"touches end", "2025-03-14", "2025-03-20", true},
		{"day before", "2025-03-01", "2025-03-09", false},
		{"day after", "2025-03-15", "2025-03-20", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := period(t, tt.start, tt.end)
			assert.Equal(t, tt.want, base.Overlaps(other))
			assert.Equal(t, tt.want, other.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestPeriod_CountExcludingWeekends(t *testing.T) {
	// Mon 2025-03-10 .. Sun 2025-03-16
	week := period(t, "2025-03-10", "2025-03-16")

	assert.Equal(t, 7, week.CountExcluding(nil))
	assert.Equal(t, 5, week.CountExcluding([]time.Weekday{time.Saturday, time.Sunday}))
	assert.Len(t, week.Days(), 7)
}

func TestPeriod_CountExcludingMatchesDayByDay(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 2025))
	origin := generic.MustParseDate("2024-01-01")
	for i := 0; i < 200; i++ {
		start := origin.AddDays(rng.IntN(400))
		p := period(t, start.String(), start.AddDays(rng.IntN(60)).String())

		var excluded []time.Weekday
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			if rng.IntN(3) == 0 {
				excluded = append(excluded, wd)
			}
		}

		want := 0
		for _, d := range p.Days() {
			if !slices.Contains(excluded, d.Weekday()) {
				want++
			}
		}
		assert.Equal(t, want, p.CountExcluding(excluded), "%s excluding %v", p, excluded)
	}
}

func TestPeriod_CountExcludingWholeCalendar(t *testing.T) {
	p := period(t, "0001-01-02", "9999-12-31")

	assert.Equal(t, 3652058, p.Length())
	assert.Equal(t, 2608614, p.CountExcluding([]time.Weekday{time.Saturday, time.Sunday}))
	assert.Equal(t, 0, p.CountExcluding([]time.Weekday{0, 1, 2, 3, 4, 5, 6}))
}

func TestPeriod_Contains(t *testing.T) {
	p := period(t, "2025-01-01", "2025-12-31")

	assert.True(t, p.Contains(generic.MustParseDate("2025-01-01")))
	assert.True(t, p.Contains(generic.MustParseDate("2025-12-31")))
	assert.False(t, p.Contains(generic.MustParseDate("2026-01-01")))
}

func TestYearRange(t *testing.T) {
	r := generic.YearRange{From: 2024, To: 2025}

	assert.Equal(t, 2, r.Span())
	assert.True(t, r.Overlaps(generic.YearRange{From: 2025, To: 2026}))
	assert.False(t, r.Overlaps(generic.YearRange{From: 2026, To: 2027}))
}
