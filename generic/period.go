package generic

import "time"

// =============================================================================
// PERIOD - Inclusive date window
// =============================================================================

// Period is the closed window [Start, End]. Leave requests, leave years and
// policy validity are all expressed as Periods.
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// NewPeriod builds a window and rejects End before Start.
func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate checks that both ends are set and ordered.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return Invalid("period", "start and end dates are required")
	}
	if p.End.Before(p.Start) {
		return Invalid("period", "end date before start date")
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two windows share at least one calendar day.
// Touching windows (p.End == other.Start) overlap because that day is in both.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Length is the inclusive number of calendar days.
func (p Period) Length() int {
	return InclusiveDays(p.Start, p.End)
}

// CountExcluding counts days in the window whose weekday is not excluded.
// Whole weeks are counted at once, so the cost does not grow with the window.
func (p Period) CountExcluding(excluded []time.Weekday) int {
	total := p.Length()
	if len(excluded) == 0 || total == 0 {
		return total
	}
	var skip [7]bool
	for _, wd := range excluded {
		if wd >= time.Sunday && wd <= time.Saturday {
			skip[wd] = true
		}
	}
	perWeek := 0
	for _, s := range skip {
		if !s {
			perWeek++
		}
	}

	n := total / 7 * perWeek
	first := int(p.Start.Weekday())
	for i := 0; i < total%7; i++ {
		if !skip[(first+i)%7] {
			n++
		}
	}
	return n
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// YearRange is an inclusive range of calendar years, used by carry-over cycles.
type YearRange struct {
	From int
	To   int
}

func (r YearRange) Overlaps(other YearRange) bool {
	return r.From <= other.To && r.To >= other.From
}

func (r YearRange) Span() int { return r.To - r.From + 1 }
