package leave

import (
	"strconv"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// YearConfiguration defines one organization-wide leave year as a calendar
// window. Windows of active configurations never overlap, so every date
// resolves to at most one leave year.
type YearConfiguration struct {
	ID        YearConfigID
	Year      int
	Window    generic.Period
	Remarks   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Lifecycle generic.Lifecycle
}

type YearConfigInput struct {
	Year        int
	CutoffStart generic.TimePoint
	CutoffEnd   generic.TimePoint
	Remarks     string
}

func NewYearConfiguration(in YearConfigInput, now time.Time) (*YearConfiguration, error) {
	if in.Year < 1 {
		return nil, generic.Invalid("year", "must be a positive year")
	}
	window, err := yearWindow(in.CutoffStart, in.CutoffEnd)
	if err != nil {
		return nil, err
	}
	return &YearConfiguration{
		ID:        NewID[YearConfigID](),
		Year:      in.Year,
		Window:    window,
		Remarks:   in.Remarks,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func yearWindow(start, end generic.TimePoint) (generic.Period, error) {
	if start.IsZero() || end.IsZero() {
		return generic.Period{}, generic.Invalid("cutoff_start_date", "cutoff dates are required")
	}
	if !end.After(start) {
		return generic.Period{}, generic.Invalid("cutoff_end_date", "must be after cutoff_start_date")
	}
	return generic.Period{Start: start, End: end}, nil
}

type YearConfigPatch struct {
	CutoffStart generic.Field[generic.TimePoint]
	CutoffEnd   generic.Field[generic.TimePoint]
	Remarks     generic.Field[string]
}

func (y *YearConfiguration) Update(patch YearConfigPatch, now time.Time) error {
	if y.Lifecycle.IsArchived() {
		return generic.Conflict(EntityYearConfig, "leave year "+strconv.Itoa(y.Year)+" is archived")
	}
	start, end := y.Window.Start, y.Window.End
	patch.CutoffStart.Apply(&start)
	patch.CutoffEnd.Apply(&end)
	window, err := yearWindow(start, end)
	if err != nil {
		return err
	}
	y.Window = window
	patch.Remarks.Apply(&y.Remarks)
	y.UpdatedAt = now
	return nil
}

func (y *YearConfiguration) Archive(now time.Time) error {
	if err := y.Lifecycle.Archive(EntityYearConfig, now); err != nil {
		return err
	}
	y.UpdatedAt = now
	return nil
}

// CheckYearOverlap rejects y when its label or window collides with another
// active configuration.
func CheckYearOverlap(y *YearConfiguration, existing []*YearConfiguration) error {
	for _, other := range existing {
		if other.ID == y.ID || other.Lifecycle.IsArchived() {
			continue
		}
		if other.Year == y.Year {
			return generic.Conflict(EntityYearConfig, "leave year "+strconv.Itoa(y.Year)+" is already configured")
		}
		if other.Window.Overlaps(y.Window) {
			return generic.Conflict(EntityYearConfig, "window "+y.Window.String()+
				" overlaps leave year "+strconv.Itoa(other.Year)+" "+other.Window.String())
		}
	}
	return nil
}

// ResolveYear returns the active configuration whose window contains date.
func ResolveYear(date generic.TimePoint, configs []*YearConfiguration) (*YearConfiguration, error) {
	for _, c := range configs {
		if !c.Lifecycle.IsArchived() && c.Window.Contains(date) {
			return c, nil
		}
	}
	return nil, generic.NotFound(EntityYearConfig, date.String())
}

func (y *YearConfiguration) Snapshot() generic.Snapshot {
	return generic.Snapshot{
		"year":              strconv.Itoa(y.Year),
		"cutoff_start_date": y.Window.Start.String(),
		"cutoff_end_date":   y.Window.End.String(),
		"remarks":           y.Remarks,
		"state":             string(y.Lifecycle.State()),
	}
}
