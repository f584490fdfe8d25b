package service

import (
	"sort"
	"time"

	"yoyaku/internal/domain"
	"yoyaku/internal/models"
)

// Interval is an inclusive run of calendar days at UTC midnight.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseDay accepts exactly YYYY-MM-DD and returns that day at UTC midnight.
func ParseDay(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.NewValidationError(field, "required")
	}
	if !isDayShape(value) {
		return time.Time{}, domain.NewValidationError(field, "must be formatted as YYYY-MM-DD")
	}
	day, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "not a calendar date")
	}
	return day, nil
}

func isDayShape(s string) bool {
	if len(s) != len(models.DateLayout) {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch i {
		case 4, 7:
			if s[i] != '-' {
				return false
			}
		default:
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		}
	}
	return true
}

func normalizeDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: normalizeDay(start), End: normalizeDay(end)}
}

func reservationInterval(r *models.Reservation) Interval {
	return NewInterval(r.StartDate, r.EndDate)
}

// Shared returns the first day both intervals cover.
func (a Interval) Shared(b Interval) (time.Time, bool) {
	if a.Start.After(b.End) || b.Start.After(a.End) {
		return time.Time{}, false
	}
	if a.Start.After(b.Start) {
		return a.Start, true
	}
	return b.Start, true
}

// FirstConflict returns the earliest day of candidate already covered by
// one of the reservations.
func FirstConflict(reservations []*models.Reservation, candidate Interval) (time.Time, bool) {
	var first time.Time
	found := false
	for _, r := range reservations {
		d, ok := reservationInterval(r).Shared(candidate)
		if ok && (!found || d.Before(first)) {
			first, found = d, true
		}
	}
	return first, found
}

// OccupiedPeriods unions the reservations into disjoint intervals, ascending.
// Touching intervals are merged.
func OccupiedPeriods(reservations []*models.Reservation) []Interval {
	periods := make([]Interval, 0, len(reservations))
	for _, r := range reservations {
		periods = append(periods, reservationInterval(r))
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Start.Before(periods[j].Start) })

	merged := periods[:0]
	for _, p := range periods {
		if n := len(merged); n > 0 && !p.Start.After(merged[n-1].End.AddDate(0, 0, 1)) {
			if p.End.After(merged[n-1].End) {
				merged[n-1].End = p.End
			}
			continue
		}
		merged = append(merged, p)
	}
	return merged
}
