package booking

import (
	"fmt"
	"time"
)

// MinSameDayDuration is the minimum span for a request that starts and ends
// on the same calendar day. It is a request-validity rule checked before any
// availability lookup, so callers can tell a malformed request apart from a
// full pool.
const MinSameDayDuration = 60 * time.Minute

// Default day-boundary hours used when a multi-day window is split into
// per-day sub-intervals for display.
const (
	DayStartHour = 8
	DayEndHour   = 17
)

// Window is a half-open [Start, End) reservation interval.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two windows conflict. Half-open semantics:
// touching endpoints do not conflict.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// ConflictsAny reports whether the candidate window conflicts with any of the
// existing windows.
func ConflictsAny(candidate Window, existing []Window) bool {
	for _, e := range existing {
		if candidate.Overlaps(e) {
			return true
		}
	}
	return false
}

// Validate checks the window is well formed: end strictly after start, and
// same-day requests spanning at least MinSameDayDuration. Multi-day windows
// are exempt from the minimum; the rule exists to stop degenerate sub-hour
// bookings.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	if w.sameDay() && w.End.Sub(w.Start) < MinSameDayDuration {
		return fmt.Errorf("%w: same-day requests must span at least %d minutes",
			ErrInvalidWindow, int(MinSameDayDuration.Minutes()))
	}
	return nil
}

func (w Window) sameDay() bool {
	y1, m1, d1 := w.Start.Date()
	y2, m2, d2 := w.End.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// SplitByDay decomposes the window into one displayable sub-interval per
// calendar day. Interior days get the default hours 08:00-17:00; the first
// day runs from the actual start, the last day to the actual end. This is
// presentation only: conflict checks always use the full window.
func (w Window) SplitByDay() []Window {
	if w.sameDay() {
		return []Window{w}
	}

	var out []Window
	loc := w.Start.Location()
	day := w.Start
	for {
		y, m, d := day.Date()
		dayStart := time.Date(y, m, d, DayStartHour, 0, 0, 0, loc)
		dayEnd := time.Date(y, m, d, DayEndHour, 0, 0, 0, loc)

		sub := Window{Start: dayStart, End: dayEnd}
		if sameDate(day, w.Start) {
			sub.Start = w.Start
			// Starts after the default close run to midnight
			if !sub.End.After(sub.Start) {
				sub.End = time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			}
		}
		if sameDate(day, w.End) {
			sub.End = w.End
			// Ends before the default open start at midnight
			if !sub.End.After(sub.Start) {
				sub.Start = time.Date(y, m, d, 0, 0, 0, 0, loc)
			}
		}
		out = append(out, sub)

		if sameDate(day, w.End) {
			break
		}
		day = time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}
	return out
}

func sameDate(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
