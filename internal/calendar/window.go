package calendar

import "time"

// Window is the grid-aligned range a month view fetches and expands events
// for. Both bounds are inclusive.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (window Window) Contains(t time.Time) bool {
	return !t.Before(window.Start) && !t.After(window.End)
}

func (window Window) Location() *time.Location {
	return window.Start.Location()
}

// FetchWindow returns the window for the month containing anchor: from the
// first day of the week holding the 1st to the last instant of the week
// holding the month's last day, in anchor's location.
func FetchWindow(anchor time.Time, weekStart time.Weekday) Window {
	location := anchor.Location()
	firstOfMonth := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, location)
	lastOfMonth := firstOfMonth.AddDate(0, 1, -1)

	return Window{
		Start: StartOfWeek(firstOfMonth, weekStart),
		End:   StartOfWeek(lastOfMonth, weekStart).AddDate(0, 0, 7).Add(-time.Nanosecond),
	}
}

// StartOfWeek returns midnight of the weekStart day on or before day.
func StartOfWeek(day time.Time, weekStart time.Weekday) time.Time {
	offset := (int(day.Weekday()) - int(weekStart) + 7) % 7
	return time.Date(day.Year(), day.Month(), day.Day()-offset, 0, 0, 0, 0, day.Location())
}
