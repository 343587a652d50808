package calendar

import (
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

// Reschedule moves an event so that the occurrence starting at
// occurrenceStart lands on day. Only the date changes: time of day and
// duration are preserved. For the stored occurrence itself occurrenceStart
// equals the event's start; for a synthetic occurrence the whole series is
// shifted by the same number of days.
func Reschedule(event models.CalendarEvent, occurrenceStart time.Time, day time.Time, location *time.Location) (time.Time, time.Time) {
	from := occurrenceStart.In(location)
	to := day.In(location)

	fromDate := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toDate := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	days := int(toDate.Sub(fromDate).Hours() / 24)

	start := event.StartTime.In(location).AddDate(0, 0, days)
	return start, start.Add(event.Duration())
}
