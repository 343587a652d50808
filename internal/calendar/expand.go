package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

// MaxRecurringInstances caps how many occurrences one event may generate per
// expansion, whatever the window size.
const MaxRecurringInstances = 52

const recurringSeparator = "-recurring-"

// EventInstance is an event as placed on the grid: the stored event itself
// (Occurrence 0) or a synthetic occurrence of a repeating event.
type EventInstance struct {
	models.CalendarEvent
	SourceID   string `json:"source_id"`
	Occurrence int    `json:"occurrence"`
}

func (instance EventInstance) Synthetic() bool {
	return instance.Occurrence > 0
}

// InstanceID is the id given to the n-th synthetic occurrence of sourceID.
func InstanceID(sourceID string, occurrence int) string {
	return fmt.Sprintf("%s%s%d", sourceID, recurringSeparator, occurrence)
}

// SourceID maps an instance id back to the id of the stored event.
func SourceID(instanceID string) string {
	sourceID, _ := ParseInstanceID(instanceID)
	return sourceID
}

// ParseInstanceID splits an instance id into its source id and occurrence
// number. Ids that are not synthetic yield occurrence 0.
func ParseInstanceID(instanceID string) (string, int) {
	index := strings.LastIndex(instanceID, recurringSeparator)
	if index <= 0 {
		return instanceID, 0
	}
	occurrence, err := strconv.Atoi(instanceID[index+len(recurringSeparator):])
	if err != nil || occurrence < 1 {
		return instanceID, 0
	}
	return instanceID[:index], occurrence
}

// Expand materializes every event into the instances visible in window. Each
// stored event is returned as-is; daily, weekly and monthly events also yield
// synthetic occurrences starting inside the window.
func Expand(events []models.CalendarEvent, window Window) []EventInstance {
	instances := make([]EventInstance, 0, len(events))
	for _, event := range events {
		instances = append(instances, expandEvent(event, window)...)
	}
	return instances
}

func expandEvent(event models.CalendarEvent, window Window) []EventInstance {
	instances := []EventInstance{{CalendarEvent: event, SourceID: event.ID}}
	if !event.RepeatPattern.Expands() {
		return instances
	}

	duration := event.Duration()
	start := event.StartTime.In(window.Location())

	for occurrence := 1; occurrence <= MaxRecurringInstances; occurrence++ {
		candidate := advance(start, event.RepeatPattern, occurrence)
		if candidate.After(window.End) {
			break
		}
		if candidate.Before(window.Start) {
			continue
		}

		synthetic := event.Clone()
		synthetic.ID = InstanceID(event.ID, occurrence)
		synthetic.StartTime = candidate
		synthetic.EndTime = candidate.Add(duration)
		instances = append(instances, EventInstance{
			CalendarEvent: synthetic,
			SourceID:      event.ID,
			Occurrence:    occurrence,
		})
	}
	return instances
}

// advance steps from the original start rather than from the previous
// candidate, so monthly series anchored on the 31st do not drift.
func advance(start time.Time, pattern models.RepeatPattern, steps int) time.Time {
	switch pattern {
	case models.RepeatDaily:
		return start.AddDate(0, 0, steps)
	case models.RepeatWeekly:
		return start.AddDate(0, 0, 7*steps)
	case models.RepeatMonthly:
		return start.AddDate(0, steps, 0)
	}
	return start
}
