package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	ical "github.com/arran4/golang-ical"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/teambition/rrule-go"
)

const icalDomain = "spiretrack"

var ErrInvalidCalendar = errors.New("invalid iCalendar data")

var repeatFrequencies = map[models.RepeatPattern]rrule.Frequency{
	models.RepeatDaily:   rrule.DAILY,
	models.RepeatWeekly:  rrule.WEEKLY,
	models.RepeatMonthly: rrule.MONTHLY,
}

type ICalExporter struct {
	events *EventService
}

func NewICalExporter(events *EventService) *ICalExporter {
	return &ICalExporter{events: events}
}

// Export renders every event of the user as a VEVENT. Repeating events are
// written once with an RRULE; calendar clients expand them.
func (exporter *ICalExporter) Export(ctx context.Context, user models.User) (string, error) {
	events, err := exporter.events.FindAll(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("loading events for export: %w", err)
	}

	name := "SpireTrack"
	if user.Name != "" {
		name = user.Name + " - SpireTrack"
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//SpireTrack//Calendar//EN")
	cal.SetXWRCalName(name)

	for _, event := range events {
		addVEvent(cal, event)
	}
	return cal.Serialize(), nil
}

func addVEvent(cal *ical.Calendar, event models.CalendarEvent) {
	vevent := cal.AddEvent(event.ID + "@" + icalDomain)
	vevent.SetCreatedTime(event.CreatedAt)
	vevent.SetDtStampTime(event.UpdatedAt)
	vevent.SetModifiedAt(event.UpdatedAt)
	vevent.SetSequence(event.Version)
	vevent.SetSummary(event.Title)

	if event.IsAllDay {
		vevent.SetAllDayStartAt(event.StartTime)
		vevent.SetAllDayEndAt(event.EndTime.AddDate(0, 0, 1))
	} else {
		vevent.SetStartAt(event.StartTime)
		vevent.SetEndAt(event.EndTime)
	}

	if event.Description != "" {
		vevent.SetDescription(event.Description)
	}
	if event.Location != "" {
		vevent.SetLocation(event.Location)
	}
	if event.Category != nil {
		vevent.AddProperty(ical.ComponentPropertyCategories, event.Category.Name)
	}
	for _, attendee := range event.Attendees {
		vevent.AddAttendee(attendee)
	}

	if frequency, ok := repeatFrequencies[event.RepeatPattern]; ok {
		option := rrule.ROption{Freq: frequency}
		vevent.AddRrule(option.RRuleString())
	}

	if event.ReminderMinutes != nil {
		alarm := vevent.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", *event.ReminderMinutes))
		alarm.AddProperty(ical.ComponentPropertyDescription, event.Title)
	}
}

type ICalImporter struct {
	events       *EventService
	categoryRepo repository.CategoryRepository
}

func NewICalImporter(events *EventService, categoryRepo repository.CategoryRepository) *ICalImporter {
	return &ICalImporter{events: events, categoryRepo: categoryRepo}
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	EventIDs []string `json:"event_ids"`
	// Category is the category the events were filed under, if any.
	Category *models.CalendarCategory `json:"category,omitempty"`
}

// Import creates an event for each VEVENT in data. When categoryName is set
// the events are filed under that category, creating it if needed.
func (importer *ICalImporter) Import(ctx context.Context, userID string, data io.Reader, categoryName string) (ImportResult, error) {
	cal, err := ical.ParseCalendar(data)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parsing ical: %w: %w", ErrInvalidCalendar, err)
	}

	result := ImportResult{EventIDs: []string{}}
	if categoryName = strings.TrimSpace(categoryName); categoryName != "" {
		category, err := importer.categoryRepo.Ensure(ctx, models.CalendarCategory{
			UserID:   userID,
			Name:     categoryName,
			Color:    "#6B7280",
			Position: 100,
		})
		if err != nil {
			return ImportResult{}, fmt.Errorf("preparing import category: %w", err)
		}
		result.Category = &category
	}

	for _, vevent := range cal.Events() {
		event, err := convertVEvent(vevent)
		if err != nil {
			slog.Debug("skipping ical event", "error", err)
			result.Skipped++
			continue
		}
		event.UserID = userID
		if result.Category != nil {
			categoryID := result.Category.ID
			event.CategoryID = &categoryID
		}

		created, err := importer.events.Create(ctx, event)
		if err != nil {
			return result, fmt.Errorf("importing %q: %w", event.Title, err)
		}
		result.Imported++
		result.EventIDs = append(result.EventIDs, created.ID)
	}
	return result, nil
}

func convertVEvent(vevent *ical.VEvent) (models.CalendarEvent, error) {
	event := models.CalendarEvent{Title: "(No title)"}
	if prop := vevent.GetProperty(ical.ComponentPropertySummary); prop != nil && prop.Value != "" {
		event.Title = prop.Value
	}
	if prop := vevent.GetProperty(ical.ComponentPropertyDescription); prop != nil {
		event.Description = prop.Value
	}
	if prop := vevent.GetProperty(ical.ComponentPropertyLocation); prop != nil {
		event.Location = prop.Value
	}

	dtStart := vevent.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return models.CalendarEvent{}, fmt.Errorf("missing DTSTART for event %q", event.Title)
	}
	event.IsAllDay = isAllDayProperty(dtStart)

	var err error
	if event.IsAllDay {
		event.StartTime, err = vevent.GetAllDayStartAt()
	} else {
		event.StartTime, err = vevent.GetStartAt()
	}
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("parsing DTSTART for event %q: %w", event.Title, err)
	}

	event.EndTime = event.StartTime
	if event.IsAllDay {
		// DTEND of an all-day event is exclusive; stored ends are the last day.
		if end, err := vevent.GetAllDayEndAt(); err == nil && end.After(event.StartTime) {
			event.EndTime = end.AddDate(0, 0, -1)
		}
	} else if end, err := vevent.GetEndAt(); err == nil {
		event.EndTime = end
	}

	if prop := vevent.GetProperty(ical.ComponentPropertyRrule); prop != nil {
		event.RepeatPattern = repeatPatternFromRRule(prop.Value)
	}

	for _, prop := range vevent.GetProperties(ical.ComponentPropertyAttendee) {
		if email := strings.TrimPrefix(strings.TrimPrefix(prop.Value, "mailto:"), "MAILTO:"); email != "" {
			event.Attendees = append(event.Attendees, email)
		}
	}

	for _, alarm := range vevent.Alarms() {
		if prop := alarm.GetProperty(ical.ComponentPropertyTrigger); prop != nil {
			if minutes, ok := reminderMinutes(prop.Value); ok {
				event.ReminderMinutes = &minutes
				break
			}
		}
	}

	return event, nil
}

// repeatPatternFromRRule maps a plain daily, weekly or monthly rule onto the
// matching pattern. Anything richer is kept as custom.
func repeatPatternFromRRule(value string) models.RepeatPattern {
	option, err := rrule.StrToROption(value)
	if err != nil {
		slog.Debug("unparseable RRULE", "rrule", value, "error", err)
		return models.RepeatCustom
	}

	plain := option.Interval <= 1 && option.Count == 0 && option.Until.IsZero() &&
		len(option.Byweekday) == 0 && len(option.Bymonthday) == 0 && len(option.Bysetpos) == 0

	for pattern, frequency := range repeatFrequencies {
		if option.Freq == frequency && plain {
			return pattern
		}
	}
	return models.RepeatCustom
}

// reminderMinutes reads a relative TRIGGER such as -PT15M, -PT1H or -P1D.
func reminderMinutes(trigger string) (int, bool) {
	value := strings.TrimPrefix(strings.TrimSpace(trigger), "-")
	if !strings.HasPrefix(value, "P") {
		return 0, false
	}
	value = strings.TrimPrefix(strings.TrimPrefix(value, "P"), "T")
	if value == "" {
		return 0, false
	}

	units := map[byte]int{'M': 1, 'H': 60, 'D': 24 * 60, 'W': 7 * 24 * 60}
	unit, ok := units[value[len(value)-1]]
	if !ok {
		return 0, false
	}
	amount, err := strconv.Atoi(value[:len(value)-1])
	if err != nil {
		return 0, false
	}
	return amount * unit, true
}

func isAllDayProperty(prop *ical.IANAProperty) bool {
	for _, values := range prop.ICalParameters {
		for _, value := range values {
			if strings.EqualFold(value, "DATE") {
				return true
			}
		}
	}
	return len(strings.TrimSpace(prop.Value)) == 8
}
