package calendar

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

func stringPtr(s string) *string { return &s }

func testEvent(id string, start time.Time, duration time.Duration, pattern models.RepeatPattern) models.CalendarEvent {
	return models.CalendarEvent{
		ID:            id,
		UserID:        "user-1",
		CategoryID:    stringPtr("work"),
		Title:         "Standup",
		StartTime:     start,
		EndTime:       start.Add(duration),
		RepeatPattern: pattern,
	}
}

func instanceIDs(instances []EventInstance) []string {
	ids := make([]string, 0, len(instances))
	for _, instance := range instances {
		ids = append(ids, instance.ID)
	}
	return ids
}

func TestExpand_DailyStandupWeek(t *testing.T) {
	event := testEvent("standup", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), 30*time.Minute, models.RepeatDaily)
	window := Window{
		Start: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 9, 23, 59, 59, 999999999, time.UTC),
	}

	instances := Expand([]models.CalendarEvent{event}, window)

	if len(instances) != 6 {
		t.Fatalf("expected original plus 5 instances, got %d: %v", len(instances), instanceIDs(instances))
	}
	if instances[0].ID != "standup" || instances[0].Synthetic() {
		t.Errorf("expected the original first, got %+v", instances[0])
	}
	for i, instance := range instances[1:] {
		day := 5 + i
		wantStart := time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC)
		if !instance.StartTime.Equal(wantStart) {
			t.Errorf("instance %d: expected start %v, got %v", i+1, wantStart, instance.StartTime)
		}
		if !instance.EndTime.Equal(wantStart.Add(30 * time.Minute)) {
			t.Errorf("instance %d: expected end 09:30, got %v", i+1, instance.EndTime)
		}
		if instance.ID != InstanceID("standup", i+1) {
			t.Errorf("instance %d: unexpected id %s", i+1, instance.ID)
		}
		if instance.SourceID != "standup" || instance.Title != "Standup" || *instance.CategoryID != "work" {
			t.Errorf("instance %d: fields not copied from source: %+v", i+1, instance)
		}
	}
}

func TestExpand_Deterministic(t *testing.T) {
	event := testEvent("weekly", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), time.Hour, models.RepeatWeekly)
	window := FetchWindow(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Sunday)

	first := Expand([]models.CalendarEvent{event}, window)
	second := Expand([]models.CalendarEvent{event}, window)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("expansion differs between runs (-first +second):\n%s", diff)
	}
	if len(first) != 6 {
		t.Errorf("expected original plus 5 weekly instances, got %v", instanceIDs(first))
	}
}

func TestExpand_CapsDailyInstances(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	event := testEvent("daily", start, time.Hour, models.RepeatDaily)
	window := Window{Start: start, End: start.AddDate(1, 0, 0)}

	instances := Expand([]models.CalendarEvent{event}, window)

	if len(instances) != MaxRecurringInstances+1 {
		t.Fatalf("expected %d instances, got %d", MaxRecurringInstances+1, len(instances))
	}
	last := instances[len(instances)-1]
	if want := start.AddDate(0, 0, MaxRecurringInstances); !last.StartTime.Equal(want) {
		t.Errorf("expected last instance at %v, got %v", want, last.StartTime)
	}
}

func TestExpand_NonExpandingPatterns(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	window := Window{Start: start.AddDate(-1, 0, 0), End: start.AddDate(1, 0, 0)}

	for _, pattern := range []models.RepeatPattern{models.RepeatCustom, models.RepeatNone} {
		instances := Expand([]models.CalendarEvent{testEvent("e", start, time.Hour, pattern)}, window)
		if len(instances) != 1 || instances[0].ID != "e" {
			t.Errorf("pattern %q: expected only the original, got %v", pattern, instanceIDs(instances))
		}
	}
}

func TestExpand_SkipsOccurrencesBeforeWindow(t *testing.T) {
	event := testEvent("early", time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC), time.Hour, models.RepeatWeekly)
	window := Window{
		Start: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 16, 23, 59, 59, 0, time.UTC),
	}

	instances := Expand([]models.CalendarEvent{event}, window)

	want := []string{"early", "early-recurring-2", "early-recurring-3"}
	if diff := cmp.Diff(want, instanceIDs(instances)); diff != "" {
		t.Errorf("unexpected instances (-want +got):\n%s", diff)
	}
}

func TestExpand_MonthlyStepsFromOriginalStart(t *testing.T) {
	event := testEvent("rent", time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), time.Hour, models.RepeatMonthly)
	window := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 4, 30, 23, 59, 59, 0, time.UTC),
	}

	instances := Expand([]models.CalendarEvent{event}, window)

	if len(instances) != 4 {
		t.Fatalf("expected original plus 3 monthly instances, got %v", instanceIDs(instances))
	}
	for i, instance := range instances {
		if instance.StartTime.Day() != 15 || instance.StartTime.Month() != time.Month(1+i) {
			t.Errorf("instance %d: expected the 15th of month %d, got %v", i, 1+i, instance.StartTime)
		}
	}
}

func TestExpand_DoesNotShareMutableFields(t *testing.T) {
	event := testEvent("shared", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), time.Hour, models.RepeatDaily)
	event.Attendees = []string{"ana@example.com"}
	window := Window{Start: event.StartTime, End: event.StartTime.AddDate(0, 0, 2)}

	instances := Expand([]models.CalendarEvent{event}, window)
	*instances[1].CategoryID = "changed"
	instances[1].Attendees[0] = "changed"

	if *event.CategoryID != "work" || event.Attendees[0] != "ana@example.com" {
		t.Error("expected synthetic instances not to alias the source event")
	}
}

func TestParseInstanceID(t *testing.T) {
	tests := []struct {
		id         string
		source     string
		occurrence int
	}{
		{"abc", "abc", 0},
		{"abc-recurring-3", "abc", 3},
		{"a-recurring-b-recurring-12", "a-recurring-b", 12},
		{"abc-recurring-x", "abc-recurring-x", 0},
		{"-recurring-1", "-recurring-1", 0},
	}

	for _, tt := range tests {
		source, occurrence := ParseInstanceID(tt.id)
		if source != tt.source || occurrence != tt.occurrence {
			t.Errorf("ParseInstanceID(%q) = (%q, %d), expected (%q, %d)", tt.id, source, occurrence, tt.source, tt.occurrence)
		}
		if SourceID(tt.id) != tt.source {
			t.Errorf("SourceID(%q) = %q, expected %q", tt.id, SourceID(tt.id), tt.source)
		}
	}
}
