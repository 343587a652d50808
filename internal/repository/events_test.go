package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/testutil"
)

func TestEventRepository_CreateJoinsCategory(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	eventRepo := repository.NewEventRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "planner")
	category, err := categoryRepo.Ensure(ctx, models.CalendarCategory{UserID: user.ID, Name: "Work", Color: "#3B82F6"})
	if err != nil {
		t.Fatalf("ensuring category: %v", err)
	}

	reminder := 15
	created, err := eventRepo.Create(ctx, models.CalendarEvent{
		UserID:          user.ID,
		CategoryID:      &category.ID,
		Title:           "Quarterly Review",
		Location:        "Room 4",
		StartTime:       time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		ReminderMinutes: &reminder,
		RepeatPattern:   models.RepeatWeekly,
		Attendees:       []string{"a@example.com", "b@example.com"},
	})
	if err != nil {
		t.Fatalf("creating event: %v", err)
	}

	if created.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if created.Version != 1 {
		t.Errorf("expected version 1, got %d", created.Version)
	}
	if created.Category == nil || created.Category.Name != "Work" {
		t.Fatalf("expected joined Work category, got %+v", created.Category)
	}
	if created.ReminderMinutes == nil || *created.ReminderMinutes != 15 {
		t.Errorf("expected reminder 15, got %v", created.ReminderMinutes)
	}
	if len(created.Attendees) != 2 {
		t.Errorf("expected 2 attendees, got %v", created.Attendees)
	}
	if !created.StartTime.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", created.StartTime)
	}
}

func TestEventRepository_FindAll_InclusiveRangeAndOwner(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	eventRepo := repository.NewEventRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "owner")
	other := testutil.CreateUser(t, db, "other")

	start := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 9, 23, 59, 59, int(time.Second-1), time.UTC)

	create := func(userID, title string, at time.Time) {
		t.Helper()
		if _, err := eventRepo.Create(ctx, models.CalendarEvent{
			UserID: userID, Title: title, StartTime: at, EndTime: at.Add(time.Hour),
		}); err != nil {
			t.Fatalf("creating %s: %v", title, err)
		}
	}
	create(user.ID, "at start", start)
	create(user.ID, "last second", time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC))
	create(user.ID, "before", start.Add(-time.Second))
	create(user.ID, "after", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	create(other.ID, "someone else", start.Add(time.Hour))

	events, err := eventRepo.FindAll(ctx, repository.EventFilter{
		UserID: user.ID, StartAfter: &start, StartBefore: &end,
	})
	if err != nil {
		t.Fatalf("finding events: %v", err)
	}

	var titles []string
	for _, event := range events {
		titles = append(titles, event.Title)
	}
	if len(titles) != 2 || titles[0] != "at start" || titles[1] != "last second" {
		t.Errorf("expected [at start, last second], got %v", titles)
	}
}

func TestEventRepository_UpdateBumpsVersion(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	eventRepo := repository.NewEventRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "editor")
	created, _ := eventRepo.Create(ctx, models.CalendarEvent{
		UserID: user.ID, Title: "Original",
		StartTime: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})

	title := "Updated"
	updated, err := eventRepo.Update(ctx, user.ID, created.ID, models.EventPatch{
		Title: &title, ExpectedVersion: created.Version,
	})
	if err != nil {
		t.Fatalf("updating event: %v", err)
	}
	if updated.Title != "Updated" {
		t.Errorf("expected 'Updated', got '%s'", updated.Title)
	}
	if updated.Version != created.Version+1 {
		t.Errorf("expected version %d, got %d", created.Version+1, updated.Version)
	}
	if !updated.StartTime.Equal(created.StartTime) {
		t.Errorf("start changed unexpectedly: %v", updated.StartTime)
	}
}

func TestEventRepository_UpdateRejectsStaleVersion(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	eventRepo := repository.NewEventRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "racer")
	created, _ := eventRepo.Create(ctx, models.CalendarEvent{
		UserID: user.ID, Title: "v1", StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
	})

	first := "first"
	if _, err := eventRepo.Update(ctx, user.ID, created.ID, models.EventPatch{Title: &first, ExpectedVersion: 1}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second := "second"
	_, err := eventRepo.Update(ctx, user.ID, created.ID, models.EventPatch{Title: &second, ExpectedVersion: 1})
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	found, _ := eventRepo.FindByID(ctx, user.ID, created.ID)
	if found.Title != "first" {
		t.Errorf("expected stale update to be rejected, title is %q", found.Title)
	}
}

func TestEventRepository_UpdateClearsCategory(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	eventRepo := repository.NewEventRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "clearer")
	category, _ := categoryRepo.Ensure(ctx, models.CalendarCategory{UserID: user.ID, Name: "Travel"})
	created, _ := eventRepo.Create(ctx, models.CalendarEvent{
		UserID: user.ID, CategoryID: &category.ID, Title: "Flight",
		StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
	})

	empty := ""
	updated, err := eventRepo.Update(ctx, user.ID, created.ID, models.EventPatch{CategoryID: &empty})
	if err != nil {
		t.Fatalf("updating event: %v", err)
	}
	if updated.CategoryID != nil || updated.Category != nil {
		t.Errorf("expected category cleared, got %v / %+v", updated.CategoryID, updated.Category)
	}
}

func TestEventRepository_Delete(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	eventRepo := repository.NewEventRepository(db)
	ctx := context.Background()

	user := testutil.CreateUser(t, db, "deleter")
	created, _ := eventRepo.Create(ctx, models.CalendarEvent{
		UserID: user.ID, Title: "To Delete", StartTime: time.Now(), EndTime: time.Now(),
	})

	if err := eventRepo.Delete(ctx, user.ID, created.ID); err != nil {
		t.Fatalf("deleting event: %v", err)
	}
	if _, err := eventRepo.FindByID(ctx, user.ID, created.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted event, got %v", err)
	}
	if err := eventRepo.Delete(ctx, user.ID, created.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}
