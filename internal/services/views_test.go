package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/changefeed"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/testutil"
	"github.com/robfig/cron/v3"
)

func newTestRegistry(t *testing.T) (*ViewRegistry, *EventService, models.User) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	feed := changefeed.NewMemoryFeed()
	events := NewEventService(repository.NewEventRepository(db), feed)
	registry := NewViewRegistry(events, calendar.NewBootstrapper(repository.NewCategoryRepository(db)), feed, calendar.ViewConfig{
		Location:  time.UTC,
		WeekStart: time.Sunday,
		Now:       func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(registry.CloseAll)
	return registry, events, testutil.CreateUser(t, db, "viewer")
}

func TestViewRegistry_ReusesView(t *testing.T) {
	registry, _, user := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("opening view: %v", err)
	}
	second, _ := registry.Get(ctx, user.ID)
	if first != second {
		t.Error("expected the same view for the same user")
	}
	if len(first.Categories()) != len(calendar.DefaultCategories) {
		t.Errorf("expected bootstrapped categories, got %d", len(first.Categories()))
	}
	if want := time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC); !first.Window().Start.Equal(want) {
		t.Errorf("expected March window, got %v", first.Window())
	}

	registry.Close(user.ID)
	third, _ := registry.Get(ctx, user.ID)
	if third == first {
		t.Error("expected a fresh view after close")
	}
}

func TestViewRegistry_SeesWritesFromOtherClients(t *testing.T) {
	registry, events, user := newTestRegistry(t)
	ctx := context.Background()

	view, err := registry.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("opening view: %v", err)
	}
	categoryID := view.Categories()[0].ID

	start := time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC)
	if _, err := events.Create(ctx, models.CalendarEvent{
		UserID:        user.ID,
		CategoryID:    &categoryID,
		Title:         "Standup",
		StartTime:     start,
		EndTime:       start.Add(15 * time.Minute),
		RepeatPattern: models.RepeatDaily,
	}); err != nil {
		t.Fatalf("creating event: %v", err)
	}

	// 03-18 through 04-06.
	if visible := view.Visible(); len(visible) != 20 {
		t.Errorf("expected 20 visible instances, got %d", len(visible))
	}
}

func TestViewRegistry_EvictIdle(t *testing.T) {
	registry, _, user := newTestRegistry(t)
	ctx := context.Background()

	clock := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	registry.clock = func() time.Time { return clock }

	first, err := registry.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("opening view: %v", err)
	}

	clock = clock.Add(20 * time.Minute)
	if _, err := registry.Get(ctx, user.ID); err != nil {
		t.Fatalf("reusing view: %v", err)
	}

	clock = clock.Add(20 * time.Minute)
	if count := registry.EvictIdle(30 * time.Minute); count != 0 {
		t.Errorf("expected a recently used view to be kept, evicted %d", count)
	}

	clock = clock.Add(20 * time.Minute)
	if count := registry.EvictIdle(30 * time.Minute); count != 1 {
		t.Errorf("expected 1 evicted view, got %d", count)
	}
	if registry.Len() != 0 {
		t.Errorf("expected no open views, got %d", registry.Len())
	}
	if err := first.Refresh(ctx); !errors.Is(err, calendar.ErrViewClosed) {
		t.Errorf("expected the evicted view to be closed, got %v", err)
	}

	again, err := registry.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("reopening view: %v", err)
	}
	if again == first {
		t.Error("expected a fresh view after eviction")
	}
}

func TestViewRegistry_ScheduleEvictionRejectsBadSpec(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	scheduler := cron.New()
	if _, err := registry.ScheduleEviction(scheduler, "whenever", time.Minute); err == nil {
		t.Error("expected an error for an invalid schedule")
	}
	if _, err := registry.ScheduleEviction(scheduler, "@every 5m", time.Minute); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
