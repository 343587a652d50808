package services

import (
	"context"
	"testing"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/testutil"
	"github.com/robfig/cron/v3"
)

func TestCategoryReconciler_BackfillsEveryUser(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	categoryRepo := repository.NewCategoryRepository(db)
	reconciler := NewCategoryReconciler(repository.NewUserRepository(db), calendar.NewBootstrapper(categoryRepo))
	ctx := context.Background()

	users := []string{
		testutil.CreateUser(t, db, "ana").ID,
		testutil.CreateUser(t, db, "ben").ID,
		testutil.CreateUser(t, db, "cy").ID,
	}

	for run := 0; run < 2; run++ {
		count, err := reconciler.Reconcile(ctx)
		if err != nil {
			t.Fatalf("run %d: reconciling: %v", run, err)
		}
		if count != len(users) {
			t.Errorf("run %d: expected %d users, got %d", run, len(users), count)
		}
	}

	for _, userID := range users {
		categories, err := categoryRepo.FindByUser(ctx, userID)
		if err != nil {
			t.Fatalf("finding categories: %v", err)
		}
		if len(categories) != len(calendar.DefaultCategories) {
			t.Errorf("user %s: expected %d categories, got %d", userID, len(calendar.DefaultCategories), len(categories))
		}
	}
}

func TestCategoryReconciler_ScheduleRejectsBadSpec(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	reconciler := NewCategoryReconciler(repository.NewUserRepository(db), calendar.NewBootstrapper(repository.NewCategoryRepository(db)))

	scheduler := cron.New()
	if _, err := reconciler.Schedule(scheduler, "every now and then"); err == nil {
		t.Error("expected invalid spec to be rejected")
	}
	if _, err := reconciler.Schedule(scheduler, "@every 1h"); err != nil {
		t.Errorf("expected valid spec to be accepted: %v", err)
	}
	if len(scheduler.Entries()) != 1 {
		t.Errorf("expected one scheduled entry, got %d", len(scheduler.Entries()))
	}
}
