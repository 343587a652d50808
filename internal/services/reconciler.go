package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const reconcileConcurrency = 4

// CategoryReconciler repairs every user's category set on a schedule:
// duplicate names are removed and missing defaults are created.
type CategoryReconciler struct {
	userRepo     repository.UserRepository
	bootstrapper *calendar.Bootstrapper
	timeout      time.Duration
}

func NewCategoryReconciler(userRepo repository.UserRepository, bootstrapper *calendar.Bootstrapper) *CategoryReconciler {
	return &CategoryReconciler{
		userRepo:     userRepo,
		bootstrapper: bootstrapper,
		timeout:      5 * time.Minute,
	}
}

// Reconcile processes all users and returns how many were handled. A
// failure for one user does not stop the others; the first error is
// returned once all have run.
func (reconciler *CategoryReconciler) Reconcile(ctx context.Context) (int, error) {
	users, err := reconciler.userRepo.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading users: %w", err)
	}

	var group errgroup.Group
	group.SetLimit(reconcileConcurrency)

	for _, user := range users {
		group.Go(func() error {
			if _, err := reconciler.bootstrapper.Bootstrap(ctx, user.ID); err != nil {
				slog.Error("reconciling categories", "user_id", user.ID, "error", err)
				return fmt.Errorf("reconciling categories for %s: %w", user.ID, err)
			}
			return nil
		})
	}

	return len(users), group.Wait()
}

// Schedule registers the reconciliation on scheduler using a cron spec such
// as "@every 1h" or "0 3 * * *".
func (reconciler *CategoryReconciler) Schedule(scheduler *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconciler.timeout)
		defer cancel()

		started := time.Now()
		count, err := reconciler.Reconcile(ctx)
		if err != nil {
			slog.Error("category reconciliation finished with errors", "users", count, "error", err)
			return
		}
		slog.Info("category reconciliation finished", "users", count, "duration", time.Since(started))
	})
	if err != nil {
		return 0, fmt.Errorf("scheduling category reconciliation %q: %w", spec, err)
	}
	return id, nil
}
