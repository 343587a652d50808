package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/changefeed"
	"github.com/robfig/cron/v3"
)

// ViewRegistry keeps one calendar view per signed-in user. A view is opened
// on first use at the current month and closed by EvictIdle once unused.
type ViewRegistry struct {
	events       calendar.EventStore
	bootstrapper *calendar.Bootstrapper
	feed         changefeed.Subscriber
	config       calendar.ViewConfig
	clock        func() time.Time

	mu       sync.Mutex
	views    map[string]*calendar.View
	lastUsed map[string]time.Time
}

func NewViewRegistry(events calendar.EventStore, bootstrapper *calendar.Bootstrapper, feed changefeed.Subscriber, config calendar.ViewConfig) *ViewRegistry {
	return &ViewRegistry{
		events:       events,
		bootstrapper: bootstrapper,
		feed:         feed,
		config:       config,
		clock:        time.Now,
		views:        make(map[string]*calendar.View),
		lastUsed:     make(map[string]time.Time),
	}
}

func (registry *ViewRegistry) Get(ctx context.Context, userID string) (*calendar.View, error) {
	registry.mu.Lock()
	view, ok := registry.views[userID]
	if ok {
		registry.lastUsed[userID] = registry.clock()
	}
	registry.mu.Unlock()
	if ok {
		return view, nil
	}

	opened, err := calendar.OpenView(ctx, userID, registry.events, registry.bootstrapper, registry.feed, registry.config, registry.now())
	if err != nil {
		return nil, err
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.lastUsed[userID] = registry.clock()
	if existing, ok := registry.views[userID]; ok {
		if err := opened.Close(); err != nil {
			slog.Warn("closing duplicate calendar view", "user_id", userID, "error", err)
		}
		return existing, nil
	}
	registry.views[userID] = opened
	return opened, nil
}

// Close drops the user's view, e.g. on logout.
func (registry *ViewRegistry) Close(userID string) {
	registry.mu.Lock()
	view, ok := registry.views[userID]
	delete(registry.views, userID)
	delete(registry.lastUsed, userID)
	registry.mu.Unlock()

	if ok {
		if err := view.Close(); err != nil {
			slog.Warn("closing calendar view", "user_id", userID, "error", err)
		}
	}
}

func (registry *ViewRegistry) CloseAll() {
	registry.mu.Lock()
	userIDs := make([]string, 0, len(registry.views))
	for userID := range registry.views {
		userIDs = append(userIDs, userID)
	}
	registry.mu.Unlock()

	for _, userID := range userIDs {
		registry.Close(userID)
	}
}

// EvictIdle closes views that have not been fetched for longer than maxIdle
// and returns how many were closed. Sessions without a logout, such as
// bearer tokens, rely on this to release their views.
func (registry *ViewRegistry) EvictIdle(maxIdle time.Duration) int {
	cutoff := registry.clock().Add(-maxIdle)

	registry.mu.Lock()
	var idle []*calendar.View
	for userID, used := range registry.lastUsed {
		if used.Before(cutoff) {
			idle = append(idle, registry.views[userID])
			delete(registry.views, userID)
			delete(registry.lastUsed, userID)
		}
	}
	registry.mu.Unlock()

	for _, view := range idle {
		if err := view.Close(); err != nil {
			slog.Warn("closing idle calendar view", "user_id", view.UserID(), "error", err)
		}
	}
	return len(idle)
}

// ScheduleEviction runs EvictIdle on scheduler using a cron spec such as
// "@every 5m".
func (registry *ViewRegistry) ScheduleEviction(scheduler *cron.Cron, spec string, maxIdle time.Duration) (cron.EntryID, error) {
	id, err := scheduler.AddFunc(spec, func() {
		if count := registry.EvictIdle(maxIdle); count > 0 {
			slog.Info("evicted idle calendar views", "views", count)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("scheduling view eviction %q: %w", spec, err)
	}
	return id, nil
}

func (registry *ViewRegistry) Len() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.views)
}

func (registry *ViewRegistry) now() time.Time {
	now := time.Now
	if registry.config.Now != nil {
		now = registry.config.Now
	}
	location := registry.config.Location
	if location == nil {
		location = time.UTC
	}
	return now().In(location)
}
