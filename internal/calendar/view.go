package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/changefeed"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrViewClosed       = errors.New("view closed")
)

const refreshTimeout = 10 * time.Second

type EventStore interface {
	FindByID(ctx context.Context, userID string, id string) (models.CalendarEvent, error)
	FindInWindow(ctx context.Context, userID string, window Window) ([]models.CalendarEvent, error)
	Create(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error)
	Update(ctx context.Context, userID string, id string, patch models.EventPatch) (models.CalendarEvent, error)
	Delete(ctx context.Context, userID string, id string) error
}

type ViewConfig struct {
	Location  *time.Location
	WeekStart time.Weekday
	Now       func() time.Time
}

func (config ViewConfig) location() *time.Location {
	if config.Location == nil {
		return time.UTC
	}
	return config.Location
}

func (config ViewConfig) now() time.Time {
	if config.Now == nil {
		return time.Now()
	}
	return config.Now()
}

// Materialize expands events over window and applies filter, evaluating
// the past check against now.
func Materialize(events []models.CalendarEvent, window Window, filter Filter, now time.Time) []EventInstance {
	return filter.Apply(Expand(events, window), now, window.Location())
}

type CategoryState struct {
	models.CalendarCategory
	Active bool `json:"active"`
}

type ViewState struct {
	Anchor     time.Time       `json:"anchor"`
	Window     Window          `json:"window"`
	Categories []CategoryState `json:"categories"`
	Filter     Filter          `json:"filter"`
	Instances  []EventInstance `json:"instances"`
}

type monthKey struct {
	year  int
	month time.Month
}

// View is one user's calendar as displayed: the current month window, the
// raw events fetched for it, category toggles and filter settings. Mutations
// are applied locally before the store confirms them. The lock is never held
// across a store call.
type View struct {
	userID string
	events EventStore
	feed   changefeed.Subscriber
	config ViewConfig

	mu           sync.Mutex
	anchor       time.Time
	key          monthKey
	window       Window
	raw          []models.CalendarEvent
	categories   []models.CalendarCategory
	filter       Filter
	fetches      uint64
	subscription changefeed.Subscription
	closed       bool
}

// OpenView bootstraps the user's categories, switches all of them on and
// loads the month containing anchor.
func OpenView(ctx context.Context, userID string, events EventStore, bootstrapper *Bootstrapper, feed changefeed.Subscriber, config ViewConfig, anchor time.Time) (*View, error) {
	categories, err := bootstrapper.Bootstrap(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping categories: %w", err)
	}

	active := make(CategorySet, len(categories))
	for _, category := range categories {
		active[category.ID] = true
	}

	view := &View{
		userID:     userID,
		events:     events,
		feed:       feed,
		config:     config,
		categories: categories,
		filter:     Filter{ActiveCategories: active},
	}
	// A failed first fetch is logged by Refresh; the view opens empty and
	// fills on the next change or anchor move.
	_ = view.SetAnchor(ctx, anchor)
	return view, nil
}

func (view *View) UserID() string {
	return view.userID
}

// SetAnchor moves the view to the month containing anchor. Moving within the
// same month keeps the loaded events; otherwise the window is refetched and
// the change subscription is re-established for it.
func (view *View) SetAnchor(ctx context.Context, anchor time.Time) error {
	anchor = anchor.In(view.config.location())
	key := monthKey{year: anchor.Year(), month: anchor.Month()}

	view.mu.Lock()
	if view.closed {
		view.mu.Unlock()
		return ErrViewClosed
	}
	view.anchor = anchor
	if key == view.key && !view.window.Start.IsZero() {
		view.mu.Unlock()
		return nil
	}
	view.key = key
	view.window = FetchWindow(anchor, view.config.WeekStart)
	previous := view.subscription
	view.subscription = nil
	view.mu.Unlock()

	if previous != nil {
		if err := previous.Unsubscribe(); err != nil {
			slog.Warn("unsubscribing from calendar changes", "user_id", view.userID, "error", err)
		}
	}
	view.subscribe()

	return view.Refresh(ctx)
}

func (view *View) subscribe() {
	if view.feed == nil {
		return
	}

	subscription, err := view.feed.Subscribe(view.userID, view.handleChange)
	if err != nil {
		slog.Error("subscribing to calendar changes", "user_id", view.userID, "error", err)
		return
	}

	view.mu.Lock()
	defer view.mu.Unlock()
	if view.closed || view.subscription != nil {
		if err := subscription.Unsubscribe(); err != nil {
			slog.Warn("dropping surplus calendar subscription", "user_id", view.userID, "error", err)
		}
		return
	}
	view.subscription = subscription
}

func (view *View) handleChange(change changefeed.Change) {
	if change.Table != changefeed.TableCalendarEvents {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	// Refresh logs its own failures.
	_ = view.Refresh(ctx)
}

// Refresh refetches the current window. Only the newest fetch is applied; a
// failed fetch is logged and leaves the loaded events in place.
func (view *View) Refresh(ctx context.Context) error {
	view.mu.Lock()
	if view.closed {
		view.mu.Unlock()
		return ErrViewClosed
	}
	view.fetches++
	fetch := view.fetches
	window := view.window
	view.mu.Unlock()

	events, err := view.events.FindInWindow(ctx, view.userID, window)
	if err != nil {
		slog.Error("fetching calendar events", "user_id", view.userID, "error", err)
		return fmt.Errorf("fetching calendar events: %w", err)
	}

	view.mu.Lock()
	defer view.mu.Unlock()
	if fetch != view.fetches {
		slog.Debug("discarding stale calendar fetch", "user_id", view.userID, "fetch", fetch)
		return nil
	}
	view.raw = events
	return nil
}

func (view *View) Window() Window {
	view.mu.Lock()
	defer view.mu.Unlock()
	return view.window
}

func (view *View) Categories() []CategoryState {
	view.mu.Lock()
	defer view.mu.Unlock()
	return view.categoryStates()
}

func (view *View) categoryStates() []CategoryState {
	states := make([]CategoryState, 0, len(view.categories))
	for _, category := range view.categories {
		states = append(states, CategoryState{
			CalendarCategory: category,
			Active:           view.filter.ActiveCategories[category.ID],
		})
	}
	return states
}

// ToggleCategory flips the category's active flag and returns the new value.
func (view *View) ToggleCategory(categoryID string) (bool, error) {
	view.mu.Lock()
	defer view.mu.Unlock()

	if !slices.ContainsFunc(view.categories, func(category models.CalendarCategory) bool {
		return category.ID == categoryID
	}) {
		return false, fmt.Errorf("toggling category %s: %w", categoryID, ErrCategoryNotFound)
	}

	active := cloneSet(view.filter.ActiveCategories)
	active[categoryID] = !active[categoryID]
	view.filter.ActiveCategories = active
	return active[categoryID], nil
}

// AddCategory makes a newly created category known to the view, switched on.
func (view *View) AddCategory(category models.CalendarCategory) {
	view.mu.Lock()
	defer view.mu.Unlock()

	if slices.ContainsFunc(view.categories, func(existing models.CalendarCategory) bool {
		return existing.ID == category.ID
	}) {
		return
	}
	view.categories = append(view.categories, category)
	active := cloneSet(view.filter.ActiveCategories)
	active[category.ID] = true
	view.filter.ActiveCategories = active
}

// SetFilter replaces the predicate toggles. Category toggles are kept unless
// filter carries its own set.
func (view *View) SetFilter(filter Filter) {
	view.mu.Lock()
	defer view.mu.Unlock()

	if filter.ActiveCategories == nil {
		filter.ActiveCategories = view.filter.ActiveCategories
	} else {
		filter.ActiveCategories = cloneSet(filter.ActiveCategories)
	}
	view.filter = filter
}

func (view *View) Filter() Filter {
	view.mu.Lock()
	defer view.mu.Unlock()
	filter := view.filter
	filter.ActiveCategories = cloneSet(filter.ActiveCategories)
	return filter
}

// Instances returns every expanded instance of the window, unfiltered.
func (view *View) Instances() []EventInstance {
	view.mu.Lock()
	defer view.mu.Unlock()
	return Expand(view.raw, view.window)
}

// Visible returns the expanded instances that pass the current filter.
func (view *View) Visible() []EventInstance {
	now := view.config.now()

	view.mu.Lock()
	defer view.mu.Unlock()
	return Materialize(view.raw, view.window, view.filter, now)
}

func (view *View) State() ViewState {
	now := view.config.now()

	view.mu.Lock()
	defer view.mu.Unlock()

	filter := view.filter
	filter.ActiveCategories = cloneSet(filter.ActiveCategories)
	return ViewState{
		Anchor:     view.anchor,
		Window:     view.window,
		Categories: view.categoryStates(),
		Filter:     filter,
		Instances:  Materialize(view.raw, view.window, view.filter, now),
	}
}

// CreateEvent stores event for the view's user and adds it to the loaded
// events once the store accepts it.
func (view *View) CreateEvent(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error) {
	event.UserID = view.userID
	created, err := view.events.Create(ctx, event)
	if err != nil {
		slog.Error("creating calendar event", "user_id", view.userID, "error", err)
		return models.CalendarEvent{}, fmt.Errorf("creating event: %w", err)
	}

	view.mu.Lock()
	defer view.mu.Unlock()
	view.upsert(created)
	return created, nil
}

// UpdateEvent patches the event locally, then in the store. If the store
// rejects the patch the local copy is restored. An instance id targets the
// event the instance was expanded from.
func (view *View) UpdateEvent(ctx context.Context, id string, patch models.EventPatch) (models.CalendarEvent, error) {
	sourceID := SourceID(id)

	view.mu.Lock()
	snapshot, loaded := view.find(sourceID)
	if loaded {
		view.upsert(patch.Apply(snapshot))
	}
	view.mu.Unlock()

	updated, err := view.events.Update(ctx, view.userID, sourceID, patch)
	if err != nil {
		slog.Error("updating calendar event", "user_id", view.userID, "event_id", sourceID, "error", err)
		if loaded {
			view.mu.Lock()
			view.replace(snapshot)
			view.mu.Unlock()
		}
		return models.CalendarEvent{}, fmt.Errorf("updating event: %w", err)
	}

	view.mu.Lock()
	defer view.mu.Unlock()
	view.replace(updated)
	return updated, nil
}

// DeleteEvent removes the event locally, then from the store. A store
// failure is logged and returned; the local removal stands until the next
// refresh.
func (view *View) DeleteEvent(ctx context.Context, id string) error {
	sourceID := SourceID(id)

	view.mu.Lock()
	view.raw = slices.DeleteFunc(slices.Clone(view.raw), func(event models.CalendarEvent) bool {
		return event.ID == sourceID
	})
	view.mu.Unlock()

	if err := view.events.Delete(ctx, view.userID, sourceID); err != nil {
		slog.Error("deleting calendar event", "user_id", view.userID, "event_id", sourceID, "error", err)
		return fmt.Errorf("deleting event: %w", err)
	}
	return nil
}

// MoveEvent drops the instance id onto day, keeping time of day and
// duration. Moving a synthetic instance shifts its whole series.
func (view *View) MoveEvent(ctx context.Context, id string, day time.Time, expectedVersion int) (models.CalendarEvent, error) {
	sourceID, occurrence := ParseInstanceID(id)

	view.mu.Lock()
	template, loaded := view.find(sourceID)
	view.mu.Unlock()

	if !loaded {
		var err error
		template, err = view.events.FindByID(ctx, view.userID, sourceID)
		if err != nil {
			return models.CalendarEvent{}, fmt.Errorf("loading event to move: %w", err)
		}
	}

	location := view.config.location()
	occurrenceStart := template.StartTime
	if occurrence > 0 {
		if !template.RepeatPattern.Expands() || occurrence > MaxRecurringInstances {
			return models.CalendarEvent{}, fmt.Errorf("moving instance %s: %w", id, ErrEventNotFound)
		}
		occurrenceStart = advance(template.StartTime.In(location), template.RepeatPattern, occurrence)
	}

	start, end := Reschedule(template, occurrenceStart, day, location)
	return view.UpdateEvent(ctx, sourceID, models.EventPatch{
		StartTime:       &start,
		EndTime:         &end,
		ExpectedVersion: expectedVersion,
	})
}

// Close stops change delivery. A closed view no longer refetches.
func (view *View) Close() error {
	view.mu.Lock()
	view.closed = true
	subscription := view.subscription
	view.subscription = nil
	view.mu.Unlock()

	if subscription != nil {
		return subscription.Unsubscribe()
	}
	return nil
}

func (view *View) find(id string) (models.CalendarEvent, bool) {
	index := slices.IndexFunc(view.raw, func(event models.CalendarEvent) bool {
		return event.ID == id
	})
	if index < 0 {
		return models.CalendarEvent{}, false
	}
	return view.raw[index].Clone(), true
}

// upsert replaces the event with the same id or appends it. The slice is
// copied first since Instances callers may still hold the previous one.
func (view *View) upsert(event models.CalendarEvent) {
	raw := slices.Clone(view.raw)
	index := slices.IndexFunc(raw, func(existing models.CalendarEvent) bool {
		return existing.ID == event.ID
	})
	if index >= 0 {
		raw[index] = event
	} else {
		raw = append(raw, event)
	}
	view.raw = raw
}

// replace swaps in event only if an event with its id is still loaded.
func (view *View) replace(event models.CalendarEvent) {
	if _, loaded := view.find(event.ID); loaded {
		view.upsert(event)
	}
}

func cloneSet(set CategorySet) CategorySet {
	clone := make(CategorySet, len(set))
	for id, active := range set {
		clone[id] = active
	}
	return clone
}
