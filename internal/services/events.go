package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/harshitkrhere/spiretrack.app-sub000/internal/calendar"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/changefeed"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/repository"
)

// EventService is the store behind every calendar view: it persists events
// and announces each successful write on the change feed.
type EventService struct {
	eventRepo repository.EventRepository
	feed      changefeed.Publisher
}

func NewEventService(eventRepo repository.EventRepository, feed changefeed.Publisher) *EventService {
	return &EventService{eventRepo: eventRepo, feed: feed}
}

func (service *EventService) FindByID(ctx context.Context, userID string, id string) (models.CalendarEvent, error) {
	return service.eventRepo.FindByID(ctx, userID, id)
}

// FindInWindow returns the user's events starting within window, bounds
// inclusive, joined with their category.
func (service *EventService) FindInWindow(ctx context.Context, userID string, window calendar.Window) ([]models.CalendarEvent, error) {
	return service.eventRepo.FindAll(ctx, repository.EventFilter{
		UserID:      userID,
		StartAfter:  &window.Start,
		StartBefore: &window.End,
	})
}

func (service *EventService) FindAll(ctx context.Context, userID string) ([]models.CalendarEvent, error) {
	return service.eventRepo.FindAll(ctx, repository.EventFilter{UserID: userID})
}

func (service *EventService) Create(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error) {
	created, err := service.eventRepo.Create(ctx, event)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	service.publish(ctx, changefeed.ActionInsert, created.UserID, created.ID)
	return created, nil
}

func (service *EventService) Update(ctx context.Context, userID string, id string, patch models.EventPatch) (models.CalendarEvent, error) {
	updated, err := service.eventRepo.Update(ctx, userID, id, patch)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	service.publish(ctx, changefeed.ActionUpdate, userID, id)
	return updated, nil
}

func (service *EventService) Delete(ctx context.Context, userID string, id string) error {
	if err := service.eventRepo.Delete(ctx, userID, id); err != nil {
		return err
	}
	service.publish(ctx, changefeed.ActionDelete, userID, id)
	return nil
}

// publish never fails the write it follows; subscribers catch up on their
// next refresh.
func (service *EventService) publish(ctx context.Context, action changefeed.Action, userID string, recordID string) {
	if service.feed == nil {
		return
	}

	err := service.feed.Publish(ctx, changefeed.Change{
		Table:    changefeed.TableCalendarEvents,
		Action:   action,
		UserID:   userID,
		RecordID: recordID,
		At:       time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("publishing calendar change", "action", action, "record_id", recordID, "error", err)
	}
}
