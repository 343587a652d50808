package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harshitkrhere/spiretrack.app-sub000/internal/models"
)

// EventFilter bounds are inclusive.
type EventFilter struct {
	UserID      string
	StartAfter  *time.Time
	StartBefore *time.Time
	CategoryID  *string
}

type EventRepository interface {
	FindByID(ctx context.Context, userID string, id string) (models.CalendarEvent, error)
	FindAll(ctx context.Context, filter EventFilter) ([]models.CalendarEvent, error)
	Create(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error)
	Update(ctx context.Context, userID string, id string, patch models.EventPatch) (models.CalendarEvent, error)
	Delete(ctx context.Context, userID string, id string) error
}

type SQLiteEventRepository struct {
	database *sql.DB
}

func NewEventRepository(database *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{database: database}
}

const selectEvents = `SELECT e.id, e.user_id, e.category_id, e.title, e.description, e.location,
	e.start_time, e.end_time, e.is_all_day, e.reminder_minutes, e.repeat_pattern, e.attendees,
	e.version, e.created_at, e.updated_at,
	c.id, c.user_id, c.name, c.color, c.is_default, c.position, c.created_at
FROM calendar_events e
LEFT JOIN calendar_categories c ON c.id = e.category_id`

func (repository *SQLiteEventRepository) FindByID(ctx context.Context, userID string, id string) (models.CalendarEvent, error) {
	return findEvent(ctx, repository.database, userID, id)
}

func findEvent(ctx context.Context, querier queryRower, userID string, id string) (models.CalendarEvent, error) {
	event, err := scanEvent(querier.QueryRowContext(ctx,
		selectEvents+" WHERE e.id = ? AND e.user_id = ?", id, userID,
	))
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("finding event by id: %w", notFound(err))
	}
	return event, nil
}

func (repository *SQLiteEventRepository) FindAll(ctx context.Context, filter EventFilter) ([]models.CalendarEvent, error) {
	query := selectEvents + " WHERE 1=1"
	var args []any

	if filter.UserID != "" {
		query += " AND e.user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.StartAfter != nil {
		query += " AND e.start_time >= ?"
		args = append(args, storedTime(*filter.StartAfter))
	}
	if filter.StartBefore != nil {
		query += " AND e.start_time <= ?"
		args = append(args, filter.StartBefore.UTC())
	}
	if filter.CategoryID != nil {
		query += " AND e.category_id = ?"
		args = append(args, *filter.CategoryID)
	}

	query += " ORDER BY e.start_time ASC, e.id ASC"

	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding events: %w", err)
	}
	defer rows.Close()

	var events []models.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (repository *SQLiteEventRepository) Create(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := storedTime(time.Now())

	attendees, err := encodeAttendees(event.Attendees)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("creating event: %w", err)
	}

	_, err = repository.database.ExecContext(ctx,
		`INSERT INTO calendar_events (id, user_id, category_id, title, description, location,
			start_time, end_time, is_all_day, reminder_minutes, repeat_pattern, attendees,
			version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		event.ID, event.UserID, event.CategoryID, event.Title, event.Description, event.Location,
		storedTime(event.StartTime), storedTime(event.EndTime), event.IsAllDay, event.ReminderMinutes,
		string(event.RepeatPattern), attendees, now, now,
	)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("creating event: %w", err)
	}
	return repository.FindByID(ctx, event.UserID, event.ID)
}

// Update applies patch inside a transaction. A non-zero ExpectedVersion that
// does not match the stored row yields ErrVersionConflict.
func (repository *SQLiteEventRepository) Update(ctx context.Context, userID string, id string, patch models.EventPatch) (models.CalendarEvent, error) {
	transaction, err := repository.database.BeginTx(ctx, nil)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("beginning event update: %w", err)
	}
	defer transaction.Rollback()

	current, err := findEvent(ctx, transaction, userID, id)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	if patch.ExpectedVersion != 0 && patch.ExpectedVersion != current.Version {
		return models.CalendarEvent{}, fmt.Errorf("updating event %s at version %d: %w",
			id, patch.ExpectedVersion, ErrVersionConflict)
	}

	updated := patch.Apply(current)
	attendees, err := encodeAttendees(updated.Attendees)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("updating event: %w", err)
	}

	result, err := transaction.ExecContext(ctx,
		`UPDATE calendar_events SET category_id = ?, title = ?, description = ?, location = ?,
			start_time = ?, end_time = ?, is_all_day = ?, reminder_minutes = ?, repeat_pattern = ?,
			attendees = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND user_id = ? AND version = ?`,
		updated.CategoryID, updated.Title, updated.Description, updated.Location,
		storedTime(updated.StartTime), storedTime(updated.EndTime), updated.IsAllDay,
		updated.ReminderMinutes, string(updated.RepeatPattern), attendees, storedTime(time.Now()),
		id, userID, current.Version,
	)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("updating event: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return models.CalendarEvent{}, fmt.Errorf("updating event %s: %w", id, ErrVersionConflict)
	}

	updated, err = findEvent(ctx, transaction, userID, id)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	if err := transaction.Commit(); err != nil {
		return models.CalendarEvent{}, fmt.Errorf("committing event update: %w", err)
	}
	return updated, nil
}

func (repository *SQLiteEventRepository) Delete(ctx context.Context, userID string, id string) error {
	result, err := repository.database.ExecContext(ctx,
		"DELETE FROM calendar_events WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("deleting event %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanEvent(scanner rowScanner) (models.CalendarEvent, error) {
	var (
		event           models.CalendarEvent
		categoryID      sql.NullString
		reminderMinutes sql.NullInt64
		repeatPattern   string
		attendees       string
		joinedID        sql.NullString
		joinedUserID    sql.NullString
		joinedName      sql.NullString
		joinedColor     sql.NullString
		joinedDefault   sql.NullBool
		joinedPosition  sql.NullInt64
		joinedCreatedAt sql.NullTime
	)
	err := scanner.Scan(
		&event.ID, &event.UserID, &categoryID, &event.Title, &event.Description, &event.Location,
		&event.StartTime, &event.EndTime, &event.IsAllDay, &reminderMinutes, &repeatPattern, &attendees,
		&event.Version, &event.CreatedAt, &event.UpdatedAt,
		&joinedID, &joinedUserID, &joinedName, &joinedColor, &joinedDefault, &joinedPosition, &joinedCreatedAt,
	)
	if err != nil {
		return models.CalendarEvent{}, err
	}

	if categoryID.Valid {
		event.CategoryID = &categoryID.String
	}
	if reminderMinutes.Valid {
		minutes := int(reminderMinutes.Int64)
		event.ReminderMinutes = &minutes
	}
	event.RepeatPattern = models.RepeatPattern(repeatPattern)
	if attendees != "" {
		if err := json.Unmarshal([]byte(attendees), &event.Attendees); err != nil {
			return models.CalendarEvent{}, fmt.Errorf("decoding attendees: %w", err)
		}
	}
	if joinedID.Valid {
		event.Category = &models.CalendarCategory{
			ID:        joinedID.String,
			UserID:    joinedUserID.String,
			Name:      joinedName.String,
			Color:     joinedColor.String,
			IsDefault: joinedDefault.Bool,
			Position:  int(joinedPosition.Int64),
			CreatedAt: joinedCreatedAt.Time,
		}
	}
	return event, nil
}

func encodeAttendees(attendees []string) (string, error) {
	if attendees == nil {
		attendees = []string{}
	}
	encoded, err := json.Marshal(attendees)
	if err != nil {
		return "", fmt.Errorf("encoding attendees: %w", err)
	}
	return string(encoded), nil
}

// storedTime normalizes instants to whole seconds in UTC so that the text
// representation SQLite compares in range queries sorts chronologically.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
