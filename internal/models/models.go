package models

import (
	"slices"
	"time"
)

type RepeatPattern string

const (
	RepeatNone    RepeatPattern = ""
	RepeatDaily   RepeatPattern = "daily"
	RepeatWeekly  RepeatPattern = "weekly"
	RepeatMonthly RepeatPattern = "monthly"
	// RepeatCustom is stored but has no recurrence rule attached, so it is
	// never expanded.
	RepeatCustom RepeatPattern = "custom"
)

func (pattern RepeatPattern) Valid() bool {
	switch pattern {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatCustom:
		return true
	}
	return false
}

// Expands reports whether occurrences are materialized for the pattern.
func (pattern RepeatPattern) Expands() bool {
	return pattern == RepeatDaily || pattern == RepeatWeekly || pattern == RepeatMonthly
}

type TokenScope string

const (
	TokenScopeAPI  TokenScope = "api"
	TokenScopeICal TokenScope = "ical"
)

type User struct {
	ID          string    `json:"id"`
	OIDCSubject string    `json:"-"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CalendarCategory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	IsDefault bool      `json:"is_default"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type CalendarEvent struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	CategoryID      *string           `json:"category_id"`
	Category        *CalendarCategory `json:"category,omitempty"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	Location        string            `json:"location,omitempty"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	IsAllDay        bool              `json:"is_all_day"`
	ReminderMinutes *int              `json:"reminder_minutes,omitempty"`
	RepeatPattern   RepeatPattern     `json:"repeat_pattern,omitempty"`
	Attendees       []string          `json:"attendees,omitempty"`
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Duration is EndTime minus StartTime. It is negative for events whose end
// precedes their start; nothing rejects such rows.
func (event CalendarEvent) Duration() time.Duration {
	return event.EndTime.Sub(event.StartTime)
}

// Clone returns a copy that shares no pointers or slices with event.
func (event CalendarEvent) Clone() CalendarEvent {
	clone := event
	if event.CategoryID != nil {
		categoryID := *event.CategoryID
		clone.CategoryID = &categoryID
	}
	if event.Category != nil {
		category := *event.Category
		clone.Category = &category
	}
	if event.ReminderMinutes != nil {
		minutes := *event.ReminderMinutes
		clone.ReminderMinutes = &minutes
	}
	clone.Attendees = slices.Clone(event.Attendees)
	return clone
}

// EventPatch is a partial update. Nil fields are left unchanged; an empty
// CategoryID clears the category.
type EventPatch struct {
	Title           *string        `json:"title,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Location        *string        `json:"location,omitempty"`
	CategoryID      *string        `json:"category_id,omitempty"`
	StartTime       *time.Time     `json:"start_time,omitempty"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	IsAllDay        *bool          `json:"is_all_day,omitempty"`
	ReminderMinutes *int           `json:"reminder_minutes,omitempty"`
	ClearReminder   bool           `json:"clear_reminder,omitempty"`
	RepeatPattern   *RepeatPattern `json:"repeat_pattern,omitempty"`
	Attendees       *[]string      `json:"attendees,omitempty"`

	// ExpectedVersion, when non-zero, must match the stored version.
	ExpectedVersion int `json:"expected_version,omitempty"`
}

func (patch EventPatch) Apply(event CalendarEvent) CalendarEvent {
	event = event.Clone()
	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.CategoryID != nil {
		if *patch.CategoryID == "" {
			event.CategoryID = nil
		} else {
			categoryID := *patch.CategoryID
			event.CategoryID = &categoryID
		}
		if event.Category != nil && (event.CategoryID == nil || *event.CategoryID != event.Category.ID) {
			event.Category = nil
		}
	}
	if patch.StartTime != nil {
		event.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		event.EndTime = *patch.EndTime
	}
	if patch.IsAllDay != nil {
		event.IsAllDay = *patch.IsAllDay
	}
	if patch.ClearReminder {
		event.ReminderMinutes = nil
	} else if patch.ReminderMinutes != nil {
		minutes := *patch.ReminderMinutes
		event.ReminderMinutes = &minutes
	}
	if patch.RepeatPattern != nil {
		event.RepeatPattern = *patch.RepeatPattern
	}
	if patch.Attendees != nil {
		event.Attendees = slices.Clone(*patch.Attendees)
	}
	return event
}

type APIToken struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	TokenHash string     `json:"-"`
	Scope     TokenScope `json:"scope"`
	UserID    string     `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (token APIToken) Expired(now time.Time) bool {
	return token.ExpiresAt != nil && token.ExpiresAt.Before(now)
}
