// Package changefeed delivers row-change notifications for a user's
// calendar data to whoever is displaying it.
package changefeed

import (
	"context"
	"time"
)

type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

const TableCalendarEvents = "calendar_events"

type Change struct {
	Table    string    `json:"table"`
	Action   Action    `json:"action"`
	UserID   string    `json:"user_id"`
	RecordID string    `json:"record_id"`
	At       time.Time `json:"at"`
}

type Subscription interface {
	Unsubscribe() error
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

type Subscriber interface {
	Subscribe(userID string, handler func(Change)) (Subscription, error)
}

type Feed interface {
	Publisher
	Subscriber
	Close() error
}
