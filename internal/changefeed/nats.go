package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "spiretrack.calendar"

// NATSFeed publishes each change on "<prefix>.<user id>" so a subscriber
// only receives its own user's traffic.
type NATSFeed struct {
	conn   *nats.Conn
	prefix string
}

func ConnectNATS(url string, prefix string) (*NATSFeed, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	conn, err := nats.Connect(url,
		nats.Name("spiretrack-calendar"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("change feed disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			slog.Info("change feed reconnected", "url", conn.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, subscription *nats.Subscription, err error) {
			subject := ""
			if subscription != nil {
				subject = subscription.Subject
			}
			slog.Error("change feed error", "error", err, "subject", subject)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	slog.Info("change feed connected", "url", conn.ConnectedUrl(), "prefix", prefix)
	return &NATSFeed{conn: conn, prefix: prefix}, nil
}

func (feed *NATSFeed) subject(userID string) string {
	return feed.prefix + "." + userID
}

func (feed *NATSFeed) Publish(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}
	if err := feed.conn.Publish(feed.subject(change.UserID), data); err != nil {
		return fmt.Errorf("publishing change: %w", err)
	}
	return nil
}

func (feed *NATSFeed) Subscribe(userID string, handler func(Change)) (Subscription, error) {
	subscription, err := feed.conn.Subscribe(feed.subject(userID), func(message *nats.Msg) {
		var change Change
		if err := json.Unmarshal(message.Data, &change); err != nil {
			slog.Warn("dropping malformed change", "subject", message.Subject, "error", err)
			return
		}
		handler(change)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", feed.subject(userID), err)
	}
	return subscription, nil
}

func (feed *NATSFeed) Close() error {
	if err := feed.conn.Drain(); err != nil {
		feed.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
