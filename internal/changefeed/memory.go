package changefeed

import (
	"context"
	"sync"
)

// MemoryFeed delivers changes within the process. Handlers run synchronously
// on the publishing goroutine, outside the feed's lock.
type MemoryFeed struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func(Change)
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{handlers: make(map[string]map[int]func(Change))}
}

func (feed *MemoryFeed) Publish(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	feed.mu.RLock()
	handlers := make([]func(Change), 0, len(feed.handlers[change.UserID]))
	for _, handler := range feed.handlers[change.UserID] {
		handlers = append(handlers, handler)
	}
	feed.mu.RUnlock()

	for _, handler := range handlers {
		handler(change)
	}
	return nil
}

func (feed *MemoryFeed) Subscribe(userID string, handler func(Change)) (Subscription, error) {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	feed.nextID++
	id := feed.nextID
	if feed.handlers[userID] == nil {
		feed.handlers[userID] = make(map[int]func(Change))
	}
	feed.handlers[userID][id] = handler

	return &memorySubscription{feed: feed, userID: userID, id: id}, nil
}

func (feed *MemoryFeed) Close() error {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	feed.handlers = make(map[string]map[int]func(Change))
	return nil
}

func (feed *MemoryFeed) subscribers(userID string) int {
	feed.mu.RLock()
	defer feed.mu.RUnlock()
	return len(feed.handlers[userID])
}

type memorySubscription struct {
	feed   *MemoryFeed
	userID string
	id     int
	once   sync.Once
}

func (subscription *memorySubscription) Unsubscribe() error {
	subscription.once.Do(func() {
		feed := subscription.feed
		feed.mu.Lock()
		defer feed.mu.Unlock()
		delete(feed.handlers[subscription.userID], subscription.id)
		if len(feed.handlers[subscription.userID]) == 0 {
			delete(feed.handlers, subscription.userID)
		}
	})
	return nil
}
