package coordinator

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Subscription is one viewer's ordered queue of notifications for a session
// key. The queue is closed when the subscription ends, either through
// Unsubscribe or because the viewer fell too far behind.
type Subscription struct {
	ID  string
	Key string

	ch   chan any
	once sync.Once
}

// C returns the notification queue. Values are types.BulkResults,
// types.ResultDelta, types.ResultsCleared and types.QueryChanged.
func (s *Subscription) C() <-chan any {
	return s.ch
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Subscribe registers a viewer for key and queues a backfill of the current
// session state as its first message.
func (c *Coordinator) Subscribe(key string) *Subscription {
	sub := &Subscription{
		ID:  uuid.NewString(),
		Key: key,
		ch:  make(chan any, c.opts.SubscriptionBuffer),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		c.subs[key] = set
	}
	set[sub] = struct{}{}
	c.backfillLocked(sub)

	slog.Debug("coordinator: viewer subscribed", "session", key, "subscription", sub.ID)
	return sub
}

// Backfill queues a fresh snapshot of the subscription's session. It returns
// false if the subscription is no longer active.
func (c *Coordinator) Backfill(sub *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[sub.Key][sub]; !ok {
		return false
	}
	return c.backfillLocked(sub)
}

// Unsubscribe ends sub and closes its queue. Safe to call more than once.
func (c *Coordinator) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(sub)
}

// --- internal ---------------------------------------------------------------

func (c *Coordinator) backfillLocked(sub *Subscription) bool {
	return c.enqueueLocked(sub, c.OnViewerAttach(sub.Key))
}

// broadcastLocked queues msg for every subscriber of key.
func (c *Coordinator) broadcastLocked(key string, msg any) {
	for sub := range c.subs[key] {
		c.enqueueLocked(sub, msg)
	}
}

// enqueueLocked queues msg without blocking. A full queue ends the
// subscription so the viewer resynchronises through a fresh backfill.
func (c *Coordinator) enqueueLocked(sub *Subscription, msg any) bool {
	select {
	case sub.ch <- msg:
		return true
	default:
		c.stats.undelivered.Add(1)
		slog.Warn("coordinator: viewer queue full, dropping subscription",
			"session", sub.Key,
			"subscription", sub.ID,
		)
		c.removeLocked(sub)
		return false
	}
}

func (c *Coordinator) removeLocked(sub *Subscription) {
	if set, ok := c.subs[sub.Key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(c.subs, sub.Key)
		}
	}
	sub.close()
}

