package realtime

import (
	"log"
	"sync"
	"time"

	"kindred_server/models"
)

// Broadcaster relays events to an external socket layer. Satisfied by
// *socketio.Server (BroadcastToRoom).
type Broadcaster interface {
	BroadcastToRoom(namespace, room, event string, args ...interface{}) bool
}

// Options tunes the channel's ring sizes and delivery behavior.
type Options struct {
	FeedSize         int           // activity-feed entries kept per user
	EventBacklog     int           // raw state-change events kept per user
	SubscriberBuffer int           // per-subscriber channel buffer
	PublishRetries   int           // delivery attempts before dropping
	RetryDelay       time.Duration // pause between delivery attempts
}

// DefaultOptions mirrors the documented caps: last 100 feed entries,
// last 50 raw events.
func DefaultOptions() Options {
	return Options{
		FeedSize:         100,
		EventBacklog:     50,
		SubscriberBuffer: 64,
		PublishRetries:   3,
		RetryDelay:       10 * time.Millisecond,
	}
}

// Channel is the per-user publish/subscribe fan-out. Delivery to live
// subscribers is ordered per topic and at-least-once: a resubscribing
// consumer may replay a bounded backlog, so consumers de-duplicate on
// Event.DedupKey. The channel keeps no durable per-subscriber queue
// beyond the live connection.
type Channel struct {
	mu     sync.RWMutex
	topics map[string]*topic
	opts   Options

	relay Broadcaster // optional socket bridge
}

type topic struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*Subscription
	feed   []models.ActivityEntry
	events []models.Event
}

// Subscription is one live consumer of a user topic. Events arrive on C
// until Unsubscribe, which stops delivery immediately and closes C.
type Subscription struct {
	UserID string
	C      <-chan models.Event

	id     int64
	ch     chan models.Event
	closed bool
}

// NewChannel builds a channel with the given options; zero fields fall
// back to the defaults.
func NewChannel(opts Options) *Channel {
	def := DefaultOptions()
	if opts.FeedSize <= 0 {
		opts.FeedSize = def.FeedSize
	}
	if opts.EventBacklog <= 0 {
		opts.EventBacklog = def.EventBacklog
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = def.SubscriberBuffer
	}
	if opts.PublishRetries <= 0 {
		opts.PublishRetries = def.PublishRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	return &Channel{topics: make(map[string]*topic), opts: opts}
}

// SetBroadcaster attaches the socket relay. Every published event is
// additionally broadcast to the user's socket room.
func (c *Channel) SetBroadcaster(b Broadcaster) {
	c.mu.Lock()
	c.relay = b
	c.mu.Unlock()
}

func (c *Channel) topicFor(userID string) *topic {
	c.mu.RLock()
	t, ok := c.topics[userID]
	c.mu.RUnlock()
	if ok {
		return t
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok = c.topics[userID]; ok {
		return t
	}
	t = &topic{subs: make(map[int64]*Subscription)}
	c.topics[userID] = t
	return t
}

// Publish records the event in the user's backlog ring and delivers it
// to live subscribers. Publishing never fails the caller: a subscriber
// that cannot accept the event within the bounded retries has it
// dropped with a logged error (the client reconciles by re-fetching on
// reconnect).
func (c *Channel) Publish(userID string, ev models.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	c.deliver(userID, ev)
}

// RelaySuggestion passes an externally-generated match-suggestion event
// through without modification.
func (c *Channel) RelaySuggestion(userID string, ev models.Event) {
	c.deliver(userID, ev)
}

func (c *Channel) deliver(userID string, ev models.Event) {
	t := c.topicFor(userID)

	c.mu.RLock()
	relay := c.relay
	c.mu.RUnlock()

	// The topic lock is held across the whole fan-out, socket relay
	// included, so delivery stays ordered per topic for in-process
	// subscribers and socket-room clients alike.
	t.mu.Lock()
	t.events = appendRing(t.events, ev, c.opts.EventBacklog)
	for _, sub := range t.subs {
		c.send(userID, sub, ev)
	}
	if relay != nil {
		relay.BroadcastToRoom("/", RoomForUser(userID), "state_change", ev)
	}
	t.mu.Unlock()
}

func (c *Channel) send(userID string, sub *Subscription, ev models.Event) {
	for attempt := 0; attempt < c.opts.PublishRetries; attempt++ {
		select {
		case sub.ch <- ev:
			return
		default:
			time.Sleep(c.opts.RetryDelay)
		}
	}
	log.Printf("⚠️ dropping event %s for slow subscriber on topic %s", ev.DedupKey(), userID)
}

// PublishActivity appends one entry to the user's capped activity feed.
func (c *Channel) PublishActivity(userID string, entry models.ActivityEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	t := c.topicFor(userID)
	t.mu.Lock()
	t.feed = appendRing(t.feed, entry, c.opts.FeedSize)
	t.mu.Unlock()
}

// Subscribe registers a live consumer on the user's topic. Up to
// replay of the most recent backlog events are queued onto the new
// subscription before any live event, so a reconnecting client can
// catch up; duplicates are possible and resolved by DedupKey.
func (c *Channel) Subscribe(userID string, replay int) *Subscription {
	t := c.topicFor(userID)

	sub := &Subscription{
		UserID: userID,
		ch:     make(chan models.Event, c.opts.SubscriberBuffer),
	}
	sub.C = sub.ch

	t.mu.Lock()
	if replay > 0 {
		events := t.events
		if replay < len(events) {
			events = events[len(events)-replay:]
		}
		for _, ev := range events {
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
	t.nextID++
	sub.id = t.nextID
	t.subs[sub.id] = sub
	t.mu.Unlock()

	return sub
}

// Unsubscribe stops delivery immediately and closes the subscription's
// channel. Safe to call more than once.
func (c *Channel) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	t := c.topicFor(sub.UserID)
	t.mu.Lock()
	if !sub.closed {
		delete(t.subs, sub.id)
		sub.closed = true
		close(sub.ch)
	}
	t.mu.Unlock()
}

// Feed returns a copy of the user's capped activity feed, oldest first.
func (c *Channel) Feed(userID string) []models.ActivityEntry {
	t := c.topicFor(userID)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ActivityEntry, len(t.feed))
	copy(out, t.feed)
	return out
}

// RecentEvents returns a copy of the user's raw event backlog, oldest
// first.
func (c *Channel) RecentEvents(userID string) []models.Event {
	t := c.topicFor(userID)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Event, len(t.events))
	copy(out, t.events)
	return out
}

// RoomForUser names the socket room bound to a user topic.
func RoomForUser(userID string) string {
	return "user:" + userID
}

func appendRing[T any](ring []T, v T, capSize int) []T {
	ring = append(ring, v)
	if len(ring) > capSize {
		ring = ring[len(ring)-capSize:]
	}
	return ring
}
