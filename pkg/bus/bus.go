// Package bus implements the in-process, per-job event fan-out described in
// spec.md §4.1: many producers (every task goroutine an AnalysisCommand
// spawns publishes its own Result) share one totally ordered stream of
// Events, and any number of subscribers (transport connections, test
// harnesses) each receive their own copy over a bounded channel. A slow
// subscriber never blocks a producer or other subscribers; it instead
// observes a Lagged gap and is expected to reconcile against the Job's
// authoritative results log.
package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mailtriage/sentryd/pkg/metrics"
)

// DefaultBufferSize is the per-subscriber channel capacity used when a Bus
// is constructed with New without an explicit size.
const DefaultBufferSize = 100

type subscriber struct {
	id     uuid.UUID
	ch     chan Event
	missed int64 // guarded by Bus.publishMu, never touched concurrently with it
}

// Bus fans out one job's Events to its subscribers. The zero value is not
// usable; construct with New.
type Bus struct {
	mu        sync.RWMutex // guards subs and closed
	publishMu sync.Mutex   // serializes Publish so total order holds across producers
	subs      map[uuid.UUID]*subscriber
	bufSize   int
	closed    bool
}

// New creates a Bus whose subscriber channels are buffered to size. A size
// of 0 or less falls back to DefaultBufferSize.
func New(size int) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Bus{
		subs:    make(map[uuid.UUID]*subscriber),
		bufSize: size,
	}
}

// Subscribe registers a new listener and returns its handle, its receive-only
// channel, and an Unsubscribe function. The channel is closed when the
// caller unsubscribes or when the Bus itself closes after a terminal event.
// Subscribing to an already-closed Bus returns a channel that is closed
// immediately with nothing delivered on it — the caller is expected to
// reconcile from the Job's results log instead.
func (b *Bus) Subscribe() (uuid.UUID, <-chan Event, func()) {
	id := uuid.New()
	ch := make(chan Event, b.bufSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return id, ch, func() {}
	}
	b.subs[id] = &subscriber{id: id, ch: ch}
	b.mu.Unlock()

	return id, ch, func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Publish fans ev out to every current subscriber and never blocks a
// producer on a slow subscriber: a subscriber whose buffer is full has its
// miss counter bumped instead, and the next event delivered to it is
// preceded by a single Lagged marker summarizing the gap. Publishing a
// closing event (Error or JobComplete) closes the Bus — every subscriber
// channel is closed right after ev is offered to it (a subscriber whose
// buffer is full misses ev and only sees its channel close), and
// SubscriberCount drops to zero. Publishing after the Bus has closed is a no-op.
//
// The core is multi-producer — every task goroutine an AnalysisCommand
// spawns publishes its own Result concurrently with its siblings — so
// Publish takes publishMu for its entire body, snapshot through delivery.
// That serializes concurrent Publish calls into a single total order (the
// order they acquire publishMu in) and makes publishMu, not a per-call
// snapshot, the single lock guarding every subscriber's missed counter.
// Subscriber sends themselves stay non-blocking (select/default), so a
// full buffer still never stalls the publisher holding the lock.
func (b *Bus) Publish(ev Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	if ev.IsClosing() {
		b.closed = true
		b.subs = make(map[uuid.UUID]*subscriber)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, ev)
		if ev.IsClosing() {
			close(s.ch)
		}
	}
}

// deliver sends ev to s, first flushing a pending Lagged marker if s missed
// events since its last successful receive. Non-blocking throughout: a full
// channel only ever increments s.missed. Called only from Publish, which
// holds b.publishMu for the duration, so concurrent deliver calls for the
// same subscriber never race on s.missed.
func (b *Bus) deliver(s *subscriber, ev Event) {
	if s.missed > 0 {
		select {
		case s.ch <- newLagged(s.missed):
			s.missed = 0
			metrics.BusSubscribersLagged.Inc()
		default:
			s.missed++
			return
		}
	}
	select {
	case s.ch <- ev:
	default:
		s.missed++
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Closed reports whether a terminal event has already been published.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
