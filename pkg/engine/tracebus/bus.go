package tracebus

import (
	"sync"

	"github.com/graphforge/core/pkg/engine/store"
)

// SubscriberBuffer is the per-subscriber channel capacity. A
// subscriber that falls behind by more than this many events is
// evicted rather than allowed to block publishers (spec §4.3
// "back-pressure").
const SubscriberBuffer = 256

// Bus is a per-run, in-memory append-only event channel (spec §4.3).
// It never assigns cursors itself — callers publish events that have
// already been durably appended (and cursor-stamped) via
// pkg/engine/store, so every subscriber sees the same total order the
// store recorded.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscription
}

type subscription struct {
	ch      chan store.Event
	evicted bool
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]*subscription)}
}

// Publish fans events out to every live subscriber of runID, in order.
// A subscriber whose buffer is full is evicted: its channel is closed
// and it is dropped from the subscriber list, rather than skipping the
// single event (skipping would let that reader silently miss events
// going forward with no signal; eviction gives it an unambiguous
// "session ended" close instead).
func (b *Bus) Publish(runID string, events []store.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[runID]
	if len(subs) == 0 {
		return
	}

	live := subs[:0]
	for _, sub := range subs {
		if sub.evicted {
			continue
		}
		for _, e := range events {
			select {
			case sub.ch <- e:
			default:
				sub.evicted = true
				close(sub.ch)
			}
			if sub.evicted {
				break
			}
		}
		if !sub.evicted {
			live = append(live, sub)
		}
	}
	b.subscribers[runID] = live
}

// Subscribe returns a channel of live events for runID from this point
// forward, and an unsubscribe function the caller must call when done
// tailing (e.g. on request cancellation). Replay of events before the
// subscription started is the caller's responsibility via
// store.EventStore.ListEvents — the bus only ever tails live.
func (b *Bus) Subscribe(runID string) (<-chan store.Event, func()) {
	sub := &subscription{ch: make(chan store.Event, SubscriberBuffer)}

	b.mu.Lock()
	b.subscribers[runID] = append(b.subscribers[runID], sub)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[runID]
		for i, s := range subs {
			if s == sub {
				b.subscribers[runID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if !sub.evicted {
			close(sub.ch)
		}
	}
	return sub.ch, unsub
}

// SubscriberCount reports the number of live subscribers tailing runID.
func (b *Bus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[runID])
}

// Close evicts every subscriber for runID, e.g. once the run reaches a
// terminal state and no further events will ever be published.
func (b *Bus) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers[runID] {
		if !sub.evicted {
			close(sub.ch)
			sub.evicted = true
		}
	}
	delete(b.subscribers, runID)
}
