package tracebus

import (
	"context"

	"github.com/graphforge/core/pkg/engine/store"
)

// Tail replays persisted events for runID starting after fromCursor
// and then switches to the live feed, delivering events to fn in
// strict cursor order until ctx is cancelled or the bus evicts the
// subscription. It bridges store.EventStore's durable replay with
// Bus's live tail, matching spec §6's "batch then live stream"
// contract for the trace endpoint.
func Tail(ctx context.Context, events store.EventStore, bus *Bus, runID string, fromCursor uint64, fn func(store.Event)) error {
	live, unsub := bus.Subscribe(runID)
	defer unsub()

	cursor := fromCursor
	for {
		batch, next, err := events.ListEvents(ctx, runID, cursor, 0)
		if err != nil {
			return err
		}
		for _, e := range batch {
			fn(e)
		}
		cursor = next
		if len(batch) == 0 {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-live:
			if !ok {
				return nil
			}
			if e.Cursor <= cursor {
				continue
			}
			fn(e)
			cursor = e.Cursor
		}
	}
}
