package dedupe

import "context"

// Deduper marks event ids as processed (redis, in-memory, bloom prefiltered)
type Deduper interface {
	// Seen marks id and reports whether it had already been marked; true -> duplicate, skip it
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
	// Forget drops the mark so a failed event can be delivered again
	Forget(ctx context.Context, id string) error
}
