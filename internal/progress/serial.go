package progress

import (
	"context"
	"sync"
)

// keyQueue serializes work per key in arrival order. Each acquirer becomes the
// new tail for its key and waits for the previous tail to finish.
type keyQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newKeyQueue() *keyQueue {
	return &keyQueue{tails: make(map[string]chan struct{})}
}

// acquire blocks until every earlier acquirer of key has released. If ctx ends
// while waiting, the slot is still handed on once the predecessor finishes.
func (q *keyQueue) acquire(ctx context.Context, key string) (func(), error) {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	release := func() {
		q.mu.Lock()
		if q.tails[key] == done {
			delete(q.tails, key)
		}
		q.mu.Unlock()
		close(done)
	}

	if prev == nil {
		return release, nil
	}

	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}
