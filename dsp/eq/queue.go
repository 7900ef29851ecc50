package eq

import "sync"

type mutation struct {
	fn   func() error
	err  error
	done chan struct{}
}

// mutationQueue serialises control-path mutations in arrival order. The
// first caller to find the queue idle drains it; later callers block until
// their own mutation has been applied. Mutations must not enqueue others.
type mutationQueue struct {
	mu       sync.Mutex
	pending  []*mutation
	draining bool
	applied  uint64
}

func (q *mutationQueue) do(fn func() error) error {
	m := &mutation{fn: fn, done: make(chan struct{})}

	q.mu.Lock()
	q.pending = append(q.pending, m)

	if q.draining {
		q.mu.Unlock()
		<-m.done

		return m.err
	}

	q.draining = true

	for len(q.pending) > 0 {
		next := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		next.err = next.fn()
		close(next.done)

		q.mu.Lock()
		q.applied++
	}

	q.draining = false
	q.mu.Unlock()

	return m.err
}
