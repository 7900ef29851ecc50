package eq

import (
	"strconv"
	"sync"
	"time"
)

// Task is a cancellable deferred call created by a Scheduler.
type Task struct {
	s     *Scheduler
	key   string
	timer *time.Timer

	// guarded by s.mu
	done bool
}

// Cancel stops the task. It reports whether the call was prevented.
func (t *Task) Cancel() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	return t.s.cancelLocked(t)
}

// Scheduler owns a set of deferred calls. Debounced calls are keyed so a new
// call replaces the pending one with the same key.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*Task
	closed  bool
	seq     uint64
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[string]*Task)}
}

// Debounce runs fn after d unless another Debounce with the same key
// arrives first, in which case the earlier call is cancelled.
func (s *Scheduler) Debounce(key string, d time.Duration, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{s: s, key: key}
	if s.closed {
		t.done = true
		return t
	}

	if prev, ok := s.pending[key]; ok {
		s.cancelLocked(prev)
	}

	s.pending[key] = t
	t.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		if t.done {
			s.mu.Unlock()
			return
		}

		t.done = true
		if s.pending[key] == t {
			delete(s.pending, key)
		}
		s.mu.Unlock()

		fn()
	})

	return t
}

// After runs fn once after d under a unique key.
func (s *Scheduler) After(d time.Duration, fn func()) *Task {
	s.mu.Lock()
	s.seq++
	key := "after/" + strconv.FormatUint(s.seq, 10)
	s.mu.Unlock()

	return s.Debounce(key, d, fn)
}

// Pending returns the number of tasks that have not yet run or been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// Close cancels every pending task. Later calls return already-cancelled tasks.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.pending {
		s.cancelLocked(t)
	}

	s.closed = true
}

func (s *Scheduler) cancelLocked(t *Task) bool {
	if t.done {
		return false
	}

	t.done = true
	if t.timer != nil {
		t.timer.Stop()
	}

	if s.pending[t.key] == t {
		delete(s.pending, t.key)
	}

	return true
}
