package device

import (
	"context"
	"sync"
)

// Null is an offline output. Streams render only when pumped.
type Null struct{}

// Open returns a *NullStream. It fails only if ctx is already done.
func (Null) Open(ctx context.Context, cfg Config, render RenderFunc) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &NullStream{cfg: cfg, render: render}, nil
}

// NullStream renders into caller-visible buffers on Pump.
type NullStream struct {
	cfg    Config
	render RenderFunc

	mu      sync.Mutex
	started bool
	closed  bool
	frames  int64
}

func (s *NullStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.started = true

	return nil
}

func (s *NullStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.closed = true

	return nil
}

func (s *NullStream) SampleRate() float64 { return s.cfg.SampleRate }

// Closed reports whether Close has been called.
func (s *NullStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Frames returns the number of frames rendered so far.
func (s *NullStream) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frames
}

// Pump renders one block into left and right. It is a no-op unless the
// stream is started and open.
func (s *NullStream) Pump(left, right []float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	if !s.started {
		s.mu.Unlock()
		return nil
	}

	s.frames += int64(min(len(left), len(right)))
	s.mu.Unlock()

	s.render(left, right)

	return nil
}
