package eq

import (
	"sync"

	"github.com/cwbudde/algo-eqgraph/device"
)

// renderGate admits one stream's callbacks into Engine.Render. Closing the
// gate waits for an in-flight callback, after which the stream only
// renders silence.
type renderGate struct {
	mu   sync.Mutex
	live bool
}

// render returns the stream callback bound to g.
func (g *renderGate) render(e *Engine) device.RenderFunc {
	return func(left, right []float64) {
		// The lock is only contended while the gate is being switched.
		if !g.mu.TryLock() {
			clear(left)
			clear(right)

			return
		}
		defer g.mu.Unlock()

		if !g.live {
			clear(left)
			clear(right)

			return
		}

		e.Render(left, right)
	}
}

// set opens or closes the gate. A nil gate is ignored.
func (g *renderGate) set(live bool) {
	if g == nil {
		return
	}

	g.mu.Lock()
	g.live = live
	g.mu.Unlock()
}
