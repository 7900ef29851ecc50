package eq

import (
	"errors"
	"fmt"
)

var (
	// ErrUnusable is returned once the engine could not even route a bypass.
	ErrUnusable = errors.New("eq: engine unusable")
	// ErrDisposed is returned by Initialize after Dispose.
	ErrDisposed = errors.New("eq: engine disposed")
	// ErrStageBudget is returned when a cascade exceeds the per-channel stage limit.
	ErrStageBudget = errors.New("eq: stage budget exceeded")
	// ErrNonFiniteStage is returned when a stage designs to non-finite coefficients.
	ErrNonFiniteStage = errors.New("eq: non-finite stage coefficients")
	// ErrNotConnected is returned when disconnecting a node with no outputs.
	ErrNotConnected = errors.New("eq: node not connected")
	// ErrInvalidBand is returned for bands that cannot be realised.
	ErrInvalidBand = errors.New("eq: invalid band")
	// ErrBandIndex is returned for an out-of-range band index.
	ErrBandIndex = errors.New("eq: band index out of range")
)

// InitError reports a failure to acquire the output device or stream.
type InitError struct {
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("eq: initialize: %s: %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// RoutingError reports a graph construction failure. The engine recovers
// by routing source to output directly and reporting Degraded.
type RoutingError struct {
	Mode Mode
	Err  error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("eq: route %s: %v", e.Mode, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// DisconnectWarning reports a failed best-effort disconnect during teardown.
type DisconnectWarning struct {
	Node string
	Err  error
}

func (w *DisconnectWarning) Error() string {
	return fmt.Sprintf("eq: disconnect %s: %v", w.Node, w.Err)
}

func (w *DisconnectWarning) Unwrap() error { return w.Err }
