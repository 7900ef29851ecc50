package device

import (
	"context"
	"errors"
)

// ErrUnavailable is the default error returned by Failing.
var ErrUnavailable = errors.New("device: output unavailable")

// Failing is an Output whose Open always fails. Used to exercise
// initialization failure paths.
type Failing struct {
	Err error
}

func (f Failing) Open(context.Context, Config, RenderFunc) (Stream, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	return nil, ErrUnavailable
}
