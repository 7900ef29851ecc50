// Package device abstracts the audio output the equalizer renders into.
//
// An [Output] opens a [Stream] that repeatedly pulls planar stereo blocks
// from a [RenderFunc]. [Null] renders offline on demand; the miniaudio
// subpackage drives a real playback device.
package device

import (
	"context"
	"errors"
)

// ErrClosed is returned when using a stream after Close.
var ErrClosed = errors.New("device: stream closed")

// RenderFunc fills left and right (equal length) with the next block.
type RenderFunc func(left, right []float64)

// Config describes the requested stream format.
type Config struct {
	SampleRate float64
	// FramesPerBuffer is a hint; zero lets the backend choose.
	FramesPerBuffer int
}

// Output acquires streams.
type Output interface {
	Open(ctx context.Context, cfg Config, render RenderFunc) (Stream, error)
}

// Stream is an open output stream.
type Stream interface {
	Start() error
	Close() error
	SampleRate() float64
}
