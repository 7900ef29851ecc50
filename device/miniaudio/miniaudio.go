// Package miniaudio plays equalizer output through the system's default
// playback device using malgo.
package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/algo-eqgraph/device"
	"github.com/gen2brain/malgo"
	"github.com/tphakala/simd/f64"
)

const channels = 2

// Output opens malgo playback streams.
type Output struct {
	// Backends restricts backend selection; nil uses malgo's default order.
	Backends []malgo.Backend
}

// Open initialises a malgo context and an f32 stereo playback device. The
// device does not run until Start.
func (o Output) Open(ctx context.Context, cfg device.Config, render device.RenderFunc) (device.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("miniaudio: invalid sample rate %v", cfg.SampleRate)
	}

	mctx, err := malgo.InitContext(o.Backends, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}

	s := &Stream{ctx: mctx, render: render, sampleRate: cfg.SampleRate}

	devCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	devCfg.Playback.Format = malgo.FormatF32
	devCfg.Playback.Channels = channels
	devCfg.SampleRate = uint32(cfg.SampleRate)
	if cfg.FramesPerBuffer > 0 {
		devCfg.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	}

	dev, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()

		return nil, fmt.Errorf("miniaudio: init device: %w", err)
	}

	s.dev = dev

	return s, nil
}

// Stream is a running or stopped malgo playback device.
type Stream struct {
	ctx        *malgo.AllocatedContext
	dev        *malgo.Device
	render     device.RenderFunc
	sampleRate float64

	closeOnce sync.Once

	// callback scratch, only touched on the device thread
	left, right, interleaved []float64
}

func (s *Stream) Start() error {
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("miniaudio: start: %w", err)
	}

	return nil
}

func (s *Stream) SampleRate() float64 { return s.sampleRate }

// Close stops and releases the device and its context.
func (s *Stream) Close() error {
	err := device.ErrClosed

	s.closeOnce.Do(func() {
		s.dev.Uninit()
		err = s.ctx.Uninit()
		s.ctx.Free()
	})

	return err
}

func (s *Stream) onData(out, _ []byte, frames uint32) {
	n := int(frames)
	s.left = grow(s.left, n)
	s.right = grow(s.right, n)
	s.interleaved = grow(s.interleaved, n*channels)

	s.render(s.left, s.right)
	f64.Interleave2(s.interleaved, s.left, s.right)
	encodeF32(out, s.interleaved)
}

func grow(buf []float64, n int) []float64 {
	if cap(buf) >= n {
		return buf[:n]
	}

	return make([]float64, n)
}

// encodeF32 writes samples as little-endian float32, clipped to [-1, 1].
func encodeF32(dst []byte, samples []float64) {
	n := min(len(samples), len(dst)/4)
	for i := 0; i < n; i++ {
		v := math.Max(-1, math.Min(1, samples[i]))
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(float32(v)))
	}
}
