// Package wavio reads and writes stereo PCM WAV files as planar float64.
package wavio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for files the decoder does not accept.
var ErrInvalidWAV = errors.New("wavio: invalid WAV file")

// Clip is decoded stereo audio. Mono input is duplicated to both channels.
type Clip struct {
	SampleRate int
	BitDepth   int
	Left       []float64
	Right      []float64
}

// Frames returns the clip length in frames.
func (c *Clip) Frames() int { return min(len(c.Left), len(c.Right)) }

// Read decodes r into a Clip.
func Read(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavio: decode: %w", err)
	}

	chans := buf.Format.NumChannels
	if chans < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidWAV, chans)
	}

	depth := int(dec.BitDepth)
	scale := 1 / fullScale(depth)
	frames := len(buf.Data) / chans

	c := &Clip{
		SampleRate: buf.Format.SampleRate,
		BitDepth:   depth,
		Left:       make([]float64, frames),
		Right:      make([]float64, frames),
	}

	for i := 0; i < frames; i++ {
		l := float64(buf.Data[i*chans]) * scale
		r := l
		if chans > 1 {
			r = float64(buf.Data[i*chans+1]) * scale
		}

		c.Left[i], c.Right[i] = l, r
	}

	return c, nil
}

// ReadFile opens and decodes path.
func ReadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavio: open: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Write encodes c as stereo PCM at c.BitDepth (16 if unset), clipping to
// full scale.
func Write(w io.WriteSeeker, c *Clip) error {
	depth := c.BitDepth
	if depth == 0 {
		depth = 16
	}

	frames := c.Frames()
	full := fullScale(depth)
	data := make([]int, 2*frames)

	for i := 0; i < frames; i++ {
		data[2*i] = quantize(c.Left[i], full)
		data[2*i+1] = quantize(c.Right[i], full)
	}

	enc := wav.NewEncoder(w, c.SampleRate, depth, 2, 1)

	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: 2, SampleRate: c.SampleRate},
		SourceBitDepth: depth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: encode: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavio: finalize: %w", err)
	}

	return nil
}

// WriteFile creates path and writes c to it.
func WriteFile(path string, c *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: create: %w", err)
	}

	if err := Write(f, c); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

func fullScale(bitDepth int) float64 {
	return float64(int64(1) << (bitDepth - 1))
}

func quantize(v, full float64) int {
	s := math.Round(v * full)
	return int(math.Max(-full, math.Min(full-1, s)))
}

// Source streams a Clip into an equalizer. It is safe for one reader.
type Source struct {
	clip *Clip

	mu  sync.Mutex
	pos int
}

// NewSource returns a Source positioned at the start of c.
func NewSource(c *Clip) *Source {
	return &Source{clip: c}
}

// Read copies the next frames into left and right and returns the count.
func (s *Source) Read(left, right []float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := copy(left, s.clip.Left[s.pos:s.clip.Frames()])
	copy(right[:n], s.clip.Right[s.pos:])
	s.pos += n

	return n
}

// Done reports whether every frame has been read.
func (s *Source) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pos >= s.clip.Frames()
}
