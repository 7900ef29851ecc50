// Package kernel holds the block-processing implementations for biquad
// sections and selects one at runtime from the detected CPU features.
package kernel

import (
	"sync"

	"github.com/cwbudde/algo-vecmath/cpu"
)

// Coefficients are biquad transfer coefficients (a0 normalized to 1).
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// ProcessBlockFn processes buf in-place with one biquad section.
type ProcessBlockFn func(c Coefficients, d0, d1 float64, buf []float64) (newD0, newD1 float64)

// Entry is one registered kernel implementation.
type Entry struct {
	Name         string
	SIMDLevel    cpu.SIMDLevel
	Priority     int
	ProcessBlock ProcessBlockFn
}

// Registry stores available implementations.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	sorted  bool
}

// Global is the default kernel registry.
var Global = &Registry{}

// Register adds an implementation entry.
func (r *Registry) Register(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	r.sorted = false
}

// Lookup returns the highest-priority implementation supported by features.
func (r *Registry) Lookup(features cpu.Features) *Entry {
	r.mu.Lock()
	if !r.sorted {
		r.sortByPriority()
		r.sorted = true
	}
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.entries {
		entry := &r.entries[i]
		if supports(features, entry.SIMDLevel) {
			return entry
		}
	}

	return nil
}

// Entries returns a copy of the registered entries for tests/debugging.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)

	return entries
}

func (r *Registry) sortByPriority() {
	for i := 1; i < len(r.entries); i++ {
		key := r.entries[i]
		j := i - 1

		for j >= 0 && r.entries[j].Priority < key.Priority {
			r.entries[j+1] = r.entries[j]
			j--
		}

		r.entries[j+1] = key
	}
}

func supports(f cpu.Features, level cpu.SIMDLevel) bool {
	if level == cpu.SIMDNone {
		return true
	}

	if f.ForceGeneric {
		return false
	}

	switch level {
	case cpu.SIMDSSE2:
		return f.HasSSE2
	case cpu.SIMDAVX2:
		return f.HasAVX2
	case cpu.SIMDNEON:
		return f.HasNEON
	default:
		return false
	}
}
