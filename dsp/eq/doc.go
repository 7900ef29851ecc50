// Package eq implements a stereo parametric equalizer graph engine.
//
// An [Engine] owns three band sets (unified, left ear, right ear) and keeps a
// live processing graph in step with them. In [ModeUnified] one cascade of
// peaking stages filters both channels before the balance stage; in
// [ModeSplitEar] each ear has its own cascade. Mutations that change the
// topology rebuild the graph; all other changes ramp the existing stage
// parameters on the audio clock so playback stays click-free.
//
// [Engine.FrequencyResponse] returns the magnitude response of the live
// stages, or a log-Gaussian approximation from the band model when no graph
// is routed. Results are cached until the next mutation.
//
// If graph construction fails the engine routes source straight to output
// and reports [Engine.Degraded]; if even that fails it becomes unusable and
// control calls return [ErrUnusable].
package eq
