// Package liveness distinguishes a live face from a static photograph
// using frame-to-frame motion. No depth sensor is assumed: a printed
// photo or a phone screen held motionless produces near-zero pixel
// change inside the face region across the observation window, while a
// physically present subject never holds perfectly still.
package liveness

import (
	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/detect"
)

// Verdict is the outcome of a liveness evaluation.
type Verdict int

const (
	// Insufficient means fewer frames than the window size have been
	// observed. It must never be treated as Live.
	Insufficient Verdict = iota
	// Static means the face region showed no meaningful motion for the
	// whole window. This is the spoof signal.
	Static
	// Live means accumulated motion over the window exceeded the threshold.
	Live
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Live:
		return "live"
	case Static:
		return "static"
	default:
		return "insufficient"
	}
}

// Params tunes the guard.
type Params struct {
	// WindowSize is the number of consecutive frames evaluated together.
	WindowSize int
	// MotionThreshold is the minimum accumulated motion score over the
	// window for a Live verdict.
	MotionThreshold float64
	// NoiseFloor ignores per-pixel deltas at or below this value, so
	// sensor noise does not register as motion.
	NoiseFloor int
}

// Guard keeps a rolling window of motion scores for the most recent
// frames. It holds no long-term history: Reset discards everything.
type Guard struct {
	params Params

	prev   camera.Frame
	hasPrev bool
	scores []float64
}

// NewGuard creates a guard with the given parameters.
func NewGuard(params Params) *Guard {
	if params.WindowSize < 2 {
		params.WindowSize = 2
	}
	return &Guard{params: params}
}

// WindowSize returns the configured window length.
func (g *Guard) WindowSize() int {
	return g.params.WindowSize
}

// Evaluate buffers the frame and scores motion inside the face region
// against the previously buffered frame. The verdict covers the whole
// current window.
func (g *Guard) Evaluate(frame camera.Frame, region detect.Region) Verdict {
	if g.hasPrev {
		score := motionScore(g.prev, frame, region, g.params.NoiseFloor)
		g.scores = append(g.scores, score)
		if len(g.scores) > g.params.WindowSize {
			g.scores = g.scores[1:]
		}
	}
	g.prev = frame
	g.hasPrev = true

	if len(g.scores) < g.params.WindowSize {
		return Insufficient
	}

	var total float64
	for _, s := range g.scores {
		total += s
	}
	if total > g.params.MotionThreshold {
		return Live
	}
	return Static
}

// Reset clears the buffer. The controller calls this after a full window
// of face-free frames, so stale motion from an earlier subject cannot
// certify a new one.
func (g *Guard) Reset() {
	g.hasPrev = false
	g.prev = camera.Frame{}
	g.scores = g.scores[:0]
}

// motionScore returns the percentage of pixels inside the region whose
// absolute difference between the two frames exceeds the noise floor.
func motionScore(prev, cur camera.Frame, region detect.Region, noiseFloor int) float64 {
	x0, y0 := region.X, region.Y
	x1, y1 := region.X+region.Width, region.Y+region.Height
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > cur.Width {
		x1 = cur.Width
	}
	if y1 > cur.Height {
		y1 = cur.Height
	}
	if x1 <= x0 || y1 <= y0 {
		return 0
	}

	var changed, total int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			d := int(cur.At(x, y)) - int(prev.At(x, y))
			if d < 0 {
				d = -d
			}
			if d > noiseFloor {
				changed++
			}
			total++
		}
	}

	return 100 * float64(changed) / float64(total)
}
