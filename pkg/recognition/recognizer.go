// Package recognition matches normalized face samples against enrolled
// users with an appearance-based LBPH model. The trained model is an
// immutable value swapped atomically, so recognition running concurrently
// with retraining never observes a half-built model.
package recognition

import (
	"math"
	"sync/atomic"

	"github.com/facewatch/facewatch/pkg/logging"
)

// Result is the outcome of a recognition attempt.
type Result struct {
	Recognized bool
	UserID     string
	// Distance is the histogram distance of the best candidate.
	// Lower means a stronger match.
	Distance float64
	// Borderline marks an unrecognized result whose distance was just
	// above the acceptance threshold, for low-confidence logging.
	Borderline bool
}

// Params tunes the recognizer.
type Params struct {
	// Threshold is the maximum distance accepted as a match.
	Threshold float64
	// BorderlineMargin, as a multiple of Threshold, bounds the band just
	// above it that is reported as borderline.
	BorderlineMargin float64
}

type modelEntry struct {
	userID string
	hist   []float32
}

// model is an immutable trained state. A nil or empty model is untrained.
type model struct {
	entries []modelEntry
}

// Recognizer matches samples against the current trained model.
type Recognizer struct {
	params Params
	model  atomic.Pointer[model]
}

// NewRecognizer creates an untrained recognizer.
func NewRecognizer(params Params) *Recognizer {
	if params.BorderlineMargin < 1 {
		params.BorderlineMargin = 1
	}
	return &Recognizer{params: params}
}

// Trained reports whether a non-empty model is installed.
func (r *Recognizer) Trained() bool {
	m := r.model.Load()
	return m != nil && len(m.entries) > 0
}

// Train builds a new model from every user's samples and installs it in a
// single atomic swap. An empty user set installs the untrained state.
func (r *Recognizer) Train(users map[string][]Sample) {
	next := &model{}
	for userID, samples := range users {
		for _, s := range samples {
			if !s.Valid() {
				continue
			}
			next.entries = append(next.entries, modelEntry{
				userID: userID,
				hist:   histogram(s),
			})
		}
	}

	r.model.Store(next)
	logging.Component("recognition").Infof("model trained: %d users, %d samples",
		len(users), len(next.entries))
}

// Recognize matches the sample against the trained model. An untrained
// recognizer short-circuits to unrecognized without touching the model.
func (r *Recognizer) Recognize(s Sample) Result {
	m := r.model.Load()
	if m == nil || len(m.entries) == 0 {
		return Result{Distance: math.MaxFloat64}
	}
	if !s.Valid() {
		return Result{Distance: math.MaxFloat64}
	}

	probe := histogram(s)
	best := Result{Distance: math.MaxFloat64}
	for _, e := range m.entries {
		if d := chiSquare(probe, e.hist); d < best.Distance {
			best.Distance = d
			best.UserID = e.userID
		}
	}

	if best.Distance <= r.params.Threshold {
		best.Recognized = true
		return best
	}

	best.UserID = ""
	best.Borderline = best.Distance <= r.params.Threshold*r.params.BorderlineMargin
	return best
}
