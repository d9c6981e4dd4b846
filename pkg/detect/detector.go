// Package detect locates face regions in grayscale frames using a
// pixel-intensity cascade classifier (pigo). Detection is stateless;
// regions are filtered by size and returned largest first.
package detect

import (
	"errors"
	"fmt"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/logging"
)

// Region is a detected face bounding box.
type Region struct {
	X, Y          int
	Width, Height int
	Confidence    float64
}

// Area returns the region area in pixels.
func (r Region) Area() int {
	return r.Width * r.Height
}

// Params tunes the detector.
type Params struct {
	// MinConfidence is the cascade quality threshold. Candidates below it
	// are discarded; raising it trades recall for precision.
	MinConfidence float64
	// MinSizeFraction discards regions whose area is below this fraction
	// of the frame area.
	MinSizeFraction float64
	// MaxSizePixels discards regions wider than this, which are usually
	// background objects rather than faces. Zero disables the cap.
	MaxSizePixels int
}

// ErrCascadeNotFound is returned when the cascade model file is missing.
var ErrCascadeNotFound = errors.New("cascade model file not found")

// Detector detects faces with a pigo cascade classifier.
type Detector struct {
	classifier *pigo.Pigo
	params     Params
}

// NewDetector loads the cascade model from disk and builds a detector.
func NewDetector(cascadePath string, params Params) (*Detector, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCascadeNotFound, cascadePath)
		}
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade file: %w", err)
	}

	logging.Component("detect").Debugf("cascade model loaded from %s (%d bytes)", cascadePath, len(data))

	return &Detector{classifier: classifier, params: params}, nil
}

// Detect returns the qualifying face regions in the frame, largest first.
func (d *Detector) Detect(frame camera.Frame) []Region {
	minSide := 20
	maxSide := d.params.MaxSizePixels
	if maxSide <= 0 || maxSide > frame.Width {
		maxSide = frame.Width
	}

	cp := pigo.CascadeParams{
		MinSize:     minSide,
		MaxSize:     maxSide,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: frame.Pix,
			Rows:   frame.Height,
			Cols:   frame.Width,
			Dim:    frame.Width,
		},
	}

	dets := d.classifier.RunCascade(cp, 0.0)
	dets = d.classifier.ClusterDetections(dets, 0.2)

	var regions []Region
	for _, det := range dets {
		if float64(det.Q) < d.params.MinConfidence {
			continue
		}
		half := det.Scale / 2
		regions = append(regions, Region{
			X:          det.Col - half,
			Y:          det.Row - half,
			Width:      det.Scale,
			Height:     det.Scale,
			Confidence: float64(det.Q),
		})
	}

	return qualify(regions, frame.Width, frame.Height, d.params)
}

// qualify drops undersized and oversized regions and orders the rest by
// area descending, so callers process the most prominent subject first.
func qualify(regions []Region, frameWidth, frameHeight int, params Params) []Region {
	frameArea := frameWidth * frameHeight
	if frameArea <= 0 {
		return nil
	}

	out := regions[:0]
	for _, r := range regions {
		if float64(r.Area()) < params.MinSizeFraction*float64(frameArea) {
			continue
		}
		if params.MaxSizePixels > 0 && r.Width > params.MaxSizePixels {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Area() > out[j].Area()
	})

	return out
}
