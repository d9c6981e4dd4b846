package recognition

import (
	"errors"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/detect"
)

// SampleSize is the side length every face sample is normalized to.
const SampleSize = 200

// Sample is a normalized grayscale face crop of SampleSize x SampleSize
// pixels. Samples are the unit of enrollment and matching.
type Sample struct {
	Pix []byte `json:"pix"`
}

// ErrEmptyRegion is returned when the face region does not overlap the frame.
var ErrEmptyRegion = errors.New("face region outside frame")

// Valid reports whether the sample has the expected dimensions.
func (s Sample) Valid() bool {
	return len(s.Pix) == SampleSize*SampleSize
}

// Normalize crops the face region out of the frame and resizes it to the
// fixed sample dimensions with bilinear interpolation.
func Normalize(frame camera.Frame, region detect.Region) (Sample, error) {
	bounds := image.Rect(0, 0, frame.Width, frame.Height)
	crop := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height).Intersect(bounds)
	if crop.Empty() {
		return Sample{}, ErrEmptyRegion
	}

	src := &image.Gray{
		Pix:    frame.Pix,
		Stride: frame.Width,
		Rect:   bounds,
	}

	dst := image.NewGray(image.Rect(0, 0, SampleSize, SampleSize))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, crop, xdraw.Src, nil)

	return Sample{Pix: dst.Pix}, nil
}
