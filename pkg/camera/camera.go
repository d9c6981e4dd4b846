// Package camera provides frame acquisition from a V4L2 camera device.
// Frames are delivered as 8-bit grayscale; every downstream component
// (detection, liveness, recognition) works on the luma plane only.
package camera

import (
	"context"
	"errors"
	"time"
)

// Frame is a single grayscale camera frame.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// At returns the pixel value at (x, y). Out-of-bounds reads return 0.
func (f Frame) At(x, y int) byte {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	return f.Pix[y*f.Width+x]
}

// Source produces a lazy, infinite, non-restartable sequence of frames
// from a single exclusively-held camera device.
type Source interface {
	// Next blocks until the next frame is available.
	Next(ctx context.Context) (Frame, error)
	// Close releases the device. The source cannot be reused afterwards.
	Close() error
}

// ErrDeviceUnavailable is returned when the camera device cannot be opened
// or stops delivering frames. It is fatal: the operator must fix the device
// and restart.
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// ErrSourceClosed is returned when reading from a closed source.
var ErrSourceClosed = errors.New("frame source closed")
