package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/facewatch/facewatch/pkg/logging"
)

// V4L2Source captures frames from a V4L2 device in YUYV format and exposes
// the luma plane as grayscale frames.
type V4L2Source struct {
	dev    *device.Device
	frames <-chan []byte
	cancel context.CancelFunc
	width  int
	height int
	closed bool
}

// OpenV4L2 opens the device and starts streaming. Failure to open or start
// is reported as ErrDeviceUnavailable.
func OpenV4L2(path string, width, height, fps int) (*V4L2Source, error) {
	dev, err := device.Open(path,
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtYUYV,
			Width:       uint32(width),
			Height:      uint32(height),
		}),
		device.WithFPS(uint32(fps)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return nil, fmt.Errorf("%w: start streaming on %s: %v", ErrDeviceUnavailable, path, err)
	}

	logging.Component("camera").Infof("streaming %dx%d @ %d fps from %s", width, height, fps, path)

	return &V4L2Source{
		dev:    dev,
		frames: dev.GetOutput(),
		cancel: cancel,
		width:  width,
		height: height,
	}, nil
}

// Next blocks until the next frame arrives, converting YUYV to grayscale.
func (s *V4L2Source) Next(ctx context.Context) (Frame, error) {
	if s.closed {
		return Frame{}, ErrSourceClosed
	}

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case buf, ok := <-s.frames:
		if !ok {
			return Frame{}, ErrDeviceUnavailable
		}
		return Frame{
			Pix:       yuyvToGray(buf, s.width, s.height),
			Width:     s.width,
			Height:    s.height,
			Timestamp: time.Now(),
		}, nil
	}
}

// Close stops streaming and releases the device.
func (s *V4L2Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return s.dev.Close()
}

// yuyvToGray extracts the luma channel from a packed YUYV buffer.
// YUYV stores two pixels in four bytes: Y0 U Y1 V.
func yuyvToGray(buf []byte, width, height int) []byte {
	gray := make([]byte, width*height)
	n := len(buf) / 2
	if n > len(gray) {
		n = len(gray)
	}
	for i := 0; i < n; i++ {
		gray[i] = buf[2*i]
	}
	return gray
}
