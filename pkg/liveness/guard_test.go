package liveness

import (
	"testing"
	"time"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/detect"
)

const (
	testWidth  = 320
	testHeight = 240
)

func testParams() Params {
	return Params{
		WindowSize:      5,
		MotionThreshold: 4.0,
		NoiseFloor:      12,
	}
}

func testRegion() detect.Region {
	return detect.Region{X: 60, Y: 40, Width: 120, Height: 120}
}

// makeFrame builds a grayscale frame from a pixel function.
func makeFrame(fill func(x, y int) byte) camera.Frame {
	pix := make([]byte, testWidth*testHeight)
	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			pix[y*testWidth+x] = fill(x, y)
		}
	}
	return camera.Frame{Pix: pix, Width: testWidth, Height: testHeight, Timestamp: time.Now()}
}

func flatFrame(v byte) camera.Frame {
	return makeFrame(func(x, y int) byte { return v })
}

func TestGuard_InsufficientWhileWindowFills(t *testing.T) {
	g := NewGuard(testParams())
	region := testRegion()

	for i := 0; i < g.WindowSize(); i++ {
		verdict := g.Evaluate(flatFrame(100), region)
		if verdict != Insufficient {
			t.Fatalf("frame %d: got %s, want insufficient", i, verdict)
		}
	}
}

func TestGuard_StaticFramesNeverLive(t *testing.T) {
	g := NewGuard(testParams())
	region := testRegion()

	// Identical consecutive frames: once the window is full the verdict
	// must be static on every subsequent frame, never live.
	frame := flatFrame(128)
	for i := 0; i < 50; i++ {
		verdict := g.Evaluate(frame, region)
		if verdict == Live {
			t.Fatalf("frame %d: static replay produced live verdict", i)
		}
		if i >= g.WindowSize() && verdict != Static {
			t.Fatalf("frame %d: got %s, want static", i, verdict)
		}
	}
}

func TestGuard_NoiseBelowFloorIsStatic(t *testing.T) {
	g := NewGuard(testParams())
	region := testRegion()

	// Per-pixel deltas at the noise floor must not register as motion.
	for i := 0; i < 30; i++ {
		v := byte(128 + (i%2)*testParams().NoiseFloor)
		if verdict := g.Evaluate(flatFrame(v), region); verdict == Live {
			t.Fatalf("frame %d: sensor-level noise produced live verdict", i)
		}
	}
}

func TestGuard_MotionProducesLive(t *testing.T) {
	g := NewGuard(testParams())
	region := testRegion()

	var verdict Verdict
	for i := 0; i < 20; i++ {
		// Alternating brightness well above the noise floor inside the
		// whole frame, as a moving subject would produce.
		v := byte(100 + (i%2)*60)
		verdict = g.Evaluate(flatFrame(v), region)
	}
	if verdict != Live {
		t.Fatalf("got %s after sustained motion, want live", verdict)
	}
}

func TestGuard_MotionOutsideRegionIgnored(t *testing.T) {
	g := NewGuard(testParams())
	region := testRegion()

	var verdict Verdict
	for i := 0; i < 20; i++ {
		// Heavy change confined to a corner far from the face region.
		offset := byte((i % 2) * 80)
		frame := makeFrame(func(x, y int) byte {
			if x < 20 && y < 20 {
				return 100 + offset
			}
			return 100
		})
		verdict = g.Evaluate(frame, region)
	}
	if verdict != Static {
		t.Fatalf("got %s, want static when motion is outside the face region", verdict)
	}
}

func TestGuard_ResetClearsBuffer(t *testing.T) {
	g := NewGuard(testParams())
	region := testRegion()

	for i := 0; i < 10; i++ {
		v := byte(100 + (i%2)*60)
		g.Evaluate(flatFrame(v), region)
	}

	g.Reset()

	// After a reset the guard must not reuse the earlier motion.
	for i := 0; i < g.WindowSize(); i++ {
		if verdict := g.Evaluate(flatFrame(100), region); verdict != Insufficient {
			t.Fatalf("frame %d after reset: got %s, want insufficient", i, verdict)
		}
	}
}

func TestGuard_RegionClampedToFrame(t *testing.T) {
	g := NewGuard(testParams())
	region := detect.Region{X: -50, Y: -50, Width: 100, Height: 100}

	// Must not panic on regions partially outside the frame.
	for i := 0; i < 10; i++ {
		g.Evaluate(flatFrame(byte(100+(i%2)*60)), region)
	}
}

func TestVerdict_String(t *testing.T) {
	tests := []struct {
		verdict Verdict
		want    string
	}{
		{Live, "live"},
		{Static, "static"},
		{Insufficient, "insufficient"},
	}
	for _, tt := range tests {
		if got := tt.verdict.String(); got != tt.want {
			t.Errorf("got %s, want %s", got, tt.want)
		}
	}
}
