package controller

import (
	"context"
	"testing"
	"time"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/detect"
	"github.com/facewatch/facewatch/pkg/liveness"
	"github.com/facewatch/facewatch/pkg/recognition"
	"github.com/facewatch/facewatch/pkg/store"
)

const (
	frameWidth  = 640
	frameHeight = 480
)

// faceRegion matches the sample size exactly so normalization is a plain
// crop and enrolled samples reproduce bit for bit.
var faceRegion = detect.Region{X: 200, Y: 140, Width: 200, Height: 200, Confidence: 40}

// aliceFrame and bobFrame render two distinct synthetic face textures.
// The frame index drives a uniform brightness flicker well above the
// noise floor, which reads as motion without changing the texture's
// local binary patterns.
func aliceFrame(i int) camera.Frame {
	return renderFrame(i, func(x, y int) byte {
		if (x/10+y/10)%2 == 0 {
			return 160
		}
		return 40
	})
}

func bobFrame(i int) camera.Frame {
	return renderFrame(i, func(x, y int) byte {
		if x%6 < 3 {
			return 150
		}
		return 50
	})
}

func renderFrame(i int, texture func(x, y int) byte) camera.Frame {
	flicker := byte((i % 2) * 40)
	pix := make([]byte, frameWidth*frameHeight)
	for y := 0; y < frameHeight; y++ {
		for x := 0; x < frameWidth; x++ {
			pix[y*frameWidth+x] = texture(x, y) + flicker
		}
	}
	return camera.Frame{Pix: pix, Width: frameWidth, Height: frameHeight, Timestamp: time.Now()}
}

func testController(params Params) (*Controller, *stubDetector, *memStore, *EventQueue) {
	det := &stubDetector{}
	guard := liveness.NewGuard(liveness.Params{WindowSize: 4, MotionThreshold: 4.0, NoiseFloor: 12})
	rec := recognition.NewRecognizer(recognition.Params{Threshold: 2, BorderlineMargin: 1.2})
	ms := newMemStore()
	queue := NewEventQueue(16)
	return New(det, guard, rec, ms, queue, params), det, ms, queue
}

// enrollUser drives the frame loop through a full enrollment session.
func enrollUser(t *testing.T, c *Controller, det *stubDetector, ms *memStore, queue *EventQueue, name string, frame func(int) camera.Frame) {
	t.Helper()
	det.regions = []detect.Region{faceRegion}
	if err := queue.Push(Event{Kind: EventEnroll, Name: name}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 60; i++ {
		c.Cycle(ctx, frame(i))
		if exists, _ := ms.UserExists(ctx, name); exists {
			return
		}
	}
	t.Fatalf("enrollment for %q did not complete", name)
}

func TestController_EnrollThenCommit(t *testing.T) {
	c, det, ms, queue := testController(Params{Cooldown: 5 * time.Minute, TargetSamples: 12, MinimumSamples: 5})
	ctx := context.Background()

	enrollUser(t, c, det, ms, queue, "alice", aliceFrame)
	if len(ms.users) != 1 {
		t.Fatalf("got %d users after enrollment, want 1", len(ms.users))
	}
	if got := len(ms.templates[ms.users[0].ID].Samples); got != 12 {
		t.Fatalf("stored template holds %d samples, want 12", got)
	}

	// The subject stays in frame; recognition resumes after enrollment.
	state := c.Cycle(ctx, aliceFrame(100))
	if state != StateRecognized {
		t.Fatalf("got state %s, want recognized", state)
	}
	if len(ms.attendance) != 0 {
		t.Fatal("attendance committed without a mark trigger")
	}

	// The mark trigger commits exactly one record for the recognized user.
	if err := queue.Push(Event{Kind: EventMark}); err != nil {
		t.Fatal(err)
	}
	state = c.Cycle(ctx, aliceFrame(101))
	if state != StateCommitted {
		t.Fatalf("got state %s, want committed", state)
	}
	if len(ms.attendance) != 1 {
		t.Fatalf("got %d attendance records, want 1", len(ms.attendance))
	}
	if rec := ms.attendance[0]; rec.UserID != ms.users[0].ID || rec.Status != store.StatusPresent {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(ms.events) != 0 {
		t.Fatalf("unexpected security events: %+v", ms.events)
	}
}

func TestController_CooldownSuppressesRepeatCommits(t *testing.T) {
	c, det, ms, queue := testController(Params{Cooldown: 5 * time.Minute, TargetSamples: 12, MinimumSamples: 5})
	ctx := context.Background()

	clock := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	enrollUser(t, c, det, ms, queue, "alice", aliceFrame)

	queue.Push(Event{Kind: EventMark})
	if state := c.Cycle(ctx, aliceFrame(100)); state != StateCommitted {
		t.Fatalf("first mark: got state %s, want committed", state)
	}

	// A second mark inside the cooldown window is recognized but not
	// committed again.
	clock = clock.Add(time.Minute)
	queue.Push(Event{Kind: EventMark})
	if state := c.Cycle(ctx, aliceFrame(101)); state != StateRecognized {
		t.Fatalf("suppressed mark: got state %s, want recognized", state)
	}
	if len(ms.attendance) != 1 {
		t.Fatalf("got %d attendance records, want 1", len(ms.attendance))
	}

	// Once the window has passed the next mark commits normally.
	clock = clock.Add(5 * time.Minute)
	queue.Push(Event{Kind: EventMark})
	if state := c.Cycle(ctx, aliceFrame(102)); state != StateCommitted {
		t.Fatalf("post-cooldown mark: got state %s, want committed", state)
	}
	if len(ms.attendance) != 2 {
		t.Fatalf("got %d attendance records, want 2", len(ms.attendance))
	}
}

func TestController_StaticFaceRejectedOnce(t *testing.T) {
	c, det, ms, queue := testController(Params{})
	ctx := context.Background()
	det.regions = []detect.Region{faceRegion}

	// A motionless photo: identical frames for the whole sequence, with a
	// mark trigger arriving mid-stream.
	photo := aliceFrame(0)
	var state State
	for i := 0; i < 10; i++ {
		if i == 6 {
			queue.Push(Event{Kind: EventMark})
		}
		state = c.Cycle(ctx, photo)
	}

	if state != StateRejected {
		t.Fatalf("got state %s, want rejected", state)
	}
	if len(ms.attendance) != 0 {
		t.Fatalf("spoofed photo committed %d attendance records", len(ms.attendance))
	}
	spoofs := ms.eventsOfType(store.EventSpoofSuspected)
	if len(spoofs) != 1 {
		t.Fatalf("got %d spoof events over the episode, want 1", len(spoofs))
	}
	if spoofs[0].Severity != store.SeverityHigh {
		t.Fatalf("spoof event severity %q, want high", spoofs[0].Severity)
	}
}

func TestController_FaceFreeWindowStartsNewEpisode(t *testing.T) {
	c, det, ms, _ := testController(Params{})
	ctx := context.Background()

	runEpisode := func() {
		det.regions = []detect.Region{faceRegion}
		photo := aliceFrame(0)
		for i := 0; i < 10; i++ {
			c.Cycle(ctx, photo)
		}
	}

	runEpisode()

	// The face leaves for a full window: the guard resets and the next
	// static presentation is a fresh episode with its own event.
	det.regions = nil
	for i := 0; i < c.guard.WindowSize(); i++ {
		if state := c.Cycle(ctx, aliceFrame(i)); state != StateIdle {
			t.Fatalf("face-free frame %d: got state %s, want idle", i, state)
		}
	}

	runEpisode()

	if got := len(ms.eventsOfType(store.EventSpoofSuspected)); got != 2 {
		t.Fatalf("got %d spoof events across two episodes, want 2", got)
	}
}

func TestController_UnrecognizedFaceLogged(t *testing.T) {
	c, det, ms, queue := testController(Params{TargetSamples: 12, MinimumSamples: 5})
	ctx := context.Background()

	enrollUser(t, c, det, ms, queue, "alice", aliceFrame)

	// A different live subject with the mark trigger active: no commit,
	// one medium-severity event for the whole episode.
	// The texture change plus flicker keeps the guard on live verdicts.
	var state State
	for i := 0; i < 8; i++ {
		if i == 2 {
			queue.Push(Event{Kind: EventMark})
		}
		state = c.Cycle(ctx, bobFrame(i))
	}

	if state != StateLogged {
		t.Fatalf("got state %s, want logged", state)
	}
	if len(ms.attendance) != 0 {
		t.Fatalf("unrecognized face committed %d attendance records", len(ms.attendance))
	}
	unrecognized := ms.eventsOfType(store.EventUnrecognizedFace)
	if len(unrecognized) != 1 {
		t.Fatalf("got %d unrecognized events, want 1", len(unrecognized))
	}
	if unrecognized[0].Severity != store.SeverityMedium {
		t.Fatalf("event severity %q, want medium", unrecognized[0].Severity)
	}
}

func TestController_UntrainedAlwaysUnrecognized(t *testing.T) {
	c, det, ms, queue := testController(Params{})
	ctx := context.Background()
	det.regions = []detect.Region{faceRegion}

	queue.Push(Event{Kind: EventMark})
	for i := 0; i < 8; i++ {
		c.Cycle(ctx, aliceFrame(i))
	}

	if len(ms.attendance) != 0 {
		t.Fatal("untrained recognizer committed attendance")
	}
	events := ms.eventsOfType(store.EventUnrecognizedFace)
	if len(events) != 1 {
		t.Fatalf("got %d unrecognized events, want 1", len(events))
	}
	if events[0].Description != "face detected with no enrolled users" {
		t.Fatalf("unexpected event description %q", events[0].Description)
	}
}

func TestController_InsufficientWindowNeverCommits(t *testing.T) {
	c, det, ms, queue := testController(Params{})
	ctx := context.Background()

	// Pre-seed an enrolled user so a match would be possible if the
	// pending liveness verdict were ever treated as live.
	sample, err := recognition.Normalize(aliceFrame(0), faceRegion)
	if err != nil {
		t.Fatal(err)
	}
	ms.users = append(ms.users, store.User{ID: "user-1", Name: "alice", CreatedAt: time.Now()})
	ms.templates["user-1"] = store.FaceTemplate{Samples: []recognition.Sample{sample}}
	if err := c.Retrain(ctx); err != nil {
		t.Fatal(err)
	}

	det.regions = []detect.Region{faceRegion}
	queue.Push(Event{Kind: EventMark})

	// Fewer frames than the liveness window: every verdict is pending.
	for i := 0; i < c.guard.WindowSize(); i++ {
		if state := c.Cycle(ctx, aliceFrame(i)); state != StateLivenessCheck {
			t.Fatalf("frame %d: got state %s, want liveness_check", i, state)
		}
	}

	if len(ms.attendance) != 0 {
		t.Fatal("attendance committed before the liveness window filled")
	}
	if len(ms.events) != 0 {
		t.Fatalf("unexpected security events: %+v", ms.events)
	}
}

func TestController_DuplicateEnrollmentRejected(t *testing.T) {
	c, det, ms, queue := testController(Params{TargetSamples: 12, MinimumSamples: 5})
	ctx := context.Background()

	enrollUser(t, c, det, ms, queue, "alice", aliceFrame)

	// Re-enrolling the same name must not create a second row or start a
	// new session.
	queue.Push(Event{Kind: EventEnroll, Name: "alice"})
	for i := 0; i < 20; i++ {
		c.Cycle(ctx, aliceFrame(i))
	}

	if len(ms.users) != 1 {
		t.Fatalf("got %d users after duplicate enrollment, want 1", len(ms.users))
	}
	if c.session != nil {
		t.Fatal("duplicate enrollment left a session active")
	}
}

func TestController_ShortSessionDiscarded(t *testing.T) {
	c, det, ms, queue := testController(Params{TargetSamples: 30, MinimumSamples: 10})
	ctx := context.Background()
	det.regions = []detect.Region{faceRegion}

	queue.Push(Event{Kind: EventEnroll, Name: "carol"})

	// Stop arrives after only a couple of live samples, below the
	// functional minimum.
	for i := 0; i < c.guard.WindowSize()+3; i++ {
		c.Cycle(ctx, aliceFrame(i))
	}
	queue.Push(Event{Kind: EventStop})
	c.Cycle(ctx, aliceFrame(100))

	if !c.Stopping() {
		t.Fatal("stop event did not mark the controller stopping")
	}
	if len(ms.users) != 0 {
		t.Fatal("discarded session still created a user")
	}
}

func TestController_InterruptedSessionAboveMinimumFinalized(t *testing.T) {
	c, det, ms, queue := testController(Params{TargetSamples: 30, MinimumSamples: 5})
	ctx := context.Background()
	det.regions = []detect.Region{faceRegion}

	queue.Push(Event{Kind: EventEnroll, Name: "carol"})
	for i := 0; i < c.guard.WindowSize()+8; i++ {
		c.Cycle(ctx, aliceFrame(i))
	}
	queue.Push(Event{Kind: EventStop})
	c.Cycle(ctx, aliceFrame(100))

	if len(ms.users) != 1 {
		t.Fatalf("got %d users, want 1 (session had reached the minimum)", len(ms.users))
	}
	if got := len(ms.templates[ms.users[0].ID].Samples); got < 5 {
		t.Fatalf("finalized template holds %d samples, want at least 5", got)
	}
}

func TestController_StopAfterEnrollment(t *testing.T) {
	c, det, ms, queue := testController(Params{TargetSamples: 12, MinimumSamples: 5, StopAfterEnrollment: true})

	enrollUser(t, c, det, ms, queue, "alice", aliceFrame)

	if !c.Stopping() {
		t.Fatal("controller not stopping after one-shot enrollment")
	}
}

func TestController_RunDrainsSourceAndCloses(t *testing.T) {
	c, det, _, _ := testController(Params{})
	det.regions = nil

	src := &stubSource{}
	for i := 0; i < 5; i++ {
		src.frames = append(src.frames, aliceFrame(i))
	}

	if err := c.Run(context.Background(), src); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !src.closed {
		t.Fatal("frame source not closed after run")
	}
	if src.next != len(src.frames) {
		t.Fatalf("run consumed %d of %d frames", src.next, len(src.frames))
	}
}

func TestEventQueue(t *testing.T) {
	q := NewEventQueue(2)

	if err := q.Push(Event{Kind: EventMark}); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(Event{Kind: EventEnroll, Name: "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(Event{Kind: EventStop}); err != ErrQueueFull {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}

	ev, ok := q.poll()
	if !ok || ev.Kind != EventMark {
		t.Fatalf("got %+v, want mark event", ev)
	}
	ev, ok = q.poll()
	if !ok || ev.Name != "alice" {
		t.Fatalf("got %+v, want enroll event for alice", ev)
	}
	if _, ok := q.poll(); ok {
		t.Fatal("poll returned an event from an empty queue")
	}
}

func TestCooldown(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	cd := newCooldown(5 * time.Minute)
	if !cd.allow("u1", now) {
		t.Fatal("first commit not allowed")
	}
	cd.record("u1", now)

	if cd.allow("u1", now.Add(time.Minute)) {
		t.Fatal("commit allowed inside the window")
	}
	if !cd.allow("u2", now.Add(time.Minute)) {
		t.Fatal("window for one user suppressed another")
	}
	if !cd.allow("u1", now.Add(5*time.Minute)) {
		t.Fatal("commit not allowed once the window passed")
	}

	disabled := newCooldown(0)
	disabled.record("u1", now)
	if !disabled.allow("u1", now) {
		t.Fatal("zero window must disable suppression")
	}
}
