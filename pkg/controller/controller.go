// Package controller fuses detection, liveness and recognition outcomes
// into attendance decisions. It runs a synchronous state machine over the
// frame loop: one frame is fully processed before the next is read, one
// operator event is consumed per cycle, and every commit or rejection is
// written through the store before the cycle ends.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/detect"
	"github.com/facewatch/facewatch/pkg/liveness"
	"github.com/facewatch/facewatch/pkg/logging"
	"github.com/facewatch/facewatch/pkg/metrics"
	"github.com/facewatch/facewatch/pkg/recognition"
	"github.com/facewatch/facewatch/pkg/store"
)

// State is the controller's position in the per-frame decision machine.
type State int

const (
	// StateIdle means no face is in frame.
	StateIdle State = iota
	// StateFaceDetected means a qualifying region was found this cycle.
	StateFaceDetected
	// StateLivenessCheck means the guard has not decided yet.
	StateLivenessCheck
	// StateRecognized means a live face matched an enrolled user.
	StateRecognized
	// StateUnrecognized means a live face matched no enrolled user.
	StateUnrecognized
	// StateCommitted means an attendance record was appended this cycle.
	StateCommitted
	// StateRejected means the face was rejected as a suspected spoof.
	StateRejected
	// StateLogged means an unrecognized face was recorded as an event.
	StateLogged
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFaceDetected:
		return "face_detected"
	case StateLivenessCheck:
		return "liveness_check"
	case StateRecognized:
		return "recognized"
	case StateUnrecognized:
		return "unrecognized"
	case StateCommitted:
		return "committed"
	case StateRejected:
		return "rejected"
	case StateLogged:
		return "logged"
	default:
		return "unknown"
	}
}

// terminal reports whether the state re-arms to idle on the next cycle.
func (s State) terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateLogged
}

// Detector locates face regions in a frame.
type Detector interface {
	Detect(frame camera.Frame) []detect.Region
}

// Liveness evaluates motion liveness over the recent frame window.
type Liveness interface {
	Evaluate(frame camera.Frame, region detect.Region) liveness.Verdict
	Reset()
	WindowSize() int
}

// Recognizer matches normalized samples against the trained model.
type Recognizer interface {
	Recognize(sample recognition.Sample) recognition.Result
	Train(users map[string][]recognition.Sample)
	Trained() bool
}

// Store is the persistence boundary the controller writes through.
type Store interface {
	CreateUser(ctx context.Context, name string, tmpl store.FaceTemplate) (store.User, error)
	UserExists(ctx context.Context, name string) (bool, error)
	LoadTemplates(ctx context.Context) ([]store.UserTemplate, error)
	InsertAttendance(ctx context.Context, userID string) (store.AttendanceRecord, error)
	InsertSecurityEvent(ctx context.Context, ev store.SecurityEvent) error
}

// Params tunes the controller.
type Params struct {
	// Cooldown suppresses repeat commits per user inside this window.
	Cooldown time.Duration
	// TargetSamples is the number of live samples an enrollment collects.
	TargetSamples int
	// MinimumSamples is the fewest samples an interrupted enrollment may
	// be finalized with.
	MinimumSamples int
	// StopAfterEnrollment stops the loop once an enrollment session ends,
	// for the one-shot enroll command.
	StopAfterEnrollment bool
}

// Controller is the attendance decision state machine.
type Controller struct {
	detector   Detector
	guard      Liveness
	recognizer Recognizer
	store      Store
	events     *EventQueue
	cooldown   *cooldown
	params     Params

	state        State
	noFaceStreak int
	session      *enrollSession
	stopping     bool

	// Episode flags make security events edge-triggered: a photo held in
	// front of the camera yields one event, not one per frame. An episode
	// ends after a full face-free window.
	spoofLogged        bool
	unrecognizedLogged bool

	now func() time.Time
	log *logrus.Entry
}

// New creates a controller.
func New(detector Detector, guard Liveness, recognizer Recognizer, st Store, events *EventQueue, params Params) *Controller {
	if params.TargetSamples < 1 {
		params.TargetSamples = 30
	}
	if params.MinimumSamples < 1 {
		params.MinimumSamples = 10
	}
	return &Controller{
		detector:   detector,
		guard:      guard,
		recognizer: recognizer,
		store:      st,
		events:     events,
		cooldown:   newCooldown(params.Cooldown),
		params:     params,
		state:      StateIdle,
		now:        time.Now,
		log:        logging.Component("controller"),
	}
}

// State returns the state the last cycle ended in.
func (c *Controller) State() State {
	return c.state
}

// Stopping reports whether a stop event has been consumed.
func (c *Controller) Stopping() bool {
	return c.stopping
}

// Retrain rebuilds the recognition model from every stored template. The
// new model is built fully before it replaces the old one, so in-flight
// recognition never observes a partial model.
func (c *Controller) Retrain(ctx context.Context) error {
	templates, err := c.store.LoadTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load templates for training: %w", err)
	}

	users := make(map[string][]recognition.Sample, len(templates))
	for _, ut := range templates {
		users[ut.User.ID] = ut.Template.Samples
	}
	c.recognizer.Train(users)

	if len(users) == 0 {
		c.log.Warn("no enrolled users; every face will be unrecognized until enrollment")
	}
	return nil
}

// Cycle processes one frame: consume one operator event, detect, check
// liveness, recognize and commit or log. It returns the resulting state.
// Store write failures are logged and do not interrupt the loop.
func (c *Controller) Cycle(ctx context.Context, frame camera.Frame) State {
	metrics.FramesProcessed.Inc()

	if c.state.terminal() {
		c.state = StateIdle
	}

	markActive := false
	if ev, ok := c.events.poll(); ok {
		switch ev.Kind {
		case EventMark:
			markActive = true
		case EventEnroll:
			c.startEnrollment(ctx, ev.Name)
		case EventStop:
			c.stopping = true
			c.finishEnrollment(ctx)
		}
	}

	regions := c.detector.Detect(frame)
	if len(regions) == 0 {
		c.noFaceStreak++
		if c.noFaceStreak >= c.guard.WindowSize() {
			// Conservative: motion observed on an earlier subject must not
			// certify liveness for the next one.
			c.guard.Reset()
			c.spoofLogged = false
			c.unrecognizedLogged = false
		}
		c.state = StateIdle
		return c.state
	}
	c.noFaceStreak = 0
	metrics.FacesDetected.Inc()

	// Largest region first: the closest, most prominent subject.
	region := regions[0]
	c.state = StateFaceDetected

	verdict := c.guard.Evaluate(frame, region)
	switch verdict {
	case liveness.Insufficient:
		// Ordinary pending state while the window fills; not a failure.
		c.state = StateLivenessCheck

	case liveness.Static:
		c.state = StateRejected
		if !c.spoofLogged {
			c.spoofLogged = true
			metrics.SpoofRejections.Inc()
			c.log.Warn("static face region; suspected photo or screen spoof")
			c.recordEvent(ctx, store.SecurityEvent{
				EventType:   store.EventSpoofSuspected,
				Description: "face region static for the full liveness window",
				Severity:    store.SeverityHigh,
			})
		}

	case liveness.Live:
		if c.session != nil {
			c.collectSample(ctx, frame, region)
			c.state = StateLivenessCheck
			return c.state
		}
		c.recognize(ctx, frame, region, markActive)
	}

	return c.state
}

// recognize runs the matching path for a live face.
func (c *Controller) recognize(ctx context.Context, frame camera.Frame, region detect.Region, markActive bool) {
	sample, err := recognition.Normalize(frame, region)
	if err != nil {
		c.log.WithError(err).Debug("failed to normalize face region")
		c.state = StateLivenessCheck
		return
	}

	res := c.recognizer.Recognize(sample)
	if res.Recognized {
		c.state = StateRecognized
		c.log.Debugf("recognized user %s (distance %.2f)", res.UserID, res.Distance)

		if markActive {
			now := c.now()
			if !c.cooldown.allow(res.UserID, now) {
				c.log.Infof("attendance for user %s suppressed by cooldown", res.UserID)
				return
			}
			rec, err := c.store.InsertAttendance(ctx, res.UserID)
			if err != nil {
				c.log.WithError(err).Error("failed to commit attendance record")
				return
			}
			c.cooldown.record(res.UserID, now)
			metrics.AttendanceCommits.Inc()
			c.state = StateCommitted
			c.log.Infof("attendance committed for user %s (record %s)", res.UserID, rec.ID)
		}
		return
	}

	c.state = StateUnrecognized
	if !c.unrecognizedLogged {
		c.unrecognizedLogged = true
		metrics.UnrecognizedFaces.Inc()

		ev := store.SecurityEvent{
			EventType:   store.EventUnrecognizedFace,
			Description: fmt.Sprintf("unrecognized face (distance %.2f)", res.Distance),
			Severity:    store.SeverityMedium,
		}
		if res.Borderline {
			ev.EventType = store.EventLowConfidence
			ev.Description = fmt.Sprintf("borderline match rejected (distance %.2f)", res.Distance)
			ev.Severity = store.SeverityLow
		}
		if !c.recognizer.Trained() {
			ev.Description = "face detected with no enrolled users"
		}
		c.recordEvent(ctx, ev)
	}
	c.state = StateLogged
}

// recordEvent appends a security event, logging on failure.
func (c *Controller) recordEvent(ctx context.Context, ev store.SecurityEvent) {
	if err := c.store.InsertSecurityEvent(ctx, ev); err != nil {
		c.log.WithError(err).Errorf("failed to record %s event", ev.EventType)
	}
}

// Run drives the frame loop until a stop event, context cancellation or a
// fatal source failure. The camera is released and in-progress work is
// finished before returning, on every path.
func (c *Controller) Run(ctx context.Context, src camera.Source) error {
	defer func() {
		if err := src.Close(); err != nil {
			c.log.WithError(err).Warn("failed to close frame source")
		}
	}()

	if err := c.Retrain(ctx); err != nil {
		return err
	}

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("frame source failed: %w", err)
		}

		c.Cycle(ctx, frame)

		if c.stopping {
			c.log.Info("stop requested; loop finished")
			return nil
		}
	}
}
