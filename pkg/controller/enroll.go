package controller

import (
	"context"
	"errors"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/detect"
	"github.com/facewatch/facewatch/pkg/metrics"
	"github.com/facewatch/facewatch/pkg/recognition"
	"github.com/facewatch/facewatch/pkg/store"
)

// enrollSession collects liveness-confirmed samples for a new user. It is
// a parallel path: recognition matching is bypassed while it is active.
type enrollSession struct {
	name    string
	samples []recognition.Sample
}

// startEnrollment begins a session after rejecting duplicate names up
// front. Duplicate enrollment is non-fatal and surfaced to the operator.
func (c *Controller) startEnrollment(ctx context.Context, name string) {
	if name == "" {
		c.log.Error("enrollment rejected: empty user name")
		return
	}
	if c.session != nil {
		c.log.Warnf("enrollment for %q ignored: session for %q already active", name, c.session.name)
		return
	}

	exists, err := c.store.UserExists(ctx, name)
	if err != nil {
		c.log.WithError(err).Error("enrollment aborted: could not check for duplicate name")
		return
	}
	if exists {
		c.log.Errorf("enrollment rejected: %v (%q); choose a different name", store.ErrDuplicateUser, name)
		return
	}

	c.session = &enrollSession{name: name}
	c.log.Infof("enrollment started for %q: need %d live samples", name, c.params.TargetSamples)
}

// collectSample adds one liveness-confirmed sample to the active session
// and finalizes it once the target is reached.
func (c *Controller) collectSample(ctx context.Context, frame camera.Frame, region detect.Region) {
	sample, err := recognition.Normalize(frame, region)
	if err != nil {
		c.log.WithError(err).Debug("enrollment sample skipped")
		return
	}

	c.session.samples = append(c.session.samples, sample)
	c.log.Debugf("enrollment sample %d/%d for %q", len(c.session.samples), c.params.TargetSamples, c.session.name)

	if len(c.session.samples) >= c.params.TargetSamples {
		c.finishEnrollment(ctx)
	}
}

// finishEnrollment persists the collected samples and retrains. A session
// interrupted before the target may still be finalized with at least the
// functional minimum of samples; below that it is discarded.
func (c *Controller) finishEnrollment(ctx context.Context) {
	session := c.session
	if session == nil {
		return
	}
	c.session = nil
	if c.params.StopAfterEnrollment {
		c.stopping = true
	}

	if len(session.samples) < c.params.MinimumSamples {
		c.log.Warnf("enrollment for %q discarded: only %d of at least %d samples collected",
			session.name, len(session.samples), c.params.MinimumSamples)
		return
	}

	user, err := c.store.CreateUser(ctx, session.name, store.FaceTemplate{Samples: session.samples})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			c.log.Errorf("enrollment rejected: %v (%q); choose a different name", err, session.name)
			return
		}
		c.log.WithError(err).Errorf("enrollment for %q failed", session.name)
		return
	}

	metrics.Enrollments.Inc()
	c.log.Infof("enrollment complete for %q (%s): %d samples", user.Name, user.ID, len(session.samples))

	if err := c.Retrain(ctx); err != nil {
		c.log.WithError(err).Error("retraining after enrollment failed")
	}
}
