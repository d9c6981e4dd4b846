// Package metrics exposes operational counters for the recognition loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facewatch/facewatch/pkg/logging"
)

var (
	// FramesProcessed counts frames read from the camera.
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facewatch_frames_processed_total",
		Help: "Number of camera frames processed by the recognition loop.",
	})

	// FacesDetected counts frames with at least one qualifying face region.
	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facewatch_faces_detected_total",
		Help: "Number of frames with at least one qualifying face region.",
	})

	// AttendanceCommits counts appended attendance records.
	AttendanceCommits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facewatch_attendance_commits_total",
		Help: "Number of attendance records committed.",
	})

	// SpoofRejections counts static-liveness rejections.
	SpoofRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facewatch_spoof_rejections_total",
		Help: "Number of detection episodes rejected as suspected spoofs.",
	})

	// UnrecognizedFaces counts unrecognized detection episodes.
	UnrecognizedFaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facewatch_unrecognized_faces_total",
		Help: "Number of detection episodes with no matching user.",
	})

	// Enrollments counts completed enrollment sessions.
	Enrollments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facewatch_enrollments_total",
		Help: "Number of completed enrollment sessions.",
	})
)

// Serve starts the Prometheus listener in the background. Failures are
// logged, not fatal: telemetry must never take down the recognition loop.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Component("metrics").Infof("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Component("metrics").WithError(err).Error("metrics listener failed")
		}
	}()
}
