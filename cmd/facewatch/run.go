package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/facewatch/facewatch/pkg/camera"
	"github.com/facewatch/facewatch/pkg/config"
	"github.com/facewatch/facewatch/pkg/controller"
	"github.com/facewatch/facewatch/pkg/detect"
	"github.com/facewatch/facewatch/pkg/liveness"
	"github.com/facewatch/facewatch/pkg/logging"
	"github.com/facewatch/facewatch/pkg/metrics"
	"github.com/facewatch/facewatch/pkg/recognition"
	"github.com/facewatch/facewatch/pkg/store"
)

// buildController wires the decision core from configuration. The store,
// key and cascade failures here are fatal and name the failed resource.
func buildController(ctx context.Context, cfg *config.Config, events *controller.EventQueue, params controller.Params) (*controller.Controller, *store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		DatabaseURL:  cfg.Database.URL,
		KeyFile:      cfg.Encryption.KeyFile,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, err
	}

	detector, err := detect.NewDetector(cfg.Detection.CascadePath, detect.Params{
		MinConfidence:   cfg.Detection.MinConfidence,
		MinSizeFraction: cfg.Detection.MinSizeFraction,
		MaxSizePixels:   cfg.Detection.MaxSizePixels,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("%w (run 'facewatch download-cascade' first)", err)
	}

	guard := liveness.NewGuard(liveness.Params{
		WindowSize:      cfg.Liveness.WindowSize,
		MotionThreshold: cfg.Liveness.MotionThreshold,
		NoiseFloor:      cfg.Liveness.NoiseFloor,
	})

	recognizer := recognition.NewRecognizer(recognition.Params{
		Threshold:        cfg.Recognition.Threshold,
		BorderlineMargin: cfg.Recognition.BorderlineMargin,
	})

	ctrl := controller.New(detector, guard, recognizer, st, events, params)
	return ctrl, st, nil
}

// runLoop opens the camera and drives the controller until it stops.
func runLoop(cfg *config.Config, events *controller.EventQueue, params controller.Params) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, st, err := buildController(ctx, cfg, events, params)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.WithError(err).Warn("failed to close store")
		}
	}()

	src, err := camera.OpenV4L2(cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.Serve(cfg.Metrics.ListenAddr)
	}

	// Signals request a clean stop: the current frame finishes before the
	// camera and database are released.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logging.Info("signal received, stopping after current frame")
		if err := events.Push(controller.Event{Kind: controller.EventStop}); err != nil {
			// Queue full means the loop is wedged; cancel outright.
			cancel()
		}
	}()

	return ctrl.Run(ctx, src)
}

func controllerParams(cfg *config.Config) controller.Params {
	return controller.Params{
		Cooldown:       cfg.Attendance.Cooldown(),
		TargetSamples:  cfg.Enrollment.TargetSamples,
		MinimumSamples: cfg.Enrollment.MinimumSamples,
	}
}

func cmdRun(args []string) error {
	events := controller.NewEventQueue(16)

	// Operator events arrive on stdin, decoupled from the frame loop.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}

			var ev controller.Event
			switch fields[0] {
			case "mark":
				ev = controller.Event{Kind: controller.EventMark}
			case "enroll":
				if len(fields) < 2 {
					fmt.Println("usage: enroll <name>")
					continue
				}
				ev = controller.Event{Kind: controller.EventEnroll, Name: fields[1]}
			case "stop", "quit":
				ev = controller.Event{Kind: controller.EventStop}
			default:
				fmt.Printf("unknown control %q (mark, enroll <name>, stop)\n", fields[0])
				continue
			}

			if err := events.Push(ev); err != nil {
				fmt.Printf("control dropped: %v\n", err)
			}
		}
	}()

	fmt.Println("facewatch running. Controls: mark | enroll <name> | stop")
	return runLoop(cfg, events, controllerParams(cfg))
}

func cmdEnroll(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("user name required\nUsage: facewatch enroll <name>")
	}
	name := args[0]

	events := controller.NewEventQueue(16)
	if err := events.Push(controller.Event{Kind: controller.EventEnroll, Name: name}); err != nil {
		return err
	}

	params := controllerParams(cfg)
	params.StopAfterEnrollment = true

	fmt.Printf("Enrolling %q: face the camera and keep naturally still.\n", name)
	fmt.Printf("Capturing %d motion-verified samples...\n", cfg.Enrollment.TargetSamples)

	return runLoop(cfg, events, params)
}

func cmdUsers(args []string) error {
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		DatabaseURL:  cfg.Database.URL,
		KeyFile:      cfg.Encryption.KeyFile,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	users, err := st.ListUsers(ctx)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Println("No users enrolled.")
		return nil
	}

	fmt.Println("Enrolled users:")
	for _, u := range users {
		fmt.Printf("  %-24s enrolled %s\n", u.Name, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\nTotal: %d user(s)\n", len(users))
	return nil
}
