package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/facewatch/facewatch/pkg/config"
	"github.com/facewatch/facewatch/pkg/logging"
)

const version = "0.1.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      *config.Config
	commands map[string]*Command
)

func init() {
	commands = map[string]*Command{
		"run": {
			Name:        "run",
			Description: "Run the attendance recognition loop",
			Usage:       "facewatch run",
			Run:         cmdRun,
		},
		"enroll": {
			Name:        "enroll",
			Description: "Enroll a new user from live camera samples",
			Usage:       "facewatch enroll <name>",
			Run:         cmdEnroll,
		},
		"users": {
			Name:        "users",
			Description: "List enrolled users",
			Usage:       "facewatch users",
			Run:         cmdUsers,
		},
		"download-cascade": {
			Name:        "download-cascade",
			Description: "Download the face detection cascade model",
			Usage:       "facewatch download-cascade [path]",
			Run:         cmdDownloadCascade,
		},
		"config": {
			Name:        "config",
			Description: "Show current configuration",
			Usage:       "facewatch config",
			Run:         cmdConfig,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "facewatch version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "facewatch help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	args := flag.Args()

	// Optional .env overlay keeps credentials out of the config file.
	_ = godotenv.Load()

	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := cfg.Logging.Level
	if *debug {
		logLevel = "debug"
	}
	if err := logging.Init(logLevel, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not initialize file logging: %v\n", err)
	}

	logging.Debugf("facewatch v%s starting", version)

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("Command '%s' failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("facewatch - Face Recognition Attendance")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: facewatch [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range []string{"run", "enroll", "users", "download-cascade", "config", "version", "help"} {
		cmd := commands[name]
		fmt.Printf("  %-18s %s\n", cmd.Name, cmd.Description)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  facewatch run              # Start the recognition loop")
	fmt.Println("  facewatch enroll alice     # Enroll user 'alice'")
	fmt.Println("  facewatch -debug run       # Run with debug output")
	fmt.Println("\nRun 'facewatch help <command>' for more information on a command.")
}

func cmdConfig(args []string) error {
	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Camera]")
	fmt.Printf("  Device:           %s\n", cfg.Camera.Device)
	fmt.Printf("  Resolution:       %dx%d @ %d FPS\n", cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	fmt.Println()
	fmt.Println("[Detection]")
	fmt.Printf("  Cascade:          %s\n", cfg.Detection.CascadePath)
	fmt.Printf("  Min Confidence:   %.1f\n", cfg.Detection.MinConfidence)
	fmt.Printf("  Min Size:         %.1f%% of frame\n", cfg.Detection.MinSizeFraction*100)
	fmt.Println()
	fmt.Println("[Liveness]")
	fmt.Printf("  Window:           %d frames\n", cfg.Liveness.WindowSize)
	fmt.Printf("  Motion Threshold: %.1f\n", cfg.Liveness.MotionThreshold)
	fmt.Println()
	fmt.Println("[Recognition]")
	fmt.Printf("  Threshold:        %.1f\n", cfg.Recognition.Threshold)
	fmt.Printf("  Borderline:       %.2fx\n", cfg.Recognition.BorderlineMargin)
	fmt.Println()
	fmt.Println("[Enrollment]")
	fmt.Printf("  Target Samples:   %d\n", cfg.Enrollment.TargetSamples)
	fmt.Printf("  Minimum Samples:  %d\n", cfg.Enrollment.MinimumSamples)
	fmt.Println()
	fmt.Println("[Attendance]")
	fmt.Printf("  Cooldown:         %s\n", cfg.Attendance.Cooldown())
	fmt.Println()
	fmt.Println("[Database]")
	fmt.Printf("  URL:              %s\n", cfg.Database.URL)
	fmt.Println()
	fmt.Println("[Encryption]")
	fmt.Printf("  Key File:         %s\n", cfg.Encryption.KeyFile)
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:            %s\n", cfg.Logging.Level)
	fmt.Printf("  File:             %s\n", cfg.Logging.File)
	return nil
}

func cmdVersion(args []string) error {
	fmt.Printf("facewatch v%s\n", version)
	fmt.Println("Face Recognition Attendance")
	return nil
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	fmt.Printf("Command: %s\n", cmd.Name)
	fmt.Printf("Description: %s\n", cmd.Description)
	fmt.Printf("Usage: %s\n", cmd.Usage)

	switch cmdName {
	case "run":
		fmt.Println("\nOperator controls (stdin):")
		fmt.Println("  mark            Commit attendance for the current recognized face")
		fmt.Println("  enroll <name>   Start an enrollment session")
		fmt.Println("  stop            Finish the current frame and exit")
		fmt.Println("\nSIGINT/SIGTERM also request a clean stop.")
	case "enroll":
		fmt.Println("\nEnrollment Process:")
		fmt.Println("  1. Position the subject in front of the camera with good lighting")
		fmt.Println("  2. Samples are only captured from motion-verified live frames")
		fmt.Println("  3. The session ends once the configured sample count is reached")
		fmt.Println("  4. Face data is encrypted before it reaches the database")
	case "config":
		fmt.Println("\nConfiguration Locations:")
		fmt.Println("  System: /etc/facewatch/facewatch.yaml")
		fmt.Println("  User:   ~/.config/facewatch/facewatch.yaml")
		fmt.Println("\nUse -config flag to specify a custom config file.")
		fmt.Println("DATABASE_URL in the environment overrides the configured DSN.")
	}

	return nil
}
