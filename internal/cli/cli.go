package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/pexa-ARavichandran/batect/internal/app"
	"github.com/pexa-ARavichandran/batect/internal/planner"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("batect", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
batect - run a declaratively-defined task inside ephemeral containers.

Usage:
  batect [options] [PROJECT_PATH]

Arguments:
  PROJECT_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	projectFlag := flagSet.String("config", "", "Path to the project file or directory.")
	cFlag := flagSet.String("c", "", "Path to the project file or directory (shorthand).")
	daemonURLFlag := flagSet.String("daemon-url", "ws://127.0.0.1:2375", "URL of the local container daemon's stream endpoint.")
	insecureFlag := flagSet.Bool("insecure-skip-verify", false, "Skip TLS certificate verification when connecting to the daemon.")
	healthPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status/events server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Number of concurrent workers. 0 uses the number of CPUs.")
	noCleanupOnSuccessFlag := flagSet.Bool("no-cleanup-on-success", false, "Leave containers and network in place when the task succeeds.")
	noCleanupOnFailureFlag := flagSet.Bool("no-cleanup-on-failure", false, "Leave containers and network in place when the task fails.")
	neverCleanupFlag := flagSet.Bool("never-cleanup", false, "Never clean up automatically, regardless of outcome.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *projectFlag != "" {
		path = *projectFlag
	} else if *cFlag != "" {
		path = *cFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Project path determined.", "path", path)

	if path == "" {
		slog.Debug("No project path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	policy, err := cleanupPolicy(*neverCleanupFlag, *noCleanupOnSuccessFlag, *noCleanupOnFailureFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	workers := *workersFlag
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ProjectPath:        path,
		DaemonURL:          *daemonURLFlag,
		InsecureSkipVerify: *insecureFlag,
		HealthcheckPort:    *healthPortFlag,
		LogFormat:          logFormat,
		LogLevel:           logLevel,
		WorkerCount:        workers,
		CleanupPolicy:      policy,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

// cleanupPolicy resolves the three mutually-exclusive cleanup flags into a
// single planner.CleanupPolicy, per spec §4.E.
func cleanupPolicy(never, noSuccess, noFailure bool) (planner.CleanupPolicy, error) {
	set := 0
	for _, b := range []bool{never, noSuccess, noFailure} {
		if b {
			set++
		}
	}
	if set > 1 {
		return 0, fmt.Errorf("at most one of --never-cleanup, --no-cleanup-on-success, --no-cleanup-on-failure may be set")
	}
	switch {
	case never:
		return planner.NeverCleanup, nil
	case noSuccess:
		return planner.DontCleanupOnSuccess, nil
	case noFailure:
		return planner.DontCleanupOnFailure, nil
	default:
		return planner.CleanupAlways, nil
	}
}
