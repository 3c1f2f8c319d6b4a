package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pexa-ARavichandran/batect/internal/app"
	"github.com/pexa-ARavichandran/batect/internal/cli"
	"github.com/pexa-ARavichandran/batect/internal/hclconfig"
)

// main is the entrypoint for the batect CLI.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		var exitCodeErr *app.ExitCodeError
		if errors.As(err, &exitCodeErr) {
			os.Exit(exitCodeErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. A category-3 internal invariant violation (spec §7) surfaces as
// a panic from deep inside the dispatcher/taskmachine; it is recovered here
// rather than crashing the process without an exit message, per the
// teacher's own main.go pattern.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("application startup panicked: %v", r)
			}
		}()

		loader := hclconfig.NewLoader()
		batectApp := app.NewApp(outW, appConfig, loader)
		runErr = batectApp.Run(context.Background())
	}()

	return runErr
}
