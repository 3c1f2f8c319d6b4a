package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pexa-ARavichandran/batect/internal/ctxlog"
	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
)

// ExitCodeError carries the exit code a *completed* task run should surface
// (spec §6: "the task's own exit code becomes the process's exit code").
// It is distinct from a plain error, which means the run itself could not
// be completed at all.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("task exited with code %d", e.Code)
}

// App encapsulates the application's dependencies, configuration, and
// lifecycle, decoupled from any specific entrypoint (spec §6's CLI is one
// of potentially several front ends over the same engine).
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	project *taskconfig.Project

	httpServer *http.Server
}

// NewApp loads the project via loader and returns a fully initialized App.
// A failure to load configuration is a fatal startup error, per the
// teacher's own NewApp — this is the only place category-1 config errors
// (spec §7) surface before the engine is invoked.
func NewApp(outW io.Writer, cfg *Config, loader taskconfig.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("logger configured")

	project, err := loader.Load(cfg.ProjectPath)
	if err != nil {
		panic(fmt.Errorf("failed to load project configuration: %w", err))
	}
	logger.Debug("project configuration loaded", "project", project.Name, "containers", len(project.Containers))

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		project: project,
	}
}

// Logger returns the App's configured logger. Exposed primarily for tests.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

func (a *App) baseContext() context.Context {
	return ctxlog.WithLogger(context.Background(), a.logger)
}
