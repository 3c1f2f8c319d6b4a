package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pexa-ARavichandran/batect/internal/cancelctx"
	"github.com/pexa-ARavichandran/batect/internal/ctxlog"
	"github.com/pexa-ARavichandran/batect/internal/daemon"
	"github.com/pexa-ARavichandran/batect/internal/dispatcher"
	"github.com/pexa-ARavichandran/batect/internal/runners"
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskgraph"
	"github.com/pexa-ARavichandran/batect/internal/taskmachine"
)

// Run drives one full task invocation: build the graph, connect to the
// daemon, construct the state machine and dispatcher, run to completion,
// and report the result. It returns an *ExitCodeError when the task itself
// ran to completion (the error carries the task's own exit code, per
// spec §6), or a plain error when the run could not be completed at all.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("run started", "project", a.project.Name, "task", a.project.TaskName)

	graph, err := taskgraph.Build(a.project)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("dependency graph built", "nodes", len(graph.Nodes()))

	cancel := cancelctx.New(ctx)
	runCtx := cancel.Context()

	notifyCtx, stopNotify := signal.NotifyContext(runCtx, os.Interrupt)
	defer stopNotify()

	machine := taskmachine.New(runCtx, graph, a.config.CleanupPolicy, cancel)

	if a.config.HealthcheckPort > 0 {
		go a.startStatusServer(a.config.HealthcheckPort, machine)
		defer a.closeStatusServer()
	}

	go func() {
		<-notifyCtx.Done()
		if runCtx.Err() == nil {
			a.logger.Warn("interrupt received, cancelling task")
			machine.PostEvent(taskevent.UserRequestedCancellation{})
		}
	}()

	client, err := daemon.Dial(runCtx, a.config.DaemonURL, a.config.InsecureSkipVerify)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()

	runner := runners.New(client, a.project)
	runner.AttachIO = daemon.AttachIO{Stdin: os.Stdin, Stdout: a.outW, Stderr: os.Stderr}

	workers := a.config.WorkerCount
	d := dispatcher.New(machine, runner, workers)

	a.logger.Info("starting task", "task", a.project.TaskName)
	status, err := d.Run(runCtx)
	if err != nil {
		return fmt.Errorf("task execution failed: %w", err)
	}

	a.reportManualCleanup(status)

	if status.ManualCleanup.Kind == taskmachine.ManualCleanupRequiredDueToCleanupFailure {
		return fmt.Errorf("cleanup failed; see manual cleanup commands above")
	}
	if status.ExitCode == nil {
		if status.Failed {
			return fmt.Errorf("task failed before the task container ran")
		}
		return nil
	}
	return &ExitCodeError{Code: *status.ExitCode}
}

func (a *App) reportManualCleanup(status taskmachine.TaskStatus) {
	if status.ManualCleanup.Kind == taskmachine.ManualCleanupNone {
		return
	}
	fmt.Fprintln(a.outW, "Resources were not automatically cleaned up. Run the following to remove them:")
	for _, cmd := range status.ManualCleanup.Commands {
		fmt.Fprintln(a.outW, "  "+cmd)
	}
}
