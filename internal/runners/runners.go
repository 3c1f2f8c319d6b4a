// Package runners implements the step-runner half of spec §4.A: given a
// taskstep.Step, call the appropriate daemon.Client operation and
// translate its outcome into the matching taskevent.Event. This is the
// dispatcher's StepExecutor — the only package, besides the daemon client
// itself, that knows about container images, handles and daemon wire
// errors.
package runners

import (
	"context"
	"fmt"

	"github.com/pexa-ARavichandran/batect/internal/ctxlog"
	"github.com/pexa-ARavichandran/batect/internal/daemon"
	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskstep"
)

// Runner executes every taskstep.Step case against a daemon.Client,
// resolving each container's full configuration from project.
type Runner struct {
	client  daemon.Client
	project *taskconfig.Project

	// AttachIO is forwarded to RunAttached for the task container step. It
	// defaults to the zero value (no stdio forwarded); internal/app sets it
	// to the process's real stdin/stdout/stderr before starting a run.
	AttachIO daemon.AttachIO
}

// New constructs a Runner bound to a single run's configuration.
func New(client daemon.Client, project *taskconfig.Project) *Runner {
	return &Runner{client: client, project: project}
}

// Execute implements dispatcher.StepExecutor. Each case below is grounded
// on the rule that produced the step (internal/rules/rules.go) and the
// matching daemon.Client method (spec §6).
func (r *Runner) Execute(ctx context.Context, step taskstep.Step) taskevent.Event {
	logger := ctxlog.FromContext(ctx).With("step", step.Case(), "container", step.Container())
	logger.Debug("executing step")

	switch s := step.(type) {
	case taskstep.PrepareTaskNetwork:
		return r.prepareTaskNetwork(ctx)
	case taskstep.BuildImage:
		return r.buildImage(ctx, s)
	case taskstep.PullImage:
		return r.pullImage(ctx, s)
	case taskstep.CreateContainer:
		return r.createContainer(ctx, s)
	case taskstep.StartContainer:
		return r.startContainer(ctx, s)
	case taskstep.WaitForHealth:
		return r.waitForHealth(ctx, s)
	case taskstep.RunSetupCommands:
		return r.runSetupCommands(ctx, s)
	case taskstep.RunContainer:
		return r.runContainer(ctx, s)
	case taskstep.StopContainer:
		return r.stopContainer(ctx, s)
	case taskstep.RemoveContainer:
		return r.removeContainer(ctx, s)
	case taskstep.DeleteTaskNetwork:
		return r.deleteTaskNetwork(ctx, s)
	default:
		panic(fmt.Sprintf("runners: unhandled step case %s", step.Case()))
	}
}

// prepareTaskNetwork has no corresponding failure case in the closed event
// sum (spec §3/§4.A never lists one) — a daemon error here is treated as a
// fatal fault rather than a recoverable run failure (see DESIGN.md's
// decision on network/cleanup daemon errors): the panic is recovered by the
// dispatcher and returned from Dispatcher.Run as an error.
func (r *Runner) prepareTaskNetwork(ctx context.Context) taskevent.Event {
	network, err := r.client.CreateNetwork(ctx)
	if err != nil {
		panic(fmt.Errorf("runners: create task network: %w", err))
	}
	return taskevent.TaskNetworkReady{Network: string(network)}
}

func (r *Runner) buildImage(ctx context.Context, s taskstep.BuildImage) taskevent.Event {
	c := r.container(s.ContainerName)
	req := daemon.BuildRequest{
		ContainerName: c.Name,
		Directory:     c.Image.BuildDirectory,
		Dockerfile:    c.Image.Dockerfile,
		BuildArgs:     c.Image.BuildArgs,
	}
	logger := ctxlog.FromContext(ctx)
	image, err := r.client.Build(ctx, req, func(line string) {
		logger.Debug("build progress", "container", c.Name, "line", line)
	})
	if err != nil {
		return taskevent.ImageBuildFailed{ContainerName: c.Name, Message: err.Error()}
	}
	return taskevent.ImageBuilt{ContainerName: c.Name, Image: string(image)}
}

func (r *Runner) pullImage(ctx context.Context, s taskstep.PullImage) taskevent.Event {
	c := r.container(s.ContainerName)
	logger := ctxlog.FromContext(ctx)
	image, err := r.client.Pull(ctx, c.Image.PullReference, daemon.Credentials{}, func(line string) {
		logger.Debug("pull progress", "container", c.Name, "line", line)
	})
	if err != nil {
		return taskevent.ImagePullFailed{ContainerName: c.Name, Message: err.Error()}
	}
	return taskevent.ImagePulled{ContainerName: c.Name, Image: string(image)}
}

func (r *Runner) createContainer(ctx context.Context, s taskstep.CreateContainer) taskevent.Event {
	c := r.container(s.ContainerName)

	volumes := make([]daemon.VolumeMount, len(c.Volumes))
	for i, v := range c.Volumes {
		volumes[i] = daemon.VolumeMount{Source: v.Source, Target: v.Target, ReadOnly: v.ReadOnly}
	}
	devices := make([]daemon.DeviceMount, len(c.Devices))
	for i, d := range c.Devices {
		devices[i] = daemon.DeviceMount{HostPath: d.HostPath, ContainerPath: d.ContainerPath, Permissions: d.Permissions}
	}
	ports := make([]daemon.PortMapping, len(c.Ports))
	for i, p := range c.Ports {
		ports[i] = daemon.PortMapping{ContainerPort: p.ContainerPort, HostPort: p.HostPort, Protocol: p.Protocol}
	}

	req := daemon.CreateContainerRequest{
		ContainerName:    c.Name,
		Image:            daemon.Image(s.Image),
		Network:          daemon.Network(s.Network),
		Command:          c.Command,
		Entrypoint:       c.Entrypoint,
		Env:              c.Env,
		WorkingDirectory: c.WorkingDirectory,
		Volumes:          volumes,
		Devices:          devices,
		Ports:            ports,
		RunAsCurrentUser: c.RunAsCurrentUser,
		Privileged:       c.Privileged,
		InitProcess:      c.InitProcess,
		CapAdd:           c.CapAdd,
		CapDrop:          c.CapDrop,
		ExtraHosts:       c.ExtraHosts,
		LogDriver:        c.LogDriver,
		LogOptions:       c.LogOptions,
		ShmSize:          c.ShmSize,
	}

	handle, err := r.client.CreateContainer(ctx, req)
	if err != nil {
		return taskevent.ContainerCreationFailed{ContainerName: c.Name, Message: err.Error()}
	}
	return taskevent.ContainerCreated{ContainerName: c.Name, Handle: string(handle)}
}

func (r *Runner) startContainer(ctx context.Context, s taskstep.StartContainer) taskevent.Event {
	if err := r.client.StartContainer(ctx, daemon.Handle(s.Handle)); err != nil {
		return taskevent.ContainerStartFailed{ContainerName: s.ContainerName, Message: err.Error()}
	}
	return taskevent.ContainerStarted{ContainerName: s.ContainerName}
}

// waitForHealth synthesizes immediate success for containers with no
// declared health check, skipping the daemon round trip when HealthCheck is
// nil. Dependents of such a container do not wait for this step: the
// StartContainer rule treats its ContainerStarted event as readiness.
func (r *Runner) waitForHealth(ctx context.Context, s taskstep.WaitForHealth) taskevent.Event {
	c := r.container(s.ContainerName)
	if !c.HasHealthCheck() {
		return taskevent.ContainerBecameHealthy{ContainerName: c.Name}
	}

	result, err := r.client.WaitForHealth(ctx, daemon.Handle(s.Handle))
	if err != nil {
		return taskevent.ContainerDidNotBecomeHealthy{ContainerName: c.Name, Message: err.Error()}
	}
	if !result.Healthy {
		return taskevent.ContainerDidNotBecomeHealthy{ContainerName: c.Name, Message: result.Message}
	}
	return taskevent.ContainerBecameHealthy{ContainerName: c.Name}
}

// runSetupCommands synthesizes immediate success for containers declaring
// none, per spec §4.C, and otherwise executes each command in order via
// Exec, stopping at the first failure.
func (r *Runner) runSetupCommands(ctx context.Context, s taskstep.RunSetupCommands) taskevent.Event {
	c := r.container(s.ContainerName)
	if !c.HasSetupCommands() {
		return taskevent.SetupCommandsCompleted{ContainerName: c.Name}
	}

	for _, cmd := range c.SetupCommands {
		exitCode, err := r.client.Exec(ctx, daemon.Handle(s.Handle), cmd.Command)
		if err != nil {
			return taskevent.SetupCommandFailed{ContainerName: c.Name, Command: joinCommand(cmd.Command), Message: err.Error()}
		}
		if exitCode != 0 {
			return taskevent.SetupCommandFailed{
				ContainerName: c.Name,
				Command:       joinCommand(cmd.Command),
				Message:       fmt.Sprintf("exited with code %d", exitCode),
			}
		}
	}
	return taskevent.SetupCommandsCompleted{ContainerName: c.Name}
}

// runContainer attaches to the task container's own stdio. The UI-layer
// wiring of AttachIO to the process's real stdin/stdout/stderr happens in
// internal/app, not here — the runner only forwards whatever AttachIO it
// is constructed with.
func (r *Runner) runContainer(ctx context.Context, s taskstep.RunContainer) taskevent.Event {
	exitCode, err := r.client.RunAttached(ctx, daemon.Handle(s.Handle), r.attachIO())
	if err != nil {
		return taskevent.RunningContainerExited{ContainerName: s.ContainerName, ExitCode: -1}
	}
	return taskevent.RunningContainerExited{ContainerName: s.ContainerName, ExitCode: exitCode}
}

func (r *Runner) stopContainer(ctx context.Context, s taskstep.StopContainer) taskevent.Event {
	if err := r.client.Stop(ctx, daemon.Handle(s.Handle)); err != nil {
		ctxlog.FromContext(ctx).Warn("stop container failed during cleanup", "container", s.ContainerName, "error", err)
	}
	return taskevent.ContainerStopped{ContainerName: s.ContainerName}
}

func (r *Runner) removeContainer(ctx context.Context, s taskstep.RemoveContainer) taskevent.Event {
	if err := r.client.Remove(ctx, daemon.Handle(s.Handle)); err != nil {
		ctxlog.FromContext(ctx).Warn("remove container failed during cleanup", "container", s.ContainerName, "error", err)
	}
	return taskevent.ContainerRemoved{ContainerName: s.ContainerName}
}

func (r *Runner) deleteTaskNetwork(ctx context.Context, s taskstep.DeleteTaskNetwork) taskevent.Event {
	if err := r.client.RemoveNetwork(ctx, daemon.Network(s.Network)); err != nil {
		ctxlog.FromContext(ctx).Warn("remove network failed during cleanup", "network", s.Network, "error", err)
	}
	return taskevent.TaskNetworkRemoved{}
}

func (r *Runner) container(name string) *taskconfig.Container {
	c := r.project.Containers[name]
	if c == nil {
		panic(fmt.Sprintf("runners: unknown container %q", name))
	}
	return c
}

// attachIO is overridden by internal/app before a run starts; by default
// a Runner forwards no stdio, which is only correct for tests.
func (r *Runner) attachIO() daemon.AttachIO {
	return r.AttachIO
}

func joinCommand(cmd []string) string {
	out := ""
	for i, part := range cmd {
		if i > 0 {
			out += " "
		}
		out += part
	}
	return out
}
