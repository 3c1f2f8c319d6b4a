// Package daemon pins the upstream collaborator interface spec §6 assumes:
// a local container daemon reachable over a stream transport. The core
// engine (taskmachine, rules, planner) never imports this package directly
// — only the runners package does, translating daemon results into
// taskevent.Event values (internal/app imports it too, to dial the daemon
// and wire AttachIO). This keeps the daemon client a true external
// collaborator: swapping StreamClient for a different implementation (or a
// test fake, see daemon/fake) never touches the engine.
package daemon

import (
	"context"
	"io"
)

// Image, Handle and Network are opaque value identifiers published by their
// creation call, per spec §5 ("container/network identifiers are immutable
// value types once published by their creation event").
type (
	Image   string
	Handle  string
	Network string
)

// Credentials authenticates a PullImage call against a private registry.
type Credentials struct {
	Username string
	Password string
}

// BuildRequest names a build context directory and its Dockerfile/args.
type BuildRequest struct {
	ContainerName string
	Directory     string
	Dockerfile    string
	BuildArgs     map[string]string
	Network       Network
}

// CreateContainerRequest carries every container attribute from spec §3
// the daemon needs at creation time.
type CreateContainerRequest struct {
	ContainerName    string
	Image            Image
	Network          Network
	Command          []string
	Entrypoint       []string
	Env              map[string]string
	WorkingDirectory string
	Volumes          []VolumeMount
	Devices          []DeviceMount
	Ports            []PortMapping
	RunAsCurrentUser bool
	Privileged       bool
	InitProcess      bool
	CapAdd           []string
	CapDrop          []string
	ExtraHosts       []string
	LogDriver        string
	LogOptions       map[string]string
	ShmSize          string
}

type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

type DeviceMount struct {
	HostPath      string
	ContainerPath string
	Permissions   string
}

type PortMapping struct {
	ContainerPort int
	HostPort      int
	Protocol      string
}

// HealthResult is WaitForHealth's outcome.
type HealthResult struct {
	Healthy bool
	Message string
}

// AttachIO wires a RunAttached/Exec call to the task's own terminal.
type AttachIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ProgressFunc receives incremental build/pull progress lines.
type ProgressFunc func(line string)

// Client is the daemon client interface from spec §6. Every method accepts
// a context.Context as its cancellation token, per §5 ("long daemon calls
// must be attached to the token so closing the token aborts them").
type Client interface {
	Build(ctx context.Context, req BuildRequest, onProgress ProgressFunc) (Image, error)
	Pull(ctx context.Context, ref string, creds Credentials, onProgress ProgressFunc) (Image, error)

	CreateContainer(ctx context.Context, req CreateContainerRequest) (Handle, error)
	StartContainer(ctx context.Context, h Handle) error
	WaitForHealth(ctx context.Context, h Handle) (HealthResult, error)
	Stop(ctx context.Context, h Handle) error
	Remove(ctx context.Context, h Handle) error

	CreateNetwork(ctx context.Context) (Network, error)
	RemoveNetwork(ctx context.Context, n Network) error

	RunAttached(ctx context.Context, h Handle, io AttachIO) (exitCode int, err error)
	Exec(ctx context.Context, h Handle, cmd []string) (exitCode int, err error)
}
