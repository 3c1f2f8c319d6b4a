// Package taskconfig holds the format-agnostic, immutable task configuration
// model described in spec §3. Values here are produced by a Loader (see
// errors.go and the hclconfig package) and are never mutated once a Project
// is returned — every downstream component (graph builder, planners, rules,
// runners) shares the same Project by read-only reference.
package taskconfig

import "time"

// Project is the fully-loaded, fully-validated configuration for a single
// task invocation: the project name, the task to run, and every container
// transitively reachable from it.
type Project struct {
	Name        string
	TaskName    string
	Containers  map[string]*Container
	Environment map[string]string // ambient proxy/host env; hclconfig.Loader does not populate it
}

// TaskContainer returns the container this project designates as the task
// container, i.e. the one whose exit code becomes the task's exit code.
func (p *Project) TaskContainer() *Container {
	return p.Containers[p.TaskName]
}

// Container is the immutable, validated configuration for one container as
// described in spec §3. Once produced by a Loader it is shared read-only by
// every component in a run.
type Container struct {
	Name string

	Image   ImageSource
	Command []string
	// Entrypoint overrides the image's default entrypoint when non-nil.
	Entrypoint []string

	// Env holds concrete strings: literal values and host-environment
	// references (env.NAME in HCL) are already resolved by the time a
	// Project reaches the core — resolution happens entirely inside the
	// loader (see hclconfig's evalStringMap and buildEvalContext), not here.
	Env map[string]string

	WorkingDirectory string
	Volumes          []VolumeMount
	Devices          []DeviceMount
	Ports            []PortMapping

	DependsOn []string

	HealthCheck *HealthCheck

	RunAsCurrentUser bool
	Privileged       bool
	InitProcess      bool
	CapAdd           []string
	CapDrop          []string
	ExtraHosts       []string

	SetupCommands []SetupCommand

	LogDriver  string
	LogOptions map[string]string

	ShmSize string
}

// HasHealthCheck reports whether this container declares a health check.
// Per §4.C / §9, a container without one is considered "ready" for its
// dependents as soon as it has started rather than once it is healthy.
func (c *Container) HasHealthCheck() bool {
	return c.HealthCheck != nil
}

// HasSetupCommands reports whether RunSetupCommands has any work to do.
// Per §4.C, a container with none synthesizes immediate success.
func (c *Container) HasSetupCommands() bool {
	return len(c.SetupCommands) > 0
}

// ImageSourceKind distinguishes the two ways an image can be materialized.
type ImageSourceKind int

const (
	// ImageSourceBuild builds the image from a local build context directory.
	ImageSourceBuild ImageSourceKind = iota
	// ImageSourcePull pulls the image from a registry reference.
	ImageSourcePull
)

// ImageSource names either a build context or a pull reference, never both.
type ImageSource struct {
	Kind Kind

	// BuildDirectory, Dockerfile and BuildArgs apply when Kind == ImageSourceBuild.
	BuildDirectory string
	Dockerfile     string
	BuildArgs      map[string]string

	// PullReference and PullPolicy apply when Kind == ImageSourcePull.
	PullReference string
	PullPolicy    PullPolicy
}

// Kind is an alias kept for readability at call sites (ImageSource.Kind).
type Kind = ImageSourceKind

// PullPolicy controls whether PullImage always hits the registry.
type PullPolicy int

const (
	PullIfNotPresent PullPolicy = iota
	PullAlways
	PullNever
)

// VolumeMount binds a host path or named volume into the container.
type VolumeMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// DeviceMount exposes a host device node inside the container.
type DeviceMount struct {
	HostPath      string
	ContainerPath string
	Permissions   string
}

// PortMapping forwards a container port to the host.
type PortMapping struct {
	ContainerPort int
	HostPort      int
	Protocol      string
}

// HealthCheck configures WaitForHealth's polling behaviour.
type HealthCheck struct {
	Command     []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// SetupCommand is one command RunSetupCommands executes inside an already-healthy
// container before it is considered ready to be depended on / run.
type SetupCommand struct {
	Command []string
}
