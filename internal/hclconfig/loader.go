// Package hclconfig loads taskconfig.Project values from HCL files, in the
// same shape as the teacher's internal/hcl_adapter.Loader: parse every file
// with hclparse, gohcl.DecodeBody into a file-local root struct, then
// translate and merge each block into the format-agnostic model. It
// performs the schema validation spec §7 calls category 1 ("config parse
// errors") but deliberately never checks graph acyclicity — that is
// internal/taskgraph's job (spec §3's "Loader" vs. "Graph builder" split).
package hclconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/pexa-ARavichandran/batect/internal/fsutil"
	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
)

// Loader is the HCL implementation of taskconfig.Loader.
type Loader struct{}

// NewLoader constructs an HCL Loader.
func NewLoader() *Loader {
	return &Loader{}
}

type fileRoot struct {
	Project    *hclProject    `hcl:"project,block"`
	Containers []*hclContainer `hcl:"container,block"`
	Remain     hcl.Body        `hcl:",remain"`
}

type hclProject struct {
	Name string `hcl:"name,label"`
	Task string `hcl:"task"`
}

type hclContainer struct {
	Name string `hcl:"name,label"`

	Image      *hclImage `hcl:"image,block"`
	Command    []string  `hcl:"command,optional"`
	Entrypoint []string  `hcl:"entrypoint,optional"`
	Env        hcl.Expression `hcl:"env,optional"`

	WorkingDirectory string         `hcl:"working_directory,optional"`
	Volumes          []*hclVolume   `hcl:"volume,block"`
	Devices          []*hclDevice   `hcl:"device,block"`
	Ports            []*hclPort     `hcl:"port,block"`

	DependsOn []string `hcl:"depends_on,optional"`

	HealthCheck *hclHealthCheck `hcl:"health_check,block"`

	RunAsCurrentUser bool     `hcl:"run_as_current_user,optional"`
	Privileged       bool     `hcl:"privileged,optional"`
	InitProcess      bool     `hcl:"init_process,optional"`
	CapAdd           []string `hcl:"cap_add,optional"`
	CapDrop          []string `hcl:"cap_drop,optional"`
	ExtraHosts       []string `hcl:"extra_hosts,optional"`

	SetupCommands []*hclSetupCommand `hcl:"setup_command,block"`

	LogDriver  string         `hcl:"log_driver,optional"`
	LogOptions hcl.Expression `hcl:"log_options,optional"`

	ShmSize string `hcl:"shm_size,optional"`
}

type hclImage struct {
	Build *hclBuildSource `hcl:"build,block"`
	Pull  *hclPullSource  `hcl:"pull,block"`
}

type hclBuildSource struct {
	Directory  string         `hcl:"directory"`
	Dockerfile string         `hcl:"dockerfile,optional"`
	BuildArgs  hcl.Expression `hcl:"build_args,optional"`
}

type hclPullSource struct {
	Reference string `hcl:"reference"`
	Policy    string `hcl:"policy,optional"`
}

type hclVolume struct {
	Source   string `hcl:"source"`
	Target   string `hcl:"target"`
	ReadOnly bool   `hcl:"read_only,optional"`
}

type hclDevice struct {
	HostPath      string `hcl:"host_path"`
	ContainerPath string `hcl:"container_path"`
	Permissions   string `hcl:"permissions,optional"`
}

type hclPort struct {
	ContainerPort int    `hcl:"container_port"`
	HostPort      int    `hcl:"host_port"`
	Protocol      string `hcl:"protocol,optional"`
}

type hclHealthCheck struct {
	Command     []string `hcl:"command"`
	Interval    string   `hcl:"interval,optional"`
	Timeout     string   `hcl:"timeout,optional"`
	Retries     int      `hcl:"retries,optional"`
	StartPeriod string   `hcl:"start_period,optional"`
}

type hclSetupCommand struct {
	Command []string `hcl:"command"`
}

// Load parses every .hcl file under paths and returns the single
// taskconfig.Project they describe. Exactly one project block is allowed
// across the whole set of files.
func (l *Loader) Load(path string) (*taskconfig.Project, error) {
	files, err := findHCLFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &taskconfig.ValidationError{Field: "path", Problem: fmt.Sprintf("no .hcl files found under %q", path)}
	}

	evalCtx := buildEvalContext()

	parser := hclparse.NewParser()
	project := &taskconfig.Project{Containers: make(map[string]*taskconfig.Container)}
	var projectSeen bool

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("hclconfig: parse %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("hclconfig: decode %s: %w", file, diags)
		}

		if root.Project != nil {
			if projectSeen {
				return nil, &taskconfig.ValidationError{Field: "project", Problem: "more than one project block found across input files"}
			}
			projectSeen = true
			project.Name = root.Project.Name
			project.TaskName = root.Project.Task
		}

		for _, c := range root.Containers {
			container, err := translateContainer(c, evalCtx)
			if err != nil {
				return nil, err
			}
			if _, exists := project.Containers[container.Name]; exists {
				return nil, &taskconfig.ValidationError{Field: "container", Problem: fmt.Sprintf("duplicate container name %q", container.Name)}
			}
			project.Containers[container.Name] = container
		}
	}

	if !projectSeen {
		return nil, &taskconfig.ValidationError{Field: "project", Problem: "no project block found"}
	}
	if err := validate(project); err != nil {
		return nil, err
	}

	return project, nil
}

// buildEvalContext exposes the ambient host environment as env.* so
// container env blocks can reference it, e.g. env = { HOME = env.HOME }.
// This is the HCL analogue of the YAML environment-variable substitution
// spec §1's Non-goals excludes only the YAML *format*, not the concern
// (see SPEC_FULL §10.2).
func buildEvalContext() *hcl.EvalContext {
	envVars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				envVars[kv[:i]] = cty.StringVal(kv[i+1:])
				break
			}
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(envVars),
		},
	}
}

// findHCLFiles delegates the actual walk to fsutil.FindFilesByExtension —
// the teacher's own recursive-by-extension finder, used here exactly as it
// is used to discover step `.hcl` files upstream.
func findHCLFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("hclconfig: %w", err)
	}

	if !info.IsDir() {
		if filepath.Ext(root) == ".hcl" {
			return []string{root}, nil
		}
		return nil, nil
	}

	return fsutil.FindFilesByExtension(root, ".hcl")
}
