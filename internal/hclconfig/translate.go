package hclconfig

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
)

func translateContainer(c *hclContainer, evalCtx *hcl.EvalContext) (*taskconfig.Container, error) {
	image, err := translateImage(c.Name, c.Image, evalCtx)
	if err != nil {
		return nil, err
	}

	env, err := evalStringMap(c.Name, "env", c.Env, evalCtx)
	if err != nil {
		return nil, err
	}
	logOptions, err := evalStringMap(c.Name, "log_options", c.LogOptions, evalCtx)
	if err != nil {
		return nil, err
	}

	healthCheck, err := translateHealthCheck(c.Name, c.HealthCheck)
	if err != nil {
		return nil, err
	}

	container := &taskconfig.Container{
		Name:             c.Name,
		Image:            *image,
		Command:          c.Command,
		Entrypoint:       c.Entrypoint,
		Env:              env,
		WorkingDirectory: c.WorkingDirectory,
		DependsOn:        c.DependsOn,
		HealthCheck:      healthCheck,
		RunAsCurrentUser: c.RunAsCurrentUser,
		Privileged:       c.Privileged,
		InitProcess:      c.InitProcess,
		CapAdd:           c.CapAdd,
		CapDrop:          c.CapDrop,
		ExtraHosts:       c.ExtraHosts,
		LogDriver:        c.LogDriver,
		LogOptions:       logOptions,
		ShmSize:          c.ShmSize,
	}

	for _, v := range c.Volumes {
		container.Volumes = append(container.Volumes, taskconfig.VolumeMount{Source: v.Source, Target: v.Target, ReadOnly: v.ReadOnly})
	}
	for _, d := range c.Devices {
		container.Devices = append(container.Devices, taskconfig.DeviceMount{HostPath: d.HostPath, ContainerPath: d.ContainerPath, Permissions: d.Permissions})
	}
	for _, p := range c.Ports {
		protocol := p.Protocol
		if protocol == "" {
			protocol = "tcp"
		}
		container.Ports = append(container.Ports, taskconfig.PortMapping{ContainerPort: p.ContainerPort, HostPort: p.HostPort, Protocol: protocol})
	}
	for _, sc := range c.SetupCommands {
		container.SetupCommands = append(container.SetupCommands, taskconfig.SetupCommand{Command: sc.Command})
	}

	return container, nil
}

func translateImage(containerName string, img *hclImage, evalCtx *hcl.EvalContext) (*taskconfig.ImageSource, error) {
	if img == nil {
		return nil, &taskconfig.ValidationError{Field: "container." + containerName + ".image", Problem: "image block is required"}
	}
	if img.Build != nil && img.Pull != nil {
		return nil, &taskconfig.ValidationError{Field: "container." + containerName + ".image", Problem: "image declares both build and pull; exactly one is allowed"}
	}

	if img.Build != nil {
		buildArgs, err := evalStringMap(containerName, "image.build.build_args", img.Build.BuildArgs, evalCtx)
		if err != nil {
			return nil, err
		}
		dockerfile := img.Build.Dockerfile
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		return &taskconfig.ImageSource{
			Kind:           taskconfig.ImageSourceBuild,
			BuildDirectory: img.Build.Directory,
			Dockerfile:     dockerfile,
			BuildArgs:      buildArgs,
		}, nil
	}

	if img.Pull != nil {
		policy, err := translatePullPolicy(containerName, img.Pull.Policy)
		if err != nil {
			return nil, err
		}
		return &taskconfig.ImageSource{
			Kind:          taskconfig.ImageSourcePull,
			PullReference: img.Pull.Reference,
			PullPolicy:    policy,
		}, nil
	}

	return nil, &taskconfig.ValidationError{Field: "container." + containerName + ".image", Problem: "image must declare either a build or pull block"}
}

func translatePullPolicy(containerName, raw string) (taskconfig.PullPolicy, error) {
	switch raw {
	case "", "if_not_present":
		return taskconfig.PullIfNotPresent, nil
	case "always":
		return taskconfig.PullAlways, nil
	case "never":
		return taskconfig.PullNever, nil
	default:
		return 0, &taskconfig.ValidationError{
			Field:   "container." + containerName + ".image.pull.policy",
			Problem: fmt.Sprintf("unknown pull policy %q (want if_not_present, always, or never)", raw),
		}
	}
}

func translateHealthCheck(containerName string, hc *hclHealthCheck) (*taskconfig.HealthCheck, error) {
	if hc == nil {
		return nil, nil
	}

	interval, err := parseDurationOrDefault(containerName, "health_check.interval", hc.Interval, 10*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationOrDefault(containerName, "health_check.timeout", hc.Timeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	startPeriod, err := parseDurationOrDefault(containerName, "health_check.start_period", hc.StartPeriod, 0)
	if err != nil {
		return nil, err
	}

	retries := hc.Retries
	if retries == 0 {
		retries = 3
	}

	return &taskconfig.HealthCheck{
		Command:     hc.Command,
		Interval:    interval,
		Timeout:     timeout,
		Retries:     retries,
		StartPeriod: startPeriod,
	}, nil
}

func parseDurationOrDefault(containerName, field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &taskconfig.ValidationError{
			Field:   fmt.Sprintf("container.%s.%s", containerName, field),
			Problem: fmt.Sprintf("invalid duration %q: %v", raw, err),
		}
	}
	return d, nil
}

// evalStringMap evaluates an optional map-shaped HCL expression (e.g. an
// `env = { ... }` attribute) into a plain map[string]string, using evalCtx
// so expressions can reference env.* (see buildEvalContext). A nil
// expression yields a nil map, not an error.
func evalStringMap(containerName, field string, expr hcl.Expression, evalCtx *hcl.EvalContext) (map[string]string, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, &taskconfig.ValidationError{
			Field:   fmt.Sprintf("container.%s.%s", containerName, field),
			Problem: diags.Error(),
		}
	}
	if val.IsNull() {
		return nil, nil
	}

	converted, err := convert.Convert(val, cty.Map(cty.String))
	if err != nil {
		return nil, &taskconfig.ValidationError{
			Field:   fmt.Sprintf("container.%s.%s", containerName, field),
			Problem: fmt.Sprintf("expected a map of strings: %v", err),
		}
	}

	out := make(map[string]string)
	for it := converted.ElementIterator(); it.Next(); {
		k, v := it.Element()
		out[k.AsString()] = v.AsString()
	}
	return out, nil
}
