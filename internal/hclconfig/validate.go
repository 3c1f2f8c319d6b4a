package hclconfig

import (
	"fmt"

	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
)

// validate performs the schema-level checks spec §7 assigns to category 1
// ("config parse/validation errors"): every name is non-empty, the task
// container is named and exists, and every depends_on reference resolves to
// a declared container. It never walks the dependency graph for cycles —
// that check belongs to internal/taskgraph.Build, which runs after Load.
func validate(p *taskconfig.Project) error {
	if p.Name == "" {
		return &taskconfig.ValidationError{Field: "project.name", Problem: "must not be empty"}
	}
	if p.TaskName == "" {
		return &taskconfig.ValidationError{Field: "project.task", Problem: "must not be empty"}
	}
	if _, ok := p.Containers[p.TaskName]; !ok {
		return &taskconfig.ValidationError{Field: "project.task", Problem: fmt.Sprintf("no container named %q is declared", p.TaskName)}
	}

	for name, c := range p.Containers {
		if name == "" {
			return &taskconfig.ValidationError{Field: "container.name", Problem: "must not be empty"}
		}
		for _, dep := range c.DependsOn {
			if _, ok := p.Containers[dep]; !ok {
				return &taskconfig.ValidationError{
					Field:   fmt.Sprintf("container.%s.depends_on", name),
					Problem: fmt.Sprintf("references undeclared container %q", dep),
				}
			}
		}
	}

	return nil
}
