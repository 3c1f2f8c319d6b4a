// Package taskgraph implements component B: it resolves the transitive
// closure of containers required by a task container and validates the
// result is a DAG, per spec §3 and §4.B.
package taskgraph

import (
	"fmt"

	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
)

// Graph is the dependency graph of a single run: one node per container
// transitively reachable from the task container, edges meaning "depends on".
// It is built once, at startup, and never mutated afterwards — every
// component that consults it (planners, rules) does so read-only.
type Graph struct {
	taskContainer string
	nodes         map[string]*taskconfig.Container
	// order is the BFS discovery order, kept only so iteration is
	// deterministic across runs with the same config (useful for tests and
	// for reproducible manual-cleanup command ordering).
	order []string
	edges map[string][]string // edges[a] = containers a depends on
}

// Build performs the BFS from proj.TaskContainer() described in §4.B and
// returns an InvalidGraphError if any referenced container name is missing,
// the dependency relation has a cycle, or the task container is absent.
func Build(proj *taskconfig.Project) (*Graph, error) {
	task, ok := proj.Containers[proj.TaskName]
	if !ok || task == nil {
		return nil, &InvalidGraphError{Reason: fmt.Sprintf("task container %q is not defined", proj.TaskName)}
	}

	g := &Graph{
		taskContainer: proj.TaskName,
		nodes:         make(map[string]*taskconfig.Container),
		edges:         make(map[string][]string),
	}

	queue := []string{proj.TaskName}
	visited := map[string]bool{proj.TaskName: true}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		c, ok := proj.Containers[name]
		if !ok || c == nil {
			return nil, &InvalidGraphError{Reason: fmt.Sprintf("container %q references missing dependency", name)}
		}

		g.nodes[name] = c
		g.order = append(g.order, name)
		g.edges[name] = append([]string(nil), c.DependsOn...)

		for _, dep := range c.DependsOn {
			if _, ok := proj.Containers[dep]; !ok {
				return nil, &InvalidGraphError{Reason: fmt.Sprintf("container %q depends on undefined container %q", name, dep)}
			}
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}

	return g, nil
}

// Nodes returns every container name in the graph, in BFS discovery order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Container looks up a node's configuration by name.
func (g *Graph) Container(name string) (*taskconfig.Container, bool) {
	c, ok := g.nodes[name]
	return c, ok
}

// EdgesFrom returns the names of the containers that name directly depends on.
func (g *Graph) EdgesFrom(name string) []string {
	return append([]string(nil), g.edges[name]...)
}

// TaskContainerNode returns the name of the task container — the sole node
// with no incoming "is the task" edge in the graph, per §3's invariant that
// exactly one such node exists.
func (g *Graph) TaskContainerNode() string {
	return g.taskContainer
}

// detectCycle runs classic three-colour DFS over the dependency relation.
func (g *Graph) detectCycle() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	color := make(map[string]int, len(g.nodes))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case done:
			return nil
		case visiting:
			return &InvalidGraphError{Reason: fmt.Sprintf("dependency cycle detected at container %q", name)}
		}
		color[name] = visiting
		for _, dep := range g.edges[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = done
		return nil
	}

	for _, name := range g.order {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
