package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
)

func proj(task string, containers map[string][]string) *taskconfig.Project {
	cs := make(map[string]*taskconfig.Container, len(containers))
	for name, deps := range containers {
		cs[name] = &taskconfig.Container{Name: name, DependsOn: deps}
	}
	return &taskconfig.Project{TaskName: task, Containers: cs}
}

func TestBuild_Solo(t *testing.T) {
	g, err := Build(proj("task", map[string][]string{
		"task": nil,
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"task"}, g.Nodes())
	assert.Equal(t, "task", g.TaskContainerNode())
	assert.Empty(t, g.EdgesFrom("task"))
}

func TestBuild_TransitiveClosure(t *testing.T) {
	g, err := Build(proj("task", map[string][]string{
		"task": {"db"},
		"db":   {"volume-seeder"},
		"volume-seeder": nil,
		"unrelated":     nil, // must NOT be pulled in
	}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task", "db", "volume-seeder"}, g.Nodes())
	assert.Equal(t, []string{"db"}, g.EdgesFrom("task"))
}

func TestBuild_MissingTaskContainer(t *testing.T) {
	_, err := Build(&taskconfig.Project{TaskName: "task", Containers: map[string]*taskconfig.Container{}})
	require.Error(t, err)
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
}

func TestBuild_MissingDependency(t *testing.T) {
	_, err := Build(proj("task", map[string][]string{
		"task": {"ghost"},
	}))
	require.Error(t, err)
}

func TestBuild_Cycle(t *testing.T) {
	_, err := Build(proj("task", map[string][]string{
		"task": {"a"},
		"a":    {"b"},
		"b":    {"a"},
	}))
	require.Error(t, err)
}
