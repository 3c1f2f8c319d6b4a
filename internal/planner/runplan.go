package planner

import (
	"github.com/pexa-ARavichandran/batect/internal/rules"
	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
	"github.com/pexa-ARavichandran/batect/internal/taskgraph"
)

// BuildRunStage is component D. It produces the rule set for the run phase
// from the graph: the singleton PrepareTaskNetwork rule; for every node,
// exactly one of BuildImage/PullImage plus CreateContainer, StartContainer,
// WaitForHealth, RunSetupCommands; and, for the task container only,
// RunContainer. Ordering is expressed entirely through rule predicates, not
// list position (spec §4.D) — the list order below only matters for the
// tie-break rule in Stage.NextReady.
func BuildRunStage(g *taskgraph.Graph) *Stage {
	stage := &Stage{}
	stage.Rules = append(stage.Rules, rules.NewPrepareTaskNetwork())

	healthChecked := make(map[string]bool)
	for _, name := range g.Nodes() {
		c, _ := g.Container(name)
		healthChecked[name] = c.HasHealthCheck()
	}

	task := g.TaskContainerNode()

	for _, name := range g.Nodes() {
		c, _ := g.Container(name)

		if c.Image.Kind == taskconfig.ImageSourceBuild {
			stage.Rules = append(stage.Rules, rules.NewBuildImage(name))
		} else {
			stage.Rules = append(stage.Rules, rules.NewPullImage(name))
		}

		stage.Rules = append(stage.Rules, rules.NewCreateContainer(name))
		stage.Rules = append(stage.Rules, rules.NewStartContainer(name, g.EdgesFrom(name), healthChecked))
		stage.Rules = append(stage.Rules, rules.NewWaitForHealth(name))
		stage.Rules = append(stage.Rules, rules.NewRunSetupCommands(name))

		if name == task {
			stage.Rules = append(stage.Rules, rules.NewRunContainer(name))
		}
	}

	return stage
}
