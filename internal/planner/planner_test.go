package planner

import (
	"testing"

	"github.com/pexa-ARavichandran/batect/internal/taskconfig"
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoContainerProject(dbHasHealthCheck bool) *taskconfig.Project {
	db := &taskconfig.Container{
		Name:  "db",
		Image: taskconfig.ImageSource{Kind: taskconfig.ImageSourcePull, PullReference: "postgres:16"},
	}
	if dbHasHealthCheck {
		db.HealthCheck = &taskconfig.HealthCheck{Command: []string{"pg_isready"}}
	}

	app := &taskconfig.Container{
		Name:      "app",
		Image:     taskconfig.ImageSource{Kind: taskconfig.ImageSourceBuild, BuildDirectory: "."},
		DependsOn: []string{"db"},
	}

	return &taskconfig.Project{
		Name:     "proj",
		TaskName: "app",
		Containers: map[string]*taskconfig.Container{
			"app": app,
			"db":  db,
		},
	}
}

func TestBuildRunStage_ProducesRulesForEveryNodeAndCase(t *testing.T) {
	g, err := taskgraph.Build(twoContainerProject(true))
	require.NoError(t, err)

	stage := BuildRunStage(g)

	// PrepareTaskNetwork + (BuildImage|PullImage, CreateContainer, StartContainer,
	// WaitForHealth, RunSetupCommands) per node + RunContainer for the task only.
	assert.Equal(t, 1+5*2+1, len(stage.Rules))
	assert.False(t, stage.Complete())
}

func TestBuildRunStage_ReleasesFirstStepsInRuleAndDependencyOrder(t *testing.T) {
	g, err := taskgraph.Build(twoContainerProject(true))
	require.NoError(t, err)

	stage := BuildRunStage(g)
	events := taskevent.NewSet()

	step, ready := stage.NextReady(events)
	require.True(t, ready)
	assert.Equal(t, "PrepareTaskNetwork", string(step.Case()))
	events.Append(taskevent.TaskNetworkReady{Network: "net-1"})

	// app is discovered before db (app is the task, the BFS root), so ties
	// between ready rules resolve to app first.
	step, ready = stage.NextReady(events)
	require.True(t, ready)
	assert.Equal(t, "app", step.Container())
	assert.Equal(t, "BuildImage", string(step.Case()))
	events.Append(taskevent.ImageBuilt{ContainerName: "app", Image: "app:latest"})

	step, ready = stage.NextReady(events)
	require.True(t, ready)
	assert.Equal(t, "app", step.Container())
	assert.Equal(t, "CreateContainer", string(step.Case()))
	events.Append(taskevent.ContainerCreated{ContainerName: "app", Handle: "h-app"})

	// app cannot start until db has become healthy, so the next ready rule
	// skips ahead to db's pull.
	step, ready = stage.NextReady(events)
	require.True(t, ready)
	assert.Equal(t, "db", step.Container())
	assert.Equal(t, "PullImage", string(step.Case()))
	events.Append(taskevent.ImagePulled{ContainerName: "db", Image: "postgres:16"})

	assert.False(t, stage.Complete())
}

func TestBuildCleanupStage_SuppressedWhenPolicySaysSo(t *testing.T) {
	g, err := taskgraph.Build(twoContainerProject(false))
	require.NoError(t, err)

	events := taskevent.NewSet()
	events.Append(taskevent.TaskNetworkReady{Network: "net-1"})
	events.Append(taskevent.ContainerCreated{ContainerName: "app", Handle: "h-app"})
	events.Append(taskevent.ContainerCreated{ContainerName: "db", Handle: "h-db"})

	stage := BuildCleanupStage(events, g, false, NeverCleanup)
	assert.Empty(t, stage.Rules)
	assert.NotEmpty(t, stage.ManualCleanup, "manual cleanup commands must still be computed")
}

func TestBuildCleanupStage_BuildsStopAndRemoveForRunningContainers(t *testing.T) {
	g, err := taskgraph.Build(twoContainerProject(false))
	require.NoError(t, err)

	events := taskevent.NewSet()
	events.Append(taskevent.TaskNetworkReady{Network: "net-1"})
	events.Append(taskevent.ContainerCreated{ContainerName: "app", Handle: "h-app"})
	events.Append(taskevent.ContainerCreated{ContainerName: "db", Handle: "h-db"})
	events.Append(taskevent.ContainerStarted{ContainerName: "app"})
	events.Append(taskevent.ContainerStarted{ContainerName: "db"})

	stage := BuildCleanupStage(events, g, false, CleanupAlways)
	require.NotEmpty(t, stage.Rules)

	for !stage.Complete() {
		step, ready := stage.NextReady(events)
		require.True(t, ready, "cleanup stage must make forward progress given the right events")
		switch step.Case() {
		case "StopContainer":
			events.Append(taskevent.ContainerStopped{ContainerName: step.Container()})
		case "RemoveContainer":
			events.Append(taskevent.ContainerRemoved{ContainerName: step.Container()})
		case "DeleteTaskNetwork":
			events.Append(taskevent.TaskNetworkRemoved{})
		}
	}
}

func TestBuildCleanupStage_SkipsStopForAlreadyStoppedContainer(t *testing.T) {
	g, err := taskgraph.Build(twoContainerProject(false))
	require.NoError(t, err)

	events := taskevent.NewSet()
	events.Append(taskevent.ContainerCreated{ContainerName: "db", Handle: "h-db"})
	events.Append(taskevent.ContainerStarted{ContainerName: "db"})
	events.Append(taskevent.ContainerStopped{ContainerName: "db"})

	stage := BuildCleanupStage(events, g, false, CleanupAlways)

	step, ready := stage.NextReady(events)
	require.True(t, ready)
	assert.Equal(t, "RemoveContainer", string(step.Case()), "no stop needed, should go straight to remove")
}

func TestCleanupPolicy_Suppressed(t *testing.T) {
	assert.True(t, NeverCleanup.Suppressed(false))
	assert.True(t, NeverCleanup.Suppressed(true))

	assert.True(t, DontCleanupOnFailure.Suppressed(true))
	assert.False(t, DontCleanupOnFailure.Suppressed(false))

	assert.True(t, DontCleanupOnSuccess.Suppressed(false))
	assert.False(t, DontCleanupOnSuccess.Suppressed(true))

	assert.False(t, CleanupAlways.Suppressed(true))
	assert.False(t, CleanupAlways.Suppressed(false))
}
