package rules

import (
	"testing"

	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskstep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_KeyAndOneShot(t *testing.T) {
	calls := 0
	r := New("my-key", func(events *taskevent.Set) (taskstep.Step, bool) {
		calls++
		return taskstep.PrepareTaskNetwork{}, true
	})

	assert.Equal(t, "my-key", r.Key())
	assert.False(t, r.Fired())

	_, ready := r.Evaluate(taskevent.NewSet())
	require.True(t, ready)
	assert.True(t, r.Fired())
	assert.Equal(t, 1, calls)

	_, ready = r.Evaluate(taskevent.NewSet())
	assert.False(t, ready, "a fired rule must never re-run its predicate")
	assert.Equal(t, 1, calls, "predicate must not be called again once fired")
}

func TestNewPrepareTaskNetwork_AlwaysReady(t *testing.T) {
	r := NewPrepareTaskNetwork()
	events := taskevent.NewSet()

	step, ready := r.Evaluate(events)
	require.True(t, ready)
	assert.Equal(t, taskstep.CasePrepareTaskNetwork, step.Case())

	_, ready = r.Evaluate(events)
	assert.False(t, ready, "rule must be one-shot")
}

func TestNewBuildImage_WaitsForNetwork(t *testing.T) {
	r := NewBuildImage("app")
	events := taskevent.NewSet()

	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.TaskNetworkReady{Network: "net-1"})
	step, ready := r.Evaluate(events)
	require.True(t, ready)
	assert.Equal(t, "app", step.Container())
	assert.Equal(t, taskstep.CaseBuildImage, step.Case())
}

func TestNewPullImage_WaitsForNetwork(t *testing.T) {
	r := NewPullImage("app")
	events := taskevent.NewSet()

	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.TaskNetworkReady{Network: "net-1"})
	step, ready := r.Evaluate(events)
	require.True(t, ready)
	assert.Equal(t, taskstep.CasePullImage, step.Case())
}

func TestNewCreateContainer_WaitsForImageAndNetwork(t *testing.T) {
	r := NewCreateContainer("app")
	events := taskevent.NewSet()

	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.TaskNetworkReady{Network: "net-1"})
	_, ready = r.Evaluate(events)
	assert.False(t, ready, "network alone is not enough")

	events.Append(taskevent.ImageBuilt{ContainerName: "app", Image: "app:latest"})
	step, ready := r.Evaluate(events)
	require.True(t, ready)
	created := step.(taskstep.CreateContainer)
	assert.Equal(t, "app:latest", created.Image)
	assert.Equal(t, "net-1", created.Network)
}

func TestNewStartContainer_WaitsForHealthyDependency(t *testing.T) {
	events := taskevent.NewSet()
	events.Append(taskevent.ContainerCreated{ContainerName: "app", Handle: "h-app"})

	r := NewStartContainer("app", []string{"db"}, map[string]bool{"db": true})

	_, ready := r.Evaluate(events)
	assert.False(t, ready, "must wait for dep's health check")

	events.Append(taskevent.ContainerStarted{ContainerName: "db"})
	_, ready = r.Evaluate(events)
	assert.False(t, ready, "started is not enough when dep declares a health check")

	events.Append(taskevent.ContainerBecameHealthy{ContainerName: "db"})
	step, ready := r.Evaluate(events)
	require.True(t, ready)
	assert.Equal(t, "h-app", step.(taskstep.StartContainer).Handle)
}

func TestNewStartContainer_NoHealthCheckDependencyOnlyNeedsStarted(t *testing.T) {
	events := taskevent.NewSet()
	events.Append(taskevent.ContainerCreated{ContainerName: "app", Handle: "h-app"})

	r := NewStartContainer("app", []string{"db"}, map[string]bool{"db": false})

	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.ContainerStarted{ContainerName: "db"})
	_, ready = r.Evaluate(events)
	assert.True(t, ready)
}

func TestNewWaitForHealth_WaitsForStart(t *testing.T) {
	r := NewWaitForHealth("app")
	events := taskevent.NewSet()

	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.ContainerStarted{ContainerName: "app"})
	_, ready = r.Evaluate(events)
	assert.True(t, ready)
}

func TestNewRunSetupCommands_WaitsForHealthy(t *testing.T) {
	r := NewRunSetupCommands("app")
	events := taskevent.NewSet()

	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.ContainerBecameHealthy{ContainerName: "app"})
	_, ready = r.Evaluate(events)
	assert.True(t, ready)
}

func TestNewRunContainer_WaitsForHealthyAndSetupComplete(t *testing.T) {
	r := NewRunContainer("app")
	events := taskevent.NewSet()
	events.Append(taskevent.ContainerBecameHealthy{ContainerName: "app"})

	_, ready := r.Evaluate(events)
	assert.False(t, ready, "must also wait for setup commands")

	events.Append(taskevent.SetupCommandsCompleted{ContainerName: "app"})
	_, ready = r.Evaluate(events)
	assert.True(t, ready)
}

func TestNewStopContainer_AlwaysReady(t *testing.T) {
	r := NewStopContainer("app")
	_, ready := r.Evaluate(taskevent.NewSet())
	assert.True(t, ready)
}

func TestNewRemoveContainer_WaitsForStopUnlessSkipped(t *testing.T) {
	events := taskevent.NewSet()
	events.Append(taskevent.ContainerCreated{ContainerName: "app", Handle: "h"})

	r := NewRemoveContainer("app", true)
	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.ContainerStopped{ContainerName: "app"})
	_, ready = r.Evaluate(events)
	assert.True(t, ready)

	r2 := NewRemoveContainer("other", false)
	_, ready = r2.Evaluate(events)
	assert.True(t, ready, "waitForStop=false must fire immediately")
}

func TestNewDeleteTaskNetwork_WaitsForAllRemovals(t *testing.T) {
	events := taskevent.NewSet()
	r := NewDeleteTaskNetwork("net-1", []string{"app", "db"})

	_, ready := r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.ContainerRemoved{ContainerName: "app"})
	_, ready = r.Evaluate(events)
	assert.False(t, ready)

	events.Append(taskevent.ContainerRemoved{ContainerName: "db"})
	step, ready := r.Evaluate(events)
	require.True(t, ready)
	assert.Equal(t, "net-1", step.(taskstep.DeleteTaskNetwork).Network)
}
