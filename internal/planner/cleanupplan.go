package planner

import (
	"fmt"

	"github.com/pexa-ARavichandran/batect/internal/rules"
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskgraph"
)

// CleanupPolicy selects when automatic teardown runs (spec §4.E).
type CleanupPolicy int

const (
	CleanupAlways CleanupPolicy = iota
	DontCleanupOnFailure
	DontCleanupOnSuccess
	NeverCleanup
)

// Suppressed reports whether, given whether the task failed, this policy
// means "skip the automatic cleanup rules and hand back manual commands
// instead."
func (p CleanupPolicy) Suppressed(taskFailed bool) bool {
	switch p {
	case NeverCleanup:
		return true
	case DontCleanupOnFailure:
		return taskFailed
	case DontCleanupOnSuccess:
		return !taskFailed
	default:
		return false
	}
}

// BuildCleanupStage is component E. It inspects the event set at transition
// time and derives teardown from whatever exists at that moment, per spec
// §4.E. When policy suppresses automatic cleanup, the returned Stage has an
// empty rule set and a populated manual-cleanup command list; otherwise the
// Stage carries the full teardown rule set, and the manual-cleanup list is
// still computed (the state machine attaches it to the task's status if
// cleanup itself later fails — spec §4.F).
func BuildCleanupStage(events *taskevent.Set, g *taskgraph.Graph, taskFailed bool, policy CleanupPolicy) *Stage {
	created := containersNeedingRemoval(events, g)
	networkReady := events.Has(taskevent.CaseTaskNetworkReady, "")

	manual := renderManualCleanup(events, created, networkReady)

	if policy.Suppressed(taskFailed) {
		return &Stage{ManualCleanup: manual}
	}

	stage := &Stage{ManualCleanup: manual}

	removalOrder := make([]string, 0, len(created))
	for _, name := range created {
		removalOrder = append(removalOrder, name)

		waitForStop := events.Has(taskevent.CaseContainerStarted, name) &&
			!events.Has(taskevent.CaseContainerStopped, name) &&
			!events.Has(taskevent.CaseRunningContainerExited, name)

		if waitForStop {
			stage.Rules = append(stage.Rules, rules.NewStopContainer(name))
		}
		stage.Rules = append(stage.Rules, rules.NewRemoveContainer(name, waitForStop))
	}

	if networkReady {
		network := networkOfSet(events)
		stage.Rules = append(stage.Rules, rules.NewDeleteTaskNetwork(network, removalOrder))
	}

	return stage
}

// containersNeedingRemoval returns, in graph discovery order, every
// container that has a ContainerCreated event but no ContainerRemoved event
// yet (spec §4.E).
func containersNeedingRemoval(events *taskevent.Set, g *taskgraph.Graph) []string {
	var out []string
	for _, name := range g.Nodes() {
		if events.Has(taskevent.CaseContainerCreated, name) && !events.Has(taskevent.CaseContainerRemoved, name) {
			out = append(out, name)
		}
	}
	return out
}

func networkOfSet(events *taskevent.Set) string {
	e := events.Find(taskevent.CaseTaskNetworkReady, nil)
	if e == nil {
		return ""
	}
	return e.(taskevent.TaskNetworkReady).Network
}

// renderManualCleanup produces the literal shell commands a user would run
// to remove the resources that still exist, per spec §4.E / SPEC_FULL §12.
func renderManualCleanup(events *taskevent.Set, created []string, networkReady bool) []string {
	var cmds []string
	for _, name := range created {
		cmds = append(cmds, fmt.Sprintf("docker stop %s", name), fmt.Sprintf("docker rm %s", name))
	}
	if networkReady {
		network := networkOfSet(events)
		cmds = append(cmds, fmt.Sprintf("docker network rm %s", network))
	}
	return cmds
}
