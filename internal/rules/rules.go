package rules

import (
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskstep"
)

// handleOf returns the handle recorded when container was created, or ""
// if it hasn't been created yet. Every step past CreateContainer needs this
// — the spec's event payloads only carry the handle at creation time, not
// on every subsequent event.
func handleOf(events *taskevent.Set, container string) string {
	e := events.Find(taskevent.CaseContainerCreated, func(e taskevent.Event) bool {
		return e.Container() == container
	})
	if e == nil {
		return ""
	}
	return e.(taskevent.ContainerCreated).Handle
}

func networkOf(events *taskevent.Set) string {
	e := events.Find(taskevent.CaseTaskNetworkReady, nil)
	if e == nil {
		return ""
	}
	return e.(taskevent.TaskNetworkReady).Network
}

func imageOf(events *taskevent.Set, container string) (string, bool) {
	if e := events.Find(taskevent.CaseImageBuilt, func(e taskevent.Event) bool { return e.Container() == container }); e != nil {
		return e.(taskevent.ImageBuilt).Image, true
	}
	if e := events.Find(taskevent.CaseImagePulled, func(e taskevent.Event) bool { return e.Container() == container }); e != nil {
		return e.(taskevent.ImagePulled).Image, true
	}
	return "", false
}

// NewPrepareTaskNetwork is the sole initial rule — always ready, once.
func NewPrepareTaskNetwork() *Rule {
	return New("PrepareTaskNetwork", func(events *taskevent.Set) (taskstep.Step, bool) {
		return taskstep.PrepareTaskNetwork{}, true
	})
}

// NewBuildImage fires once TaskNetworkReady has been observed. The run
// planner only constructs this rule for containers whose image source is
// "build" (spec §4.D), so the rule itself does not need to re-check the kind.
func NewBuildImage(container string) *Rule {
	return New("BuildImage:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		if !events.Has(taskevent.CaseTaskNetworkReady, "") {
			return nil, false
		}
		return taskstep.BuildImage{ContainerName: container}, true
	})
}

// NewPullImage mirrors NewBuildImage for "pull" containers.
func NewPullImage(container string) *Rule {
	return New("PullImage:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		if !events.Has(taskevent.CaseTaskNetworkReady, "") {
			return nil, false
		}
		return taskstep.PullImage{ContainerName: container}, true
	})
}

// NewCreateContainer fires once the image is ready (built or pulled) and the
// network exists.
func NewCreateContainer(container string) *Rule {
	return New("CreateContainer:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		image, ok := imageOf(events, container)
		if !ok || !events.Has(taskevent.CaseTaskNetworkReady, "") {
			return nil, false
		}
		return taskstep.CreateContainer{
			ContainerName: container,
			Image:         image,
			Network:       networkOf(events),
		}, true
	})
}

// NewStartContainer implements the project's load-ordering guarantee (spec
// §4.C "Dependency-readiness rule"): c starts once it has been created and,
// for every direct dependency d, d has become healthy if it declares a
// health check, or has merely started if it does not.
func NewStartContainer(container string, deps []string, depHasHealthCheck map[string]bool) *Rule {
	return New("StartContainer:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		handle := handleOf(events, container)
		if handle == "" {
			return nil, false
		}
		for _, dep := range deps {
			if depHasHealthCheck[dep] {
				if !events.Has(taskevent.CaseContainerBecameHealthy, dep) {
					return nil, false
				}
			} else if !events.Has(taskevent.CaseContainerStarted, dep) {
				return nil, false
			}
		}
		return taskstep.StartContainer{ContainerName: container, Handle: handle}, true
	})
}

// NewWaitForHealth fires once the container has started.
func NewWaitForHealth(container string) *Rule {
	return New("WaitForHealth:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		if !events.Has(taskevent.CaseContainerStarted, container) {
			return nil, false
		}
		return taskstep.WaitForHealth{ContainerName: container, Handle: handleOf(events, container)}, true
	})
}

// NewRunSetupCommands fires once the container is healthy. Whether there is
// anything to actually run is a runner concern (spec §4.C: "otherwise
// synthesizes immediate success") — the rule only governs timing.
func NewRunSetupCommands(container string) *Rule {
	return New("RunSetupCommands:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		if !events.Has(taskevent.CaseContainerBecameHealthy, container) {
			return nil, false
		}
		return taskstep.RunSetupCommands{ContainerName: container, Handle: handleOf(events, container)}, true
	})
}

// NewRunContainer fires only for the task container, once it is healthy and
// its setup commands have completed.
func NewRunContainer(taskContainer string) *Rule {
	return New("RunContainer:"+taskContainer, func(events *taskevent.Set) (taskstep.Step, bool) {
		if !events.Has(taskevent.CaseContainerBecameHealthy, taskContainer) {
			return nil, false
		}
		if !events.Has(taskevent.CaseSetupCommandsCompleted, taskContainer) {
			return nil, false
		}
		return taskstep.RunContainer{ContainerName: taskContainer, Handle: handleOf(events, taskContainer)}, true
	})
}

// NewStopContainer is always ready the moment it is constructed — the
// cleanup planner (component E) only constructs one for containers it has
// already determined were started and have not yet exited on their own
// (spec §4.E).
func NewStopContainer(container string) *Rule {
	return New("StopContainer:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		return taskstep.StopContainer{ContainerName: container, Handle: handleOf(events, container)}, true
	})
}

// NewRemoveContainer fires immediately if waitForStop is false (the
// container was never started, or had already exited), or once
// ContainerStopped(c) has been observed otherwise.
func NewRemoveContainer(container string, waitForStop bool) *Rule {
	return New("RemoveContainer:"+container, func(events *taskevent.Set) (taskstep.Step, bool) {
		if waitForStop && !events.Has(taskevent.CaseContainerStopped, container) {
			return nil, false
		}
		return taskstep.RemoveContainer{ContainerName: container, Handle: handleOf(events, container)}, true
	})
}

// NewDeleteTaskNetwork fires once every container named in created has a
// corresponding ContainerRemoved event (spec §4.C/§4.E).
func NewDeleteTaskNetwork(network string, created []string) *Rule {
	return New("DeleteTaskNetwork", func(events *taskevent.Set) (taskstep.Step, bool) {
		for _, c := range created {
			if !events.Has(taskevent.CaseContainerRemoved, c) {
				return nil, false
			}
		}
		return taskstep.DeleteTaskNetwork{Network: network}, true
	})
}
