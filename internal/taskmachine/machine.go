// Package taskmachine implements component F: the single source of truth
// for a run. It accumulates events, advances the run→cleanup stage,
// pops the next executable step, and handles failure/cancellation, per
// spec §4.F.
package taskmachine

import (
	"fmt"
	"sync"

	"github.com/pexa-ARavichandran/batect/internal/cancelctx"
	"github.com/pexa-ARavichandran/batect/internal/ctxlog"
	"github.com/pexa-ARavichandran/batect/internal/planner"
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskgraph"
	"github.com/pexa-ARavichandran/batect/internal/taskstep"

	"context"
)

// Stage identifies which rule set the machine is currently advancing.
type Stage int

const (
	StageRun Stage = iota
	StageCleanup
)

// PopKind discriminates the three possible outcomes of PopNextStep, per
// spec §4.F.
type PopKind int

const (
	// PopStep means Step is populated and ready to dispatch.
	PopStep PopKind = iota
	// PopNoneReady means no rule is ready right now; the caller should wait
	// for the next PostEvent before asking again.
	PopNoneReady
	// PopNoneAndIdle means the run is over: cleanup has completed (or been
	// abandoned after a cleanup failure). The dispatcher's worker loop exits.
	PopNoneAndIdle
)

// ErrInternalInvariant is the category-3 fault from spec §7: no rule ready
// and no work in flight, outside cleanup-failure recovery. It is recovered
// by the caller (see dispatcher.popNextStep) and returned as an error, which
// cmd/cli turns into a non-zero process exit; it is never silently swallowed.
type ErrInternalInvariant struct {
	Stage Stage
}

func (e *ErrInternalInvariant) Error() string {
	return fmt.Sprintf("taskmachine: no rule ready and no work running in stage %v — deadlocked", e.Stage)
}

// ManualCleanupKind classifies why a manual-cleanup command list is being
// surfaced, matching the TaskStatus shape in spec §6.
type ManualCleanupKind int

const (
	ManualCleanupNone ManualCleanupKind = iota
	ManualCleanupRequiredDueToFailure
	ManualCleanupRequiredDueToSuccess
	ManualCleanupRequiredDueToCleanupFailure
)

// ManualCleanup is the manualCleanup field of TaskStatus.
type ManualCleanup struct {
	Kind     ManualCleanupKind
	Commands []string
}

// TaskStatus is the downstream-facing summary from spec §6.
type TaskStatus struct {
	ExitCode      *int
	Failed        bool
	ManualCleanup ManualCleanup
	AllEvents     []taskevent.Event
}

// Machine is the engine's single source of truth for one run. Every field
// it guards is only ever touched while mu is held — every exported method
// acquires it (spec §5).
type Machine struct {
	mu   sync.Mutex
	cond *sync.Cond

	ctx    context.Context
	cancel *cancelctx.Token

	events *taskevent.Set
	graph  *taskgraph.Graph
	policy planner.CleanupPolicy

	stage        Stage
	runStage     *planner.Stage
	cleanupStage *planner.Stage

	taskFailed          bool
	failedDuringCleanup  bool
	cleanupSuppressed   bool
}

// New constructs a Machine already initialized with the run stage's rule
// set, per the data-flow in spec §2 ("Graph → RunPlanner → StateMachine,
// initialized with run rules").
func New(ctx context.Context, g *taskgraph.Graph, policy planner.CleanupPolicy, cancel *cancelctx.Token) *Machine {
	m := &Machine{
		ctx:      ctx,
		cancel:   cancel,
		events:   taskevent.NewSet(),
		graph:    g,
		policy:   policy,
		stage:    StageRun,
		runStage: planner.BuildRunStage(g),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// PostEvent appends e to the event set, classifies failures per the current
// stage, and wakes every goroutine blocked in WaitForChange. An event equal
// to one already posted is not appended again.
func (m *Machine) PostEvent(e taskevent.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := ctxlog.FromContext(m.ctx)
	logger.Debug("event posted", "case", e.Case(), "container", e.Container())

	if m.events.Find(e.Case(), func(seen taskevent.Event) bool { return seen == e }) != nil {
		m.cond.Broadcast()
		return
	}

	m.events.Append(e)

	if failure, ok := e.(taskevent.Failure); ok {
		switch m.stage {
		case StageRun:
			if !m.taskFailed {
				logger.Warn("run stage failed", "case", e.Case(), "container", e.Container(), "message", failure.FailureMessage())
			}
			m.taskFailed = true
			if m.cancel != nil {
				m.cancel.Cancel(fmt.Errorf("%s: %s", e.Case(), failure.FailureMessage()))
			}
		case StageCleanup:
			logger.Error("cleanup stage failed", "case", e.Case(), "container", e.Container(), "message", failure.FailureMessage())
			m.failedDuringCleanup = true
		}
	}

	m.cond.Broadcast()
}

// PopNextStep is the dispatcher's sole way of asking "what should run next".
// stepsStillRunning must reflect whether any worker currently has a step in
// flight, so the machine can tell "nothing ready yet, try again later" apart
// from "nothing ready, and nothing ever will be — that's a bug."
func (m *Machine) PopNextStep(stepsStillRunning bool) (taskstep.Step, PopKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.popNextStepLocked(stepsStillRunning)
}

func (m *Machine) popNextStepLocked(stepsStillRunning bool) (taskstep.Step, PopKind) {
	if m.stage == StageCleanup && m.failedDuringCleanup {
		// Cleanup itself failed; abandon the rest and let the caller surface
		// the manual-cleanup list instead of grinding forever (spec §4.F).
		return nil, PopNoneAndIdle
	}

	if m.stage == StageRun && m.taskFailed {
		if stepsStillRunning {
			return nil, PopNoneReady // drain in-flight work before tearing down
		}
		m.transitionToCleanup()
		return m.popNextStepLocked(stepsStillRunning)
	}

	current := m.currentStage()

	if step, ready := current.NextReady(m.events); ready {
		return step, PopStep
	}

	if !current.Complete() {
		if !stepsStillRunning {
			panic(&ErrInternalInvariant{Stage: m.stage})
		}
		return nil, PopNoneReady
	}
	if stepsStillRunning {
		return nil, PopNoneReady // every rule has fired; wait for the last steps' events
	}

	switch m.stage {
	case StageRun:
		m.transitionToCleanup()
		return m.popNextStepLocked(stepsStillRunning)
	default:
		return nil, PopNoneAndIdle
	}
}

func (m *Machine) currentStage() *planner.Stage {
	if m.stage == StageCleanup {
		return m.cleanupStage
	}
	return m.runStage
}

func (m *Machine) transitionToCleanup() {
	logger := ctxlog.FromContext(m.ctx)
	logger.Info("transitioning to cleanup stage", "task_failed", m.taskFailed)

	m.stage = StageCleanup
	m.cleanupSuppressed = m.policy.Suppressed(m.taskFailed)
	m.cleanupStage = planner.BuildCleanupStage(m.events, m.graph, m.taskFailed, m.policy)
}

// WaitForChange blocks until PostEvent next runs, or ctx is done. The
// dispatcher calls this after receiving PopNoneReady (spec §4.G).
func (m *Machine) WaitForChange(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		m.cond.Wait()
		m.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
		<-done
	}
}

// Status computes the final TaskStatus once PopNextStep has returned
// PopNoneAndIdle. ExitCode comes from the task container's first
// RunningContainerExited event and is nil when there is none; the
// RunContainer rule fires at most once, so a run has at most one such event.
func (m *Machine) Status() TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := TaskStatus{
		Failed:    m.taskFailed,
		AllEvents: m.events.Snapshot(),
	}

	task := m.graph.TaskContainerNode()
	exits := m.events.AllOfCase(taskevent.CaseRunningContainerExited)
	for _, e := range exits {
		if e.Container() == task {
			code := e.(taskevent.RunningContainerExited).ExitCode
			status.ExitCode = &code
			break
		}
	}

	switch {
	case m.failedDuringCleanup:
		status.ManualCleanup = ManualCleanup{Kind: ManualCleanupRequiredDueToCleanupFailure, Commands: m.cleanupStage.ManualCleanup}
	case m.cleanupSuppressed:
		kind := ManualCleanupRequiredDueToSuccess
		if m.taskFailed {
			kind = ManualCleanupRequiredDueToFailure
		}
		status.ManualCleanup = ManualCleanup{Kind: kind, Commands: m.cleanupStage.ManualCleanup}
	default:
		status.ManualCleanup = ManualCleanup{Kind: ManualCleanupNone}
	}

	return status
}

// Events returns a snapshot of every event observed so far. Exposed for UI
// push-stream consumers (spec §6: "a push stream of events to UI/log sinks").
func (m *Machine) Events() []taskevent.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.Snapshot()
}
