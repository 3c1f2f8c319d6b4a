// Package dispatcher implements component G: the worker pool that pulls
// steps from the taskmachine and executes them concurrently, posting the
// resulting event back. The pull loop and its worker goroutines follow the
// shape of the teacher's dag.Executor.worker loop (internal/dag/executor.go)
// — a fixed-size pool draining a work queue and decrementing an in-flight
// counter on completion — adapted from a push-based ready channel to a
// pull-based PopNextStep/WaitForChange protocol, since the taskmachine
// (not a dependency-count channel) is the single source of readiness here.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pexa-ARavichandran/batect/internal/ctxlog"
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskmachine"
	"github.com/pexa-ARavichandran/batect/internal/taskstep"
)

// StepExecutor runs a single step to completion and returns the event that
// resulted, never an error — daemon failures are themselves translated
// into failure events by the runners package, per spec §4.A/§7.
type StepExecutor interface {
	Execute(ctx context.Context, step taskstep.Step) taskevent.Event
}

// Dispatcher owns the worker pool for one run.
type Dispatcher struct {
	machine  *taskmachine.Machine
	executor StepExecutor
	workers  int
}

// New constructs a Dispatcher. workers is the run's concurrency cap —
// cli.Parse defaults it to runtime.NumCPU() (SPEC_FULL §12) when --workers
// is unset or zero; a value below 1 is raised to 1 here.
func New(machine *taskmachine.Machine, executor StepExecutor, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{machine: machine, executor: executor, workers: workers}
}

// Run drives the pull loop until the machine reports PopNoneAndIdle, then
// returns the final TaskStatus. Two kinds of fault can cut a run short
// before that point: popNextStep panicking with ErrInternalInvariant
// (category 3 from spec §7, a true engine bug), or a worker goroutine
// panicking on a fault the closed event sum has no case for (e.g. a
// network-lifecycle daemon error, spec §4.A). Both are recovered at this
// boundary and returned as an error instead of crashing the process.
func (d *Dispatcher) Run(ctx context.Context) (taskmachine.TaskStatus, error) {
	logger := ctxlog.FromContext(ctx)

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.workers)
	var running int64
	fatalCh := make(chan error, 1)

	reportFatal := func(err error) {
		select {
		case fatalCh <- err:
		default:
		}
	}

	for {
		select {
		case ferr := <-fatalCh:
			wg.Wait()
			return taskmachine.TaskStatus{}, ferr
		default:
		}

		step, kind, err := d.popNextStep(atomic.LoadInt64(&running) > 0)
		if err != nil {
			wg.Wait()
			return taskmachine.TaskStatus{}, err
		}

		switch kind {
		case taskmachine.PopStep:
			atomic.AddInt64(&running, 1)
			sem <- struct{}{}
			wg.Add(1)
			go func(step taskstep.Step) {
				defer wg.Done()
				defer func() { <-sem }()
				defer atomic.AddInt64(&running, -1)
				defer func() {
					if r := recover(); r != nil {
						reportFatal(fmt.Errorf("dispatcher: fatal step failure executing %s(%s): %v", step.Case(), step.Container(), r))
					}
				}()

				logger.Debug("dispatching step", "case", step.Case(), "container", step.Container())
				event := d.executor.Execute(ctx, step)
				d.machine.PostEvent(event)
			}(step)

		case taskmachine.PopNoneReady:
			waitDone := make(chan struct{})
			go func() {
				d.machine.WaitForChange(ctx)
				close(waitDone)
			}()
			select {
			case <-waitDone:
			case ferr := <-fatalCh:
				wg.Wait()
				return taskmachine.TaskStatus{}, ferr
			}

		case taskmachine.PopNoneAndIdle:
			wg.Wait()
			select {
			case ferr := <-fatalCh:
				return taskmachine.TaskStatus{}, ferr
			default:
			}
			return d.machine.Status(), nil
		}
	}
}

// popNextStep recovers the ErrInternalInvariant panic PopNextStep raises
// when the machine deadlocks, converting it into a plain error.
func (d *Dispatcher) popNextStep(stepsStillRunning bool) (step taskstep.Step, kind taskmachine.PopKind, err error) {
	defer func() {
		if r := recover(); r != nil {
			if invariantErr, ok := r.(*taskmachine.ErrInternalInvariant); ok {
				err = fmt.Errorf("dispatcher: %w", invariantErr)
				return
			}
			panic(r)
		}
	}()
	step, kind = d.machine.PopNextStep(stepsStillRunning)
	return step, kind, nil
}
