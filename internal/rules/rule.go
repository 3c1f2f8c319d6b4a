// Package rules implements component C: the family of step rules. Each rule
// is a pure, side-effect-free, idempotent function over the accumulated
// event set, returning Ready(step) or NotReady, per spec §3/§4.C.
//
// Rules are evaluated entirely under the state machine's single mutex (spec
// §5), so the one-shot bookkeeping here (the `fired` flag) needs no locking
// of its own — the caller already holds the lock for the duration of
// Evaluate.
package rules

import "github.com/pexa-ARavichandran/batect/internal/taskevent"
import "github.com/pexa-ARavichandran/batect/internal/taskstep"

// Predicate inspects the event set and returns the step to run plus true
// when ready, or (nil, false) otherwise.
type Predicate func(events *taskevent.Set) (taskstep.Step, bool)

// Rule wraps a Predicate with the one-shot semantics spec §5 requires:
// "once a rule has returned Ready, it returns AlreadyFired thereafter for
// the remainder of the stage."
type Rule struct {
	key   string
	pred  Predicate
	fired bool
}

// New constructs a Rule. key must be unique within a stage's rule set — it
// is used only for diagnostics (Key) and by this package's own tests.
func New(key string, pred Predicate) *Rule {
	return &Rule{key: key, pred: pred}
}

// Key returns the rule's diagnostic identity.
func (r *Rule) Key() string {
	return r.key
}

// Evaluate runs the predicate unless this rule has already fired, in which
// case it always reports NotReady — this is what makes "AlreadyFired" not a
// distinct return value: once fired, a rule simply never becomes Ready
// again, which is indistinguishable from "not ready yet" to the stage.
func (r *Rule) Evaluate(events *taskevent.Set) (taskstep.Step, bool) {
	if r.fired {
		return nil, false
	}
	step, ready := r.pred(events)
	if ready {
		r.fired = true
	}
	return step, ready
}

// Fired reports whether this rule has already produced its step.
func (r *Rule) Fired() bool {
	return r.fired
}
