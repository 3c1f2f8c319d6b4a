// Package planner implements components D and E: the run-stage planner and
// the cleanup-stage planner, each of which produces a Stage — the rule set
// (plus, for cleanup stages, a manual-cleanup command list) the state
// machine advances through (spec §3 "Stage", §4.D, §4.E).
package planner

import (
	"github.com/pexa-ARavichandran/batect/internal/rules"
	"github.com/pexa-ARavichandran/batect/internal/taskevent"
	"github.com/pexa-ARavichandran/batect/internal/taskstep"
)

// Stage is a set of rules plus the manual cleanup command list that applies
// when this stage's automatic rule set is suppressed (spec §3).
type Stage struct {
	Rules         []*rules.Rule
	ManualCleanup []string
}

// NextReady evaluates every rule in insertion order and returns the first
// one that is Ready — spec §4.C's tie-break rule ("the first Ready wins in
// a given popNextStep call").
func (s *Stage) NextReady(events *taskevent.Set) (taskstep.Step, bool) {
	for _, r := range s.Rules {
		if step, ready := r.Evaluate(events); ready {
			return step, true
		}
	}
	return nil, false
}

// Complete reports whether every rule in the stage has produced its step.
// The state machine additionally requires no steps still running before it
// treats this as StageComplete (spec §4.F).
func (s *Stage) Complete() bool {
	for _, r := range s.Rules {
		if !r.Fired() {
			return false
		}
	}
	return true
}
