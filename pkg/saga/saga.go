package saga

import (
	"context"
	"fmt"
)

// Step is a single step in a saga. Compensate names the one action that
// reverses the partially-completed work when this step's Execute fails
// (e.g. a failed inventory commit releases the payment hold). Steps that
// leave nothing to undo carry a nil Compensate.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga runs steps strictly in order. On failure it runs exactly the failing
// step's designated compensation, never a reverse-order cascade: each step
// declares the single action that restores symmetry if it fails.
type Saga struct {
	name  string
	steps []Step
}

// New creates a new saga with the given name.
func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep adds a step to the saga.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Result reports how a saga execution ended.
type Result struct {
	// FailedStep is the index of the step that failed, or -1 on success.
	FailedStep int
	// FailedStepName is the name of the failed step, or "" on success.
	FailedStepName string
	// Err is the step's execution error, or nil on success.
	Err error
	// CompensationErr is non-nil when the designated compensation itself
	// failed after exhausting its retries. The saga is then asymmetric and
	// needs manual reconciliation.
	CompensationErr error

	// compensationRan records that the failing step had a designated
	// compensation and it was invoked. Distinguishes "nothing to undo"
	// from "undo attempted".
	compensationRan bool
}

// Compensated reports whether a compensation ran and succeeded. A failing
// step with no designated compensation left nothing to undo and reports
// false.
func (r Result) Compensated() bool {
	return r.compensationRan && r.CompensationErr == nil
}

// Execute runs all steps sequentially. If a step fails, its designated
// compensation is run (if any) and the saga stops.
func (s *Saga) Execute(ctx context.Context) Result {
	for i, step := range s.steps {
		err := step.Execute(ctx)
		if err == nil {
			continue
		}

		res := Result{
			FailedStep:     i,
			FailedStepName: step.Name,
			Err:            fmt.Errorf("saga %s: step %q failed: %w", s.name, step.Name, err),
		}
		if step.Compensate != nil {
			res.compensationRan = true
			if compErr := step.Compensate(ctx); compErr != nil {
				res.CompensationErr = fmt.Errorf("saga %s: compensate step %q: %w", s.name, step.Name, compErr)
			}
		}
		return res
	}

	return Result{FailedStep: -1}
}
