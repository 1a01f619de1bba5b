package workflow

import "fmt"

// Validate checks the structural invariants of a canonical workflow: the
// start step exists, every edge target is END or an existing step, and loop
// bodies contain no suspending actions (suspensions inside a loop cannot be
// resumed because the loop context lives only in memory).
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if w.StartStepID == "" {
		return fmt.Errorf("workflow %q has no start step", w.Name)
	}
	if err := w.checkTarget("start", w.StartStepID); err != nil {
		return err
	}

	for id, step := range w.Steps {
		if step.StepID != id {
			return fmt.Errorf("step map key %q does not match step_id %q", id, step.StepID)
		}
		if !step.ActionType.Valid() {
			return fmt.Errorf("step %s: unknown action type %q", id, step.ActionType)
		}
		for _, target := range step.Targets() {
			if err := w.checkTarget(id, target); err != nil {
				return err
			}
		}
		if step.ActionType == ActionStartLoop {
			if step.LoopBodyStartStepID == "" {
				return fmt.Errorf("step %s: start_loop requires loop_body_start_step_id", id)
			}
			if err := w.checkTarget(id, step.LoopBodyStartStepID); err != nil {
				return err
			}
			if err := w.checkLoopBody(step); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Workflow) checkTarget(from, target string) error {
	if target == End {
		return nil
	}
	if _, ok := w.Steps[target]; !ok {
		return fmt.Errorf("step %s routes to unknown step %q", from, target)
	}
	return nil
}

// checkLoopBody walks the body reachable from the loop entry and rejects
// suspending actions. Traversal stops at end_loop steps, which hand control
// back to the owning start_loop.
func (w *Workflow) checkLoopBody(loop *Step) error {
	seen := make(map[string]bool)
	frontier := []string{loop.LoopBodyStartStepID}

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if id == End || seen[id] {
			continue
		}
		seen[id] = true

		step, ok := w.Steps[id]
		if !ok {
			continue
		}
		if step.ActionType.Suspending() {
			return fmt.Errorf("step %s: %s cannot appear inside the loop body of %s",
				id, step.ActionType, loop.StepID)
		}
		if step.ActionType == ActionEndLoop {
			continue
		}
		frontier = append(frontier, step.Targets()...)
		if step.ActionType == ActionStartLoop && step.LoopBodyStartStepID != "" {
			frontier = append(frontier, step.LoopBodyStartStepID)
		}
	}
	return nil
}
