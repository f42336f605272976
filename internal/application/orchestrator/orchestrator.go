// Package orchestrator implements the workflow engine (spec.md §4.7): the
// top-level driver that runs the init hook once, walks phases in
// declaration order, persists the current-phase cursor, recurses through
// jumps, and applies the wraparound termination rule. Grounded on
// original_source/dirorch/app.py's WorkflowRunner and workflow.py's
// top-level run loop, with cursor persistence from the teacher's
// internal/app/state load/save pair.
package orchestrator

import (
	"fmt"

	"github.com/kobuchi/dirorch/internal/application/phase"
	"github.com/kobuchi/dirorch/internal/domain/workflow"
	"github.com/kobuchi/dirorch/internal/infra/hook"
	"github.com/kobuchi/dirorch/internal/infra/log"
	"github.com/kobuchi/dirorch/internal/infra/runtimestate"
)

// maxJumpDepth is the jump recursion depth past which every further
// nested phase run logs a warning, since a run that jumps this deep
// without settling is almost certainly a misconfigured cycle. Recursion
// is not stopped at this depth; jump cycles are not rejected
// (DESIGN.md's Open Question decision).
const maxJumpDepth = 64

// Engine runs a whole workflow configuration to completion.
type Engine struct {
	cfg    workflow.Config
	phases *phase.Engine
	hooks  *hook.Runner
	state  *runtimestate.Store
	logger log.Logger

	baseEnv map[string]string
}

// New returns a workflow Engine for cfg, running phase bodies through
// phases, hooks through hooks, and persisting its cursor through state.
func New(cfg workflow.Config, phases *phase.Engine, hooks *hook.Runner, state *runtimestate.Store, baseEnv map[string]string, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Engine{cfg: cfg, phases: phases, hooks: hooks, state: state, baseEnv: baseEnv, logger: logger}
}

// Run drives the configured workflow to termination (spec.md §4.7): loads
// the cursor, runs the init hook only if that cursor was absent (init
// never re-runs on resume), then repeatedly walks phases from the
// cursor, wrapping around the phase list, until the first phase is
// re-entered after a wrap and produces zero moves on that pass.
func (e *Engine) Run() error {
	names := e.cfg.PhaseNames()
	if len(names) == 0 {
		return fmt.Errorf("orchestrator: workflow declares no phases")
	}

	cursor, err := e.state.Load()
	if err != nil {
		return err
	}

	if cursor == "" && e.cfg.HasInit() {
		if err := e.runInit(); err != nil {
			return err
		}
	}

	startIdx := indexOf(names, cursor)
	if startIdx < 0 {
		startIdx = 0
	}

	// wrapped becomes true as soon as the index that will be visited next
	// wraps around to 0 — i.e. the moment the main loop finishes the last
	// phase in the list, not the moment it next lands on phase 0. On a
	// mid-list resume this means the very next visit to phase 0 already
	// counts as "after a wrap," so a resumed run that finds phase 0 idle
	// terminates on that single visit rather than requiring an extra,
	// redundant lap (spec.md §4.7 step 5).
	idx := startIdx
	wrapped := false
	for {
		name := names[idx]
		if err := e.state.Save(name); err != nil {
			return err
		}

		moves, err := e.runPhaseWithJumps(name, 0)
		if err != nil {
			return err
		}

		if idx == 0 && wrapped && moves == 0 {
			e.logger.Info("workflow: phase %q idle on wrap; stopping", name)
			return nil
		}

		idx = (idx + 1) % len(names)
		if idx == 0 {
			wrapped = true
		}
	}
}

// runPhaseWithJumps runs name to fixpoint, firing any jumps it discovers
// by recursing into the jump target (logging a warning, without
// stopping, once deeper than maxJumpDepth), and
// returns the total number of entity moves across name and everything it
// transitively jumped into.
func (e *Engine) runPhaseWithJumps(name string, depth int) (int, error) {
	p, ok := e.cfg.PhaseByName(name)
	if !ok {
		return 0, fmt.Errorf("orchestrator: unknown phase %q", name)
	}

	if depth > maxJumpDepth {
		e.logger.Warn("workflow: jump depth exceeded %d at phase %q; likely a jump cycle", maxJumpDepth, name)
	}

	total := 0
	onJump := func(target string) error {
		if target == name {
			// Self-jump is a no-op: the phase just finished running
			// itself to fixpoint, so jumping into itself again would
			// either do nothing or recurse forever on a misconfigured
			// cycle. Matches the original's guard.
			e.logger.Warn("phase %q: jump to self ignored", name)
			return nil
		}
		moves, err := e.runPhaseWithJumps(target, depth+1)
		total += moves
		return err
	}

	moves, err := e.phases.RunToFixpoint(p, onJump)
	total += moves
	return total, err
}

func (e *Engine) runInit() error {
	e.logger.Info("workflow: running init hook")
	outcome, err := e.hooks.Run(e.cfg.Init, e.baseEnv, toVars(e.baseEnv), "init hook")
	if err != nil {
		return err
	}
	if outcome != hook.Success {
		return fmt.Errorf("orchestrator: init hook failed after retries")
	}
	return nil
}

func toVars(env map[string]string) map[string]string {
	return env
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
