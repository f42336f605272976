// Package phase implements the phase engine (spec.md §4.6): driving a
// single phase's transitions to fixpoint in transitions or entity mode,
// with grouped concurrency, retry-then-quarantine, and jump collection.
// Ported from original_source/dirorch/workflow.py's PhaseProcessor, with
// the group scheduler substituted for asyncio.gather.
package phase

import (
	"fmt"

	"github.com/kobuchi/dirorch/internal/application/group"
	"github.com/kobuchi/dirorch/internal/domain/workflow"
	"github.com/kobuchi/dirorch/internal/infra/envbuild"
	"github.com/kobuchi/dirorch/internal/infra/hook"
	"github.com/kobuchi/dirorch/internal/infra/log"
	"github.com/kobuchi/dirorch/internal/infra/store"
)

// JumpHandler runs targetPhase to fixpoint on behalf of a successful
// transition that carries a jump, then returns control to the phase
// engine. It is supplied by the workflow engine (C7), which is the only
// component that can recurse back into "run this other phase."
type JumpHandler func(targetPhase string) error

// Engine runs a single phase to fixpoint.
type Engine struct {
	store   *store.Store
	hooks   *hook.Runner
	baseEnv map[string]string
	logger  log.Logger
}

// New returns a phase Engine operating against store, running hooks
// through hooks, with baseEnv as the shared (non-entity-specific) hook
// environment (spec.md §4.3's DIR_* + user env, already composed).
func New(st *store.Store, hooks *hook.Runner, baseEnv map[string]string, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Engine{store: st, hooks: hooks, baseEnv: baseEnv, logger: logger}
}

// entityResult is the outcome of driving one entity through one
// transition attempt.
type entityResult struct {
	moved       bool
	quarantined bool
	jump        string
	err         error
}

// RunToFixpoint drives phase to fixpoint and returns the total number of
// moves performed (including quarantine moves, per spec.md §4.6 note 4).
// onJump is invoked, synchronously, once per jump discovered — in
// entity-start order for transitions mode, immediately for entity mode.
func (e *Engine) RunToFixpoint(phase workflow.Phase, onJump JumpHandler) (int, error) {
	e.logger.Info("phase %q: starting (mode=%s)", phase.Name, phase.Mode)

	var total int
	var err error
	if phase.Mode == workflow.ModeEntity {
		total, err = e.runEntityMode(phase, onJump)
	} else {
		total, err = e.runTransitionsMode(phase, onJump)
	}
	if err != nil {
		return total, err
	}

	if err := e.runCompletions(phase); err != nil {
		return total, err
	}

	e.logger.Info("phase %q: reached fixpoint; moves=%d", phase.Name, total)
	return total, nil
}

func (e *Engine) runTransitionsMode(phase workflow.Phase, onJump JumpHandler) (int, error) {
	total := 0
	for {
		movedThisPass := 0
		for _, t := range phase.Transitions {
			moved, err := e.applyTransition(phase, t, onJump)
			if err != nil {
				return total, err
			}
			movedThisPass += moved
			total += moved
		}
		if movedThisPass == 0 {
			return total, nil
		}
	}
}

// applyTransition snapshots t.Source, groups the entities, and runs the
// per-entity action (hook + move) one batch at a time, with grouped
// concurrency inside a batch. Jumps collected during a batch are replayed
// in start order as soon as that batch finishes: right after the entity's
// own action for an ungrouped entity, after the whole group for a
// concurrent group.
func (e *Engine) applyTransition(phase workflow.Phase, t workflow.Transition, onJump JumpHandler) (int, error) {
	names, err := e.store.ListEntities(phase.Name, t.Source)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, nil
	}

	moved := 0
	for _, batch := range group.Partition(names) {
		results := group.Collect(batch.Names, func(name string) entityResult {
			return e.processEntity(phase, t, name)
		})

		for _, r := range results {
			if r.err != nil {
				return moved, r.err
			}
			if !r.moved {
				continue
			}
			moved++
			if r.jump != "" {
				if err := onJump(r.jump); err != nil {
					return moved, err
				}
			}
		}
	}
	return moved, nil
}

// processEntity runs the transition's hook (if any) against one entity
// and moves it on success, or into _failed on exhaustion. A filesystem
// error is returned as fatal; hook exhaustion is not. If the entity has
// already left t.Source (e.g. a prior quarantine in the same pass), this
// is a no-op rather than a dead-path hook run, matching the original's
// "if not entity.exists()" guard.
func (e *Engine) processEntity(phase workflow.Phase, t workflow.Transition, name string) entityResult {
	exists, err := e.store.Exists(phase.Name, t.Source, name)
	if err != nil {
		return entityResult{err: err}
	}
	if !exists {
		return entityResult{}
	}

	entityPath := e.store.EntityPath(phase.Name, t.Source, name)
	context := fmt.Sprintf("transition hook %s:%s->%s entity=%s", phase.Name, t.Source, t.Destination, name)

	env := envbuild.WithEntity(e.baseEnv, entityPath)
	vars := toVars(env)

	outcome, err := e.hooks.Run(t.Hook, env, vars, context)
	if err != nil {
		return entityResult{err: err}
	}

	if outcome == hook.Success {
		if err := e.store.Move(phase.Name, t.Source, t.Destination, name); err != nil {
			return entityResult{err: err}
		}
		e.logger.Info("moved entity %q to %s/%s", name, phase.Name, t.Destination)
		return entityResult{moved: true, jump: t.Jump}
	}

	if err := e.store.Move(phase.Name, t.Source, workflow.FailedState, name); err != nil {
		return entityResult{err: err}
	}
	e.logger.Warn("transition exhausted for %q; moved to %s/%s", name, phase.Name, workflow.FailedState)
	// Counts as progress (spec.md §4.6 note 4) but the entity has left the
	// phase entirely — callers driving it through further transitions must
	// stop, not treat _failed as if it were t.Destination.
	return entityResult{moved: true, quarantined: true}
}

func (e *Engine) runEntityMode(phase workflow.Phase, onJump JumpHandler) (int, error) {
	total := 0
	for {
		movedThisPass := 0

		entity, state, err := e.nextEntity(phase)
		if err != nil {
			return total, err
		}
		for entity != "" {
			moved, err := e.flowEntityToRest(phase, state, entity, onJump)
			if err != nil {
				return total, err
			}
			movedThisPass += moved
			total += moved

			entity, state, err = e.nextEntity(phase)
			if err != nil {
				return total, err
			}
		}

		if movedThisPass == 0 {
			return total, nil
		}
	}
}

// nextEntity scans declared states in order and returns the first
// filename sitting in the first state that both is non-empty and has an
// applicable transition (spec.md §4.6 entity mode). States with no
// outgoing transition are skipped: an entity resting there is already at
// fixpoint and must never be re-selected, or flowEntityToRest's no-op
// would make it look "found" forever.
func (e *Engine) nextEntity(phase workflow.Phase) (name, state string, err error) {
	for _, st := range phase.States {
		if _, ok := findTransitionFrom(phase, st); !ok {
			continue
		}
		names, err := e.store.ListEntities(phase.Name, st)
		if err != nil {
			return "", "", err
		}
		if len(names) > 0 {
			return names[0], st, nil
		}
	}
	return "", "", nil
}

// flowEntityToRest repeatedly applies the first matching transition for
// the entity's current state until none applies ("at rest") or an
// exhausted hook quarantines it.
func (e *Engine) flowEntityToRest(phase workflow.Phase, state, name string, onJump JumpHandler) (int, error) {
	moved := 0
	for {
		t, ok := findTransitionFrom(phase, state)
		if !ok {
			return moved, nil
		}

		result := e.processEntity(phase, t, name)
		if result.err != nil {
			return moved, result.err
		}
		if !result.moved {
			return moved, nil
		}
		moved++

		// A quarantine move removes the entity from this phase's active
		// states entirely (spec.md §7: hook-exhausted ⇒ move to _failed,
		// log, continue the run) — there is nothing further to drive, and
		// no jump fires on a quarantine.
		if result.quarantined {
			return moved, nil
		}

		if result.jump != "" {
			if err := onJump(result.jump); err != nil {
				return moved, err
			}
		}
		state = t.Destination
	}
}

func findTransitionFrom(phase workflow.Phase, state string) (workflow.Transition, bool) {
	for _, t := range phase.Transitions {
		if t.Source == state {
			return t, true
		}
	}
	return workflow.Transition{}, false
}

func (e *Engine) runCompletions(phase workflow.Phase) error {
	for i, h := range phase.Completions {
		context := fmt.Sprintf("completion hook %s[%d]", phase.Name, i+1)
		e.logger.Info("running %s", context)
		outcome, err := e.hooks.Run(h, e.baseEnv, toVars(e.baseEnv), context)
		if err != nil {
			return err
		}
		if outcome != hook.Success {
			return fmt.Errorf("phase %q: %s failed after retries", phase.Name, context)
		}
	}
	return nil
}

func toVars(env map[string]string) map[string]string {
	// The template context is the hook environment unchanged: inherited
	// process variables, the user env, the DIR_* entries and, for
	// transition hooks only, INPUT_ENTITY. Process variables are not
	// filtered out of it.
	return env
}
