// Package workflow holds the pure data model for a dirorch workflow
// configuration: phases, states, transitions, and hooks. Nothing in this
// package performs I/O.
package workflow

// FailedState is the reserved quarantine state every phase carries
// implicitly. It is never part of a phase's declared states.
const FailedState = "_failed"

// PhaseMode selects how a phase drives its entities to fixpoint.
type PhaseMode int

const (
	// ModeTransitions applies every transition rule, in declared order,
	// to whatever entities currently sit in its source state. Entities
	// within a rule's source state may run concurrently in groups.
	ModeTransitions PhaseMode = iota
	// ModeEntity drives one entity at a time through as many applicable
	// transitions as apply, with no grouped concurrency.
	ModeEntity
)

func (m PhaseMode) String() string {
	if m == ModeEntity {
		return "entity"
	}
	return "transitions"
}

// HookSpec is either a bare shell command or a command with an optional
// stdin template. Both init, completion, and transition hooks share this
// shape.
type HookSpec struct {
	Cmd   string
	Stdin string // empty means no stdin template
}

// HasStdin reports whether the hook has a stdin template to render.
func (h HookSpec) HasStdin() bool {
	return h.Stdin != ""
}

// IsZero reports whether the hook is the absent/unset value (cmd-less
// transitions use this to mean "pure move, no hook to run").
func (h HookSpec) IsZero() bool {
	return h.Cmd == ""
}

// Transition moves entities from Source to Destination within the owning
// phase, gated by an optional hook. Jump, if non-empty, names another phase
// to run to fixpoint immediately after a successful move.
type Transition struct {
	Source      string
	Destination string
	Hook        HookSpec // Hook.Cmd == "" means a pure move, no hook runs
	Jump        string   // empty means no jump
}

// HasJump reports whether a successful application of this transition
// triggers a jump into another phase.
func (t Transition) HasJump() bool {
	return t.Jump != ""
}

// Phase is a named, ordered container of declared states, transition
// rules, and completion hooks.
type Phase struct {
	Name        string
	States      []string
	Transitions []Transition
	Completions []HookSpec
	Mode        PhaseMode
}

// HasState reports whether name is one of the phase's declared states.
func (p Phase) HasState(name string) bool {
	for _, s := range p.States {
		if s == name {
			return true
		}
	}
	return false
}

// Config is the fully parsed and validated workflow document.
type Config struct {
	Phases  []Phase
	Env     map[string]string
	Retries int
	Init    HookSpec // Init.Cmd == "" means no init hook
}

// PhaseNames returns the declared phase names in declaration order.
func (c Config) PhaseNames() []string {
	names := make([]string, len(c.Phases))
	for i, p := range c.Phases {
		names[i] = p.Name
	}
	return names
}

// PhaseByName returns the phase with the given name, or false if the
// config declares no such phase.
func (c Config) PhaseByName(name string) (Phase, bool) {
	for _, p := range c.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// HasInit reports whether the config declares an init hook.
func (c Config) HasInit() bool {
	return !c.Init.IsZero()
}
