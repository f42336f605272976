// Package config loads and validates the YAML workflow document (SPEC_FULL.md
// §6, §4.8) into the typed internal/domain/workflow.Config. Validation
// follows the teacher's internal/workflow.LoadWorkflow shape: strict
// KnownFields decoding followed by staged, field-naming validation.
package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/kobuchi/dirorch/internal/domain/workflow"
)

const defaultRetries = 3

// Load reads path from fs, parses it as a dirorch workflow document, and
// validates it into a workflow.Config. Every validation failure names the
// offending field, per spec.md §6.
func Load(fs afero.Fs, path string) (workflow.Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return workflow.Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc rawDocument
	if err := dec.Decode(&doc); err != nil {
		return workflow.Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return buildConfig(doc)
}

func buildConfig(doc rawDocument) (workflow.Config, error) {
	names, rawPhases, err := doc.orderedPhases()
	if err != nil {
		return workflow.Config{}, err
	}
	if len(names) == 0 {
		return workflow.Config{}, fmt.Errorf(`config: "phases" must be a non-empty mapping`)
	}

	env := mergeEnv(doc.Env, doc.Environment)

	retries := defaultRetries
	if doc.Retries != nil {
		if *doc.Retries < 0 {
			return workflow.Config{}, fmt.Errorf(`config: "retries" must be >= 0`)
		}
		retries = *doc.Retries
	}

	init, err := parseHook(doc.Init, "init")
	if err != nil {
		return workflow.Config{}, err
	}

	phases, err := parsePhases(names, rawPhases)
	if err != nil {
		return workflow.Config{}, err
	}

	if err := validateJumpTargets(phases); err != nil {
		return workflow.Config{}, err
	}

	return workflow.Config{
		Phases:  phases,
		Env:     env,
		Retries: retries,
		Init:    init,
	}, nil
}

// mergeEnv implements "if both given, merge env over environment" from
// spec.md §6.
func mergeEnv(env, environment map[string]string) map[string]string {
	merged := make(map[string]string, len(env)+len(environment))
	for k, v := range environment {
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	return merged
}

func parseHook(raw rawHook, field string) (workflow.HookSpec, error) {
	if !raw.isSet() {
		return workflow.HookSpec{}, nil
	}
	if strings.TrimSpace(raw.Cmd) == "" {
		return workflow.HookSpec{}, fmt.Errorf(`config: %q has invalid "cmd"`, field)
	}
	return workflow.HookSpec{Cmd: raw.Cmd, Stdin: raw.Stdin}, nil
}

func parsePhases(names []string, phases map[string]rawPhase) ([]workflow.Phase, error) {
	result := make([]workflow.Phase, 0, len(phases))
	seen := make(map[string]bool, len(phases))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("config: duplicate phase %q", name)
		}
		seen[name] = true
		raw, ok := phases[name]
		if !ok {
			continue
		}
		phase, err := parsePhase(name, raw)
		if err != nil {
			return nil, err
		}
		result = append(result, phase)
	}
	return result, nil
}

func parsePhase(name string, raw rawPhase) (workflow.Phase, error) {
	if strings.TrimSpace(name) == "" {
		return workflow.Phase{}, fmt.Errorf("config: phase names must be non-empty strings")
	}

	states, err := parseStates(name, raw.States)
	if err != nil {
		return workflow.Phase{}, err
	}

	mode, err := parseMode(name, raw.Mode)
	if err != nil {
		return workflow.Phase{}, err
	}

	transitions, err := parseTransitions(name, states, raw.Transitions)
	if err != nil {
		return workflow.Phase{}, err
	}

	completions, err := parseCompletions(name, raw)
	if err != nil {
		return workflow.Phase{}, err
	}

	return workflow.Phase{
		Name:        name,
		States:      states,
		Transitions: transitions,
		Completions: completions,
		Mode:        mode,
	}, nil
}

func parseStates(phase string, raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("config: phase %q must include non-empty \"states\" list", phase)
	}
	seen := make(map[string]bool, len(raw))
	states := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("config: phase %q contains an invalid state name", phase)
		}
		if s == workflow.FailedState {
			return nil, fmt.Errorf("config: phase %q cannot declare reserved state %q", phase, workflow.FailedState)
		}
		if seen[s] {
			return nil, fmt.Errorf("config: phase %q has duplicate state %q", phase, s)
		}
		seen[s] = true
		states = append(states, s)
	}
	return states, nil
}

func parseMode(phase, raw string) (workflow.PhaseMode, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	switch mode {
	case "", "transitions":
		return workflow.ModeTransitions, nil
	case "entity":
		return workflow.ModeEntity, nil
	default:
		return 0, fmt.Errorf(`config: phase %q has invalid mode %q (supported: "transitions", "entity")`, phase, raw)
	}
}

func parseTransitions(phase string, states []string, raw []rawTrans) ([]workflow.Transition, error) {
	declared := make(map[string]bool, len(states))
	for _, s := range states {
		declared[s] = true
	}

	transitions := make([]workflow.Transition, 0, len(raw))
	for i, t := range raw {
		path := fmt.Sprintf("phases.%s.transitions[%d]", phase, i)

		if strings.TrimSpace(t.From) == "" || !declared[t.From] {
			return nil, fmt.Errorf("config: %s: \"from\" must name a declared state of phase %q", path, phase)
		}
		if strings.TrimSpace(t.To) == "" || !declared[t.To] {
			return nil, fmt.Errorf("config: %s: \"to\" must name a declared state of phase %q", path, phase)
		}
		if t.Cmd == "" && t.Stdin != "" {
			return nil, fmt.Errorf("config: %s: \"stdin\" requires \"cmd\"", path)
		}

		transitions = append(transitions, workflow.Transition{
			Source:      t.From,
			Destination: t.To,
			Hook:        workflow.HookSpec{Cmd: t.Cmd, Stdin: t.Stdin},
			Jump:        t.Jump,
		})
	}
	return transitions, nil
}

func parseCompletions(phase string, raw rawPhase) ([]workflow.HookSpec, error) {
	list := raw.Completions
	if len(list) == 0 {
		list = raw.Completion
	}
	completions := make([]workflow.HookSpec, 0, len(list))
	for i, h := range list {
		field := fmt.Sprintf("phases.%s.completions[%d]", phase, i)
		hook, err := parseHook(h, field)
		if err != nil {
			return nil, err
		}
		if hook.IsZero() {
			return nil, fmt.Errorf("config: %s must be a string or a mapping with \"cmd\"", field)
		}
		completions = append(completions, hook)
	}
	return completions, nil
}

func validateJumpTargets(phases []workflow.Phase) error {
	names := make(map[string]bool, len(phases))
	for _, p := range phases {
		names[p.Name] = true
	}
	for _, p := range phases {
		for i, t := range p.Transitions {
			if t.Jump != "" && !names[t.Jump] {
				return fmt.Errorf("config: phases.%s.transitions[%d]: jump target %q is undefined", p.Name, i, t.Jump)
			}
		}
	}
	return nil
}
