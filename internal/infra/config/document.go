package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawDocument mirrors the YAML grammar in SPEC_FULL.md §6 before it is
// translated into the typed workflow.Config. Keeping the wire shape
// separate from the domain model lets the loader reject unknown fields
// with yaml.v3's KnownFields(true) without leaking YAML tags into
// internal/domain/workflow.
type rawDocument struct {
	// Phases is decoded as a raw node rather than a map so the loader can
	// recover declaration order (spec.md §3: "Phase. Named, ordered (order
	// is the declaration order from the configuration)") — Go maps, and
	// yaml.v3's map decoding, do not preserve key order.
	Phases      yaml.Node         `yaml:"phases"`
	Retries     *int              `yaml:"retries"`
	Env         map[string]string `yaml:"env"`
	Environment map[string]string `yaml:"environment"`
	Init        rawHook           `yaml:"init"`
}

// orderedPhases walks the phases mapping node in document order and
// decodes each value into a rawPhase, returning names and phases in
// declaration order.
func (d rawDocument) orderedPhases() ([]string, map[string]rawPhase, error) {
	if d.Phases.Kind == 0 {
		return nil, nil, nil
	}
	if d.Phases.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf(`config: "phases" must be a mapping`)
	}

	names := make([]string, 0, len(d.Phases.Content)/2)
	phases := make(map[string]rawPhase, len(d.Phases.Content)/2)
	for i := 0; i+1 < len(d.Phases.Content); i += 2 {
		keyNode := d.Phases.Content[i]
		valNode := d.Phases.Content[i+1]

		var name string
		if err := keyNode.Decode(&name); err != nil {
			return nil, nil, fmt.Errorf("config: phases: invalid phase name: %w", err)
		}

		var phase rawPhase
		if err := valNode.Decode(&phase); err != nil {
			return nil, nil, fmt.Errorf("config: phases.%s: %w", name, err)
		}

		names = append(names, name)
		phases[name] = phase
	}
	return names, phases, nil
}

type rawPhase struct {
	States      []string    `yaml:"states"`
	Mode        string      `yaml:"mode"`
	Transitions []rawTrans  `yaml:"transitions"`
	Completions []rawHook   `yaml:"completions"`
	Completion  []rawHook   `yaml:"completion"`
}

type rawTrans struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Cmd   string `yaml:"cmd"`
	Stdin string `yaml:"stdin"`
	Jump  string `yaml:"jump"`
}

// rawHook accepts either a bare command string or a {cmd, stdin} mapping.
// yaml.v3 calls UnmarshalYAML with the raw node so we can branch on its
// Kind before deciding which shape we're looking at.
type rawHook struct {
	Cmd   string
	Stdin string
	set   bool
}

func (h rawHook) isSet() bool { return h.set }

// UnmarshalYAML implements the hook-spec union from SPEC_FULL.md §6:
// either a bare command string or a {cmd, stdin?} mapping.
func (h *rawHook) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var cmd string
		if err := node.Decode(&cmd); err != nil {
			return fmt.Errorf("hook: %w", err)
		}
		h.Cmd = cmd
		h.set = true
		return nil
	case yaml.MappingNode:
		var structured struct {
			Cmd   string `yaml:"cmd"`
			Stdin string `yaml:"stdin"`
		}
		if err := node.Decode(&structured); err != nil {
			return fmt.Errorf("hook: %w", err)
		}
		h.Cmd = structured.Cmd
		h.Stdin = structured.Stdin
		h.set = true
		return nil
	case 0:
		// Zero value / absent node: leave h unset.
		return nil
	default:
		return fmt.Errorf("hook: must be a string or a mapping with 'cmd'")
	}
}
