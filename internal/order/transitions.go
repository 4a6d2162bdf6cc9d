package order

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed transitions.yaml
var defaultTransitionsYAML []byte

// Transitions maps a status to the statuses it may move to.
type Transitions map[Status][]Status

// DefaultTransitions returns the built-in table.
func DefaultTransitions() Transitions {
	t, err := ParseTransitions(defaultTransitionsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded transitions: %v", err))
	}
	return t
}

// LoadTransitions reads a table from a YAML file.
func LoadTransitions(path string) (Transitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	return ParseTransitions(data)
}

func ParseTransitions(data []byte) (Transitions, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse transitions: %w", err)
	}

	t := make(Transitions, len(raw))
	for from, tos := range raw {
		s := Status(from)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown status %q", from)
		}
		next := make([]Status, 0, len(tos))
		for _, to := range tos {
			n := Status(to)
			if !n.Valid() {
				return nil, fmt.Errorf("unknown status %q after %s", to, from)
			}
			next = append(next, n)
		}
		t[s] = next
	}
	return t, nil
}

func (t Transitions) Allowed(from, to Status) bool {
	for _, n := range t[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from from. Never nil.
func (t Transitions) Next(from Status) []Status {
	out := make([]Status, len(t[from]))
	copy(out, t[from])
	return out
}
