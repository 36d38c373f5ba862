package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Patterns is an ordered list of glob patterns. A leading "!" negates.
//
// In YAML it may be written either as a single string or as a sequence.
type Patterns []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (p *Patterns) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*p = Patterns{}
			return nil
		}
		*p = Patterns{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(Patterns, 0, len(value.Content))
		for _, n := range value.Content {
			if n.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: pattern must be a string", n.Line)
			}
			out = append(out, n.Value)
		}
		*p = out
		return nil
	default:
		return fmt.Errorf("line %d: patterns must be a string or a list of strings", value.Line)
	}
}

// Clone returns an independent copy.
func (p Patterns) Clone() Patterns {
	if p == nil {
		return nil
	}
	out := make(Patterns, len(p))
	copy(out, p)
	return out
}
