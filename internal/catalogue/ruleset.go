// Package catalogue loads the declarative field-recognition catalogue into an
// immutable rule set.
package catalogue

import (
	"regexp"

	"harmonycore/internal/entitymodel"
)

// Rule is a validated mapping rule.
type Rule struct {
	Entity        string
	Index         int
	Pattern       *regexp.Regexp
	KeyPattern    *regexp.Regexp
	Transforms    []string
	Table         *entitymodel.Table
	TargetColumns []string
}

func (r Rule) clone() Rule {
	r.Transforms = append([]string(nil), r.Transforms...)
	r.TargetColumns = append([]string(nil), r.TargetColumns...)
	return r
}

// RuleSet is the immutable registry produced by a successful load. The zero
// value is an empty rule set.
type RuleSet struct {
	version string
	actor   string
	schema  *entitymodel.Schema
	rules   []Rule
	byName  map[string]int
}

// Rules returns the rules in declaration order.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.clone()
	}
	return out
}

// Rule returns the rule for an entity name.
func (s *RuleSet) Rule(entity string) (Rule, bool) {
	i, ok := s.byName[entity]
	if !ok {
		return Rule{}, false
	}
	return s.rules[i].clone(), true
}

// Len returns the number of rules.
func (s *RuleSet) Len() int { return len(s.rules) }

// Schema returns the schema the rules were validated against.
func (s *RuleSet) Schema() *entitymodel.Schema { return s.schema }

// Version returns the document version.
func (s *RuleSet) Version() string { return s.version }

// Actor returns the audit actor declared by the catalogue, if any.
func (s *RuleSet) Actor() string { return s.actor }
