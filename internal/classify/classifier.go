// Package classify matches raw fields against catalogue recognition patterns.
package classify

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"harmonycore/internal/catalogue"
	"harmonycore/pkg/domain"
)

// SeedGroup is the capture group name that, when present, seeds the
// transform chain instead of the whole match.
const SeedGroup = "id"

// Match is one rule that recognised a field.
type Match struct {
	Rule   catalogue.Rule
	Span   int
	Text   string
	Groups map[string]string
	Seed   string
}

// Normalize returns the form of a raw value that patterns are matched against.
func Normalize(value string) string {
	return strings.TrimSpace(norm.NFC.String(value))
}

// Classify returns every rule matching field, most specific first: longer
// matches precede shorter ones and equal spans keep catalogue order.
func Classify(field domain.RawField, rules *catalogue.RuleSet) []Match {
	if rules == nil {
		return nil
	}
	value := Normalize(field.Value)
	if value == "" {
		return nil
	}
	key := strings.TrimSpace(field.FieldKey)

	var matches []Match
	for _, rule := range rules.Rules() {
		if rule.KeyPattern != nil && !rule.KeyPattern.MatchString(key) {
			continue
		}
		loc := rule.Pattern.FindStringSubmatchIndex(value)
		if loc == nil {
			continue
		}
		m := Match{Rule: rule, Span: loc[1] - loc[0], Text: value[loc[0]:loc[1]]}
		for i, name := range rule.Pattern.SubexpNames() {
			if name == "" || loc[2*i] < 0 {
				continue
			}
			if m.Groups == nil {
				m.Groups = make(map[string]string)
			}
			m.Groups[name] = value[loc[2*i]:loc[2*i+1]]
		}
		m.Seed = m.Text
		if id, ok := m.Groups[SeedGroup]; ok {
			m.Seed = id
		}
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Span > matches[j].Span
	})
	return matches
}

// Best returns the preferred match for field.
func Best(field domain.RawField, rules *catalogue.RuleSet) (Match, bool) {
	matches := Classify(field, rules)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}
