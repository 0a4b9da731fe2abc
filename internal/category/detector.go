// Package category infers a content category from a file path using an
// ordered list of keyword rules.
package category

import "strings"

// Uncategorized is the fallback label returned when no rule matches.
// An unmatched path is a valid outcome, not an error.
const Uncategorized = "uncategorized"

// Rule maps any of its keywords, found as a substring of the normalized
// path, to a category label.
type Rule struct {
	Label    string
	Keywords []string
}

// DefaultRules returns the built-in ordered rule list. Order matters:
// more specific rules come first, and the first matching rule wins.
func DefaultRules() []Rule {
	return []Rule{
		{Label: "cv", Keywords: []string{"cvs_resumes", "cv", "resume"}},
		{Label: "proposals", Keywords: []string{"proposal"}},
		{Label: "compliance", Keywords: []string{"compliance"}},
		{Label: "contracts", Keywords: []string{"contract"}},
		{Label: "pricing", Keywords: []string{"pricing"}},
		{Label: "requirements", Keywords: []string{"requirement"}},
		{Label: "technical", Keywords: []string{"technical"}},
		{Label: "policies", Keywords: []string{"policies", "policy"}},
	}
}

// Detector classifies file paths. It is pure and safe for concurrent use;
// rules are immutable after construction.
type Detector struct {
	rules []Rule
}

// NewDetector returns a detector over the given ordered rules.
// With no rules, every path detects as Uncategorized.
func NewDetector(rules []Rule) *Detector {
	return &Detector{rules: rules}
}

// NewDefaultDetector returns a detector with the built-in rules.
func NewDefaultDetector() *Detector {
	return NewDetector(DefaultRules())
}

// Detect returns the category label for path. Matching is case-insensitive
// substring search over the separator-normalized path, first rule wins.
func (d *Detector) Detect(path string) string {
	if path == "" {
		return Uncategorized
	}
	normalized := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	for _, rule := range d.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(normalized, kw) {
				return rule.Label
			}
		}
	}
	return Uncategorized
}

// Labels returns the rule labels in order, followed by Uncategorized.
func (d *Detector) Labels() []string {
	labels := make([]string, 0, len(d.rules)+1)
	for _, rule := range d.rules {
		labels = append(labels, rule.Label)
	}
	return append(labels, Uncategorized)
}
