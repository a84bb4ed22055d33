package penalty

import (
	"sort"
)

type Rule struct {
	Code       string  `json:"code"`
	Weight     float64 `json:"weight"`
	ExpiryDays int     `json:"expiry_days"`
	Label      string  `json:"label"`
}

// Registry is the closed set of violation codes. It is never mutated after
// construction.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry builds the standard ten-code rule table.
func NewRegistry() *Registry {
	severe := func(code, label string) Rule { return Rule{Code: code, Weight: 5, ExpiryDays: 180, Label: label} }
	medium := func(code, label string) Rule { return Rule{Code: code, Weight: 3, ExpiryDays: 90, Label: label} }
	minor := func(code, label string) Rule { return Rule{Code: code, Weight: 2, ExpiryDays: 60, Label: label} }

	table := []Rule{
		severe("RED_LIGHT", "Red Light Violation"),
		medium("WHITE_LINE", "Crossing White Line"),
		severe("WRONG_OVERTAKE", "Wrong Side Overtake"),
		severe("PEDESTRIAN", "Pedestrian Crossing"),
		medium("MOTO_OVERLOAD", "Motorcycle Overload"),
		severe("NO_HELMET", "No Helmet"),
		medium("3WHEEL_OVERLOAD", "Three-Wheel Overload"),
		minor("NO_SIGNAL", "No Turn Signal"),
		severe("RAILWAY", "Railway Violation"),
		minor("OBSTRUCTION", "Traffic Obstruction"),
	}

	r := &Registry{rules: make(map[string]Rule, len(table))}
	for _, rule := range table {
		r.rules[rule.Code] = rule
	}
	return r
}

// Lookup matches code exactly; codes are case-sensitive.
func (r *Registry) Lookup(code string) (Rule, bool) {
	rule, ok := r.rules[code]
	return rule, ok
}

// All returns a copy of the table ordered by code.
func (r *Registry) All() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
