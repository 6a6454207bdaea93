// Package rules implements the declarative rule engine that turns business
// events into actions.
package rules

// Operator names how a condition compares a fact against its value.
type Operator string

// Supported operators. Names are case-sensitive.
const (
	OperatorEqual                Operator = "equal"
	OperatorNotEqual             Operator = "notEqual"
	OperatorGreaterThan          Operator = "greaterThan"
	OperatorGreaterThanInclusive Operator = "greaterThanInclusive"
	OperatorLessThan             Operator = "lessThan"
	OperatorLessThanInclusive    Operator = "lessThanInclusive"
	OperatorContains             Operator = "contains"
	OperatorNotContains          Operator = "notContains"
)

// Known reports whether op is one of the supported operators.
func (op Operator) Known() bool {
	switch op {
	case OperatorEqual, OperatorNotEqual,
		OperatorGreaterThan, OperatorGreaterThanInclusive,
		OperatorLessThan, OperatorLessThanInclusive,
		OperatorContains, OperatorNotContains:
		return true
	}
	return false
}

// Condition compares the fact found at a dotted path against Value.
type Condition struct {
	Fact     string   `json:"fact" yaml:"fact"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Action is an opaque instruction produced when a rule fires. The engine never
// interprets it; callers dispatch on Type.
type Action struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Rule fires its actions for events of EventType when every condition holds.
type Rule struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	EventType  string      `json:"eventType" yaml:"eventType"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Actions    []Action    `json:"actions" yaml:"actions"`
	IsActive   bool        `json:"isActive" yaml:"isActive"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r Rule) Clone() Rule {
	out := r
	if r.Conditions != nil {
		out.Conditions = make([]Condition, len(r.Conditions))
		copy(out.Conditions, r.Conditions)
	}
	if r.Actions != nil {
		out.Actions = make([]Action, len(r.Actions))
		for i, a := range r.Actions {
			out.Actions[i] = a.Clone()
		}
	}
	return out
}

// Clone returns a copy of a with its own params map.
func (a Action) Clone() Action {
	out := Action{Type: a.Type}
	if a.Params != nil {
		out.Params = make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			out.Params[k] = v
		}
	}
	return out
}
