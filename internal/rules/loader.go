package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads rule definitions from a YAML or JSON document of the form
// {"rules": [...]}. Every rule is validated.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a rules document. JSON is accepted as YAML.
func Parse(data []byte) ([]Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	var errs []error
	for i := range doc.Rules {
		if err := Validate(doc.Rules[i]); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, doc.Rules[i].Name, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return doc.Rules, nil
}

// Validate checks a definition before it is stored. The engine itself accepts
// any rule and treats unknown operators as false.
func Validate(r Rule) error {
	var problems []string

	if strings.TrimSpace(r.EventType) == "" {
		problems = append(problems, "eventType is required")
	}
	for i, c := range r.Conditions {
		if strings.TrimSpace(c.Fact) == "" {
			problems = append(problems, fmt.Sprintf("condition %d: fact is required", i))
		}
		if !c.Operator.Known() {
			problems = append(problems, fmt.Sprintf("condition %d: unknown operator %q", i, c.Operator))
		}
	}
	for i, a := range r.Actions {
		if strings.TrimSpace(a.Type) == "" {
			problems = append(problems, fmt.Sprintf("action %d: type is required", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid rule: %s", strings.Join(problems, "; "))
	}
	return nil
}
