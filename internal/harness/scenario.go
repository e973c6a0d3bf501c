// Package harness runs YAML scenario scripts against a fresh engine and
// compares the resulting invocation trace against golden files. Scenarios
// run with a deterministic clock and sequential tokens, so the trace and
// the final state hash are reproducible byte for byte.
package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted run: a named sequence of invocations against
// the escrow and vault components.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description,omitempty"`

	// Steps run in order against one fresh substrate.
	Steps []Step `yaml:"steps"`
}

// Step is one invocation. Exactly one of Init or Component is set: Init
// names a component to instantiate, Component one to execute against.
type Step struct {
	Init      string         `yaml:"init,omitempty"`
	Component string         `yaml:"component,omitempty"`
	Caller    string         `yaml:"caller"`
	Funds     string         `yaml:"funds,omitempty"`
	Msg       map[string]any `yaml:"msg"`
	Expect    *Expect        `yaml:"expect,omitempty"`
}

// Expect validates a step's outcome. Action asserts the receipt's action
// tag; Error asserts that the step fails with the given code instead.
type Expect struct {
	Action string `yaml:"action,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Validate checks structural scenario problems before execution.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario needs a name")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %s has no steps", s.Name)
	}
	for i, stp := range s.Steps {
		if (stp.Init == "") == (stp.Component == "") {
			return fmt.Errorf("scenario %s step %d: exactly one of init or component must be set", s.Name, i)
		}
		if stp.Caller == "" {
			return fmt.Errorf("scenario %s step %d: caller is required", s.Name, i)
		}
		if stp.Expect != nil && stp.Expect.Action != "" && stp.Expect.Error != "" {
			return fmt.Errorf("scenario %s step %d: expect action and error are mutually exclusive", s.Name, i)
		}
	}
	return nil
}

// LoadScenario reads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}
