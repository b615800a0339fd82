package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end run of the engine against a catalog.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Config holds configuration overrides keyed by dotted path. The harness
	// supplies the catalog root and ledger location itself.
	Config map[string]any `yaml:"config,omitempty"`

	// Catalog maps catalog-relative paths to file content.
	Catalog map[string]string `yaml:"catalog"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is one command run against the engine.
type Step struct {
	// Run is the command name.
	Run string `yaml:"run"`

	Filter string `yaml:"filter,omitempty"`
	Limit  int    `yaml:"limit,omitempty"`
	DryRun bool   `yaml:"dry_run,omitempty"`

	// Advance moves the clock forward before the step, on top of the
	// one-minute tick every step gets.
	Advance string `yaml:"advance,omitempty"`

	// Write and Remove edit the catalog before the step runs.
	Write  map[string]string `yaml:"write,omitempty"`
	Remove []string          `yaml:"remove,omitempty"`

	// Fail makes the connector fail these change ids with the given message
	// during this step.
	Fail map[string]string `yaml:"fail,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies a step's outcome. Nil lists are not checked.
type Expect struct {
	// Error is the expected error class; empty means success.
	Error    string   `yaml:"error,omitempty"`
	Executed []string `yaml:"executed,omitempty"`
	Pending  []string `yaml:"pending,omitempty"`
}

// Assertion validates the whole run.
type Assertion struct {
	Type string `yaml:"type"`

	// Changes is the expected relative order (executed_order).
	Changes []string `yaml:"changes,omitempty"`

	// Change and Count are used by execution_count.
	Change string `yaml:"change,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Ledger is the expected final ledger, in any order (final_ledger).
	Ledger []string `yaml:"ledger,omitempty"`
}

// Step commands.
const (
	CmdApply       = "apply"
	CmdRevert      = "revert"
	CmdPending     = "pending"
	CmdCatalog     = "catalog"
	CmdState       = "state"
	CmdHoldLock    = "hold_lock"
	CmdReleaseLock = "release_lock"
	CmdLockStatus  = "lock_status"
)

// Assertion type constants.
const (
	AssertExecutedOrder  = "executed_order"
	AssertExecutionCount = "execution_count"
	AssertFinalLedger    = "final_ledger"
	AssertLockFree       = "lock_free"
)

var knownCommands = map[string]bool{
	CmdApply: true, CmdRevert: true, CmdPending: true, CmdCatalog: true,
	CmdState: true, CmdHoldLock: true, CmdReleaseLock: true, CmdLockStatus: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !knownCommands[step.Run] {
			return fmt.Errorf("steps[%d]: unknown command %q", i, step.Run)
		}
		if step.Limit < 0 {
			return fmt.Errorf("steps[%d]: limit must be non-negative", i)
		}
		if step.Advance != "" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return fmt.Errorf("steps[%d]: advance: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertExecutedOrder:
		if len(a.Changes) == 0 {
			return fmt.Errorf("assertions[%d]: changes list is required for executed_order", index)
		}
	case AssertExecutionCount:
		if a.Change == "" {
			return fmt.Errorf("assertions[%d]: change is required for execution_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for execution_count", index)
		}
	case AssertFinalLedger, AssertLockFree:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
