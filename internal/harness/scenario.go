package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hapsync/internal/mapper"
	"github.com/roach88/hapsync/internal/script"
)

// DefaultDurationMs is the media length when a scenario does not set one.
const DefaultDurationMs = 60000

// Scenario defines a playback scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It prefixes session IDs and
	// names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy names the intensity policy. Empty means windowed.
	Policy string `yaml:"policy,omitempty"`

	// PeriodMs is the tick period. Zero means the engine default.
	PeriodMs int `yaml:"period_ms,omitempty"`

	// DurationMs is the media length. Zero means DefaultDurationMs.
	DurationMs int64 `yaml:"duration_ms,omitempty"`

	// Unsupported runs against an actuator that reports no hardware.
	Unsupported bool `yaml:"unsupported,omitempty"`

	// Settings overrides default parameters. Decoded with the settings
	// file schema, so unknown fields and bad values are rejected.
	Settings map[string]any `yaml:"settings,omitempty"`

	// Script holds inline actions. Mutually exclusive with ScriptFile.
	Script []script.Action `yaml:"script,omitempty"`

	// ScriptFile is a funscript path, relative to the scenario file.
	ScriptFile string `yaml:"script_file,omitempty"`

	// Steps drive the player, the settings and the engine in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and journal.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpPlay            = "play"
	OpPause           = "pause"
	OpEnd             = "end"
	OpStop            = "stop"
	OpClearScript     = "clear_script"
	OpTestPulse       = "test_pulse"
	OpSeek            = "seek"
	OpAdvance         = "advance"
	OpFullscreen      = "fullscreen"
	OpEnable          = "enable"
	OpAllowFullscreen = "allow_fullscreen"
	OpIntensity       = "intensity"
	OpPolicy          = "policy"
	OpLoadScript      = "load_script"
)

var bareOps = map[string]bool{
	OpPlay: true, OpPause: true, OpEnd: true, OpStop: true,
	OpClearScript: true, OpTestPulse: true,
}

// Step is one scenario instruction. In YAML it is either a bare operation
// name ("play") or a single-key mapping ("advance: 200").
type Step struct {
	Op      string
	Ms      int64
	Flag    bool
	Value   float64
	Name    string
	Actions []script.Action
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if !bareOps[node.Value] {
			return fmt.Errorf("line %d: unknown step %q", node.Line, node.Value)
		}
		s.Op = node.Value
		return nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: step must have exactly one key", node.Line)
		}
		key, val := node.Content[0].Value, node.Content[1]
		s.Op = key

		switch key {
		case OpSeek, OpAdvance:
			if err := val.Decode(&s.Ms); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
			if s.Ms < 0 {
				return fmt.Errorf("line %d: %s must be non-negative", val.Line, key)
			}
		case OpFullscreen, OpEnable, OpAllowFullscreen:
			if err := val.Decode(&s.Flag); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
		case OpIntensity:
			if err := val.Decode(&s.Value); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
		case OpPolicy:
			if err := val.Decode(&s.Name); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
		case OpLoadScript:
			if err := val.Decode(&s.Actions); err != nil {
				return fmt.Errorf("line %d: %s: %w", val.Line, key, err)
			}
		default:
			return fmt.Errorf("line %d: unknown step %q", node.Line, key)
		}
		return nil

	default:
		return fmt.Errorf("line %d: step must be a name or a single-key mapping", node.Line)
	}
}

// String renders the step the way it is written in YAML.
func (s Step) String() string {
	switch s.Op {
	case OpSeek, OpAdvance:
		return fmt.Sprintf("%s: %d", s.Op, s.Ms)
	case OpFullscreen, OpEnable, OpAllowFullscreen:
		return fmt.Sprintf("%s: %t", s.Op, s.Flag)
	case OpIntensity:
		return fmt.Sprintf("%s: %g", s.Op, s.Value)
	case OpPolicy:
		return fmt.Sprintf("%s: %s", s.Op, s.Name)
	case OpLoadScript:
		return fmt.Sprintf("%s: %d actions", s.Op, len(s.Actions))
	default:
		return s.Op
	}
}

// Assertion validates the trace, the final state or the journal.
type Assertion struct {
	// Type specifies the assertion type:
	// - "pulses": exactly Count vibrate calls
	// - "cancels": exactly Count cancel calls
	// - "last_pattern": last vibrate call carried Pattern
	// - "state": engine ends in State
	// - "quiet": no vibrate call in [FromMs, ToMs]
	// - "session": journaled Session ended with EndReason
	Type string `yaml:"type"`

	// Count is the expected number of calls (pulses, cancels) or, for
	// session, the expected pulse count when non-zero.
	Count int `yaml:"count,omitempty"`

	// Pattern is the expected pattern (last_pattern).
	Pattern []int `yaml:"pattern,omitempty"`

	// State is "idle" or "running" (state).
	State string `yaml:"state,omitempty"`

	// FromMs and ToMs bound the quiet interval in virtual time.
	FromMs int64 `yaml:"from_ms,omitempty"`
	ToMs   int64 `yaml:"to_ms,omitempty"`

	// Session is the session ID (session).
	Session string `yaml:"session,omitempty"`

	// EndReason is the expected journal end reason (session).
	EndReason string `yaml:"end_reason,omitempty"`
}

// Assertion type constants.
const (
	AssertPulses      = "pulses"
	AssertCancels     = "cancels"
	AssertLastPattern = "last_pattern"
	AssertState       = "state"
	AssertQuiet       = "quiet"
	AssertSession     = "session"
)

// LoadScenario reads and parses a scenario YAML file. A relative
// script_file is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.ScriptFile != "" && !filepath.IsAbs(scenario.ScriptFile) {
		scenario.ScriptFile = filepath.Join(filepath.Dir(path), scenario.ScriptFile)
	}
	if scenario.ScriptFile != "" {
		if _, err := os.Stat(scenario.ScriptFile); os.IsNotExist(err) {
			return nil, &ScriptNotFoundError{Scenario: scenario.Name, Path: scenario.ScriptFile}
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// ScriptNotFoundError is returned when a scenario's script_file doesn't exist.
type ScriptNotFoundError struct {
	Scenario string
	Path     string
}

// Error implements the error interface.
func (e *ScriptNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references script file %q which does not exist", e.Scenario, e.Path)
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

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if len(s.Script) > 0 && s.ScriptFile != "" {
		return fmt.Errorf("script and script_file are mutually exclusive")
	}

	if s.PeriodMs < 0 {
		return fmt.Errorf("period_ms must be non-negative")
	}

	if s.DurationMs < 0 {
		return fmt.Errorf("duration_ms must be non-negative")
	}

	if _, err := mapper.ByName(s.Policy); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if step.Op == OpPolicy {
			if _, err := mapper.ByName(step.Name); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPulses, AssertCancels:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertLastPattern:
		if len(a.Pattern) == 0 {
			return fmt.Errorf("assertions[%d]: pattern is required for last_pattern", index)
		}
	case AssertState:
		if a.State != "idle" && a.State != "running" {
			return fmt.Errorf("assertions[%d]: state must be idle or running, got %q", index, a.State)
		}
	case AssertQuiet:
		if a.ToMs < a.FromMs {
			return fmt.Errorf("assertions[%d]: to_ms must not be before from_ms", index)
		}
	case AssertSession:
		if a.Session == "" {
			return fmt.Errorf("assertions[%d]: session is required for session", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
