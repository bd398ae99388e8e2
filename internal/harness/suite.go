package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a set of scenario files.
type SuiteResult struct {
	Total     int               `json:"total"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Scenarios []ScenarioOutcome `json:"scenarios"`
}

// ScenarioOutcome is the result of one scenario file. A scenario that
// failed to load or run has Pass false and the cause in Errors.
type ScenarioOutcome struct {
	Name     string       `json:"name"`
	Path     string       `json:"path"`
	Pass     bool         `json:"pass"`
	Errors   []string     `json:"errors,omitempty"`
	Sessions []string     `json:"sessions,omitempty"`
	Trace    []TraceEvent `json:"trace,omitempty"`
}

// Failures returns the outcomes that did not pass, in run order.
func (r *SuiteResult) Failures() []ScenarioOutcome {
	var failed []ScenarioOutcome
	for _, o := range r.Scenarios {
		if !o.Pass {
			failed = append(failed, o)
		}
	}
	return failed
}

// ScenarioFiles returns the .yaml and .yml files directly in dir, sorted.
func ScenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite runs every scenario file in dir.
func RunSuite(dir string, opts ...Option) (*SuiteResult, error) {
	paths, err := ScenarioFiles(dir)
	if err != nil {
		return nil, err
	}
	return RunFiles(paths, opts...), nil
}

// RunFiles runs the scenarios at paths in order.
//
// For each scenario file:
// 1. Load it (script_file resolved against its directory)
// 2. Run it via harness.Run
// 3. Count it as passed only if every assertion held
//
// A scenario that fails to load or run is a failure, not an error: the
// rest of the suite still runs.
func RunFiles(paths []string, opts ...Option) *SuiteResult {
	result := &SuiteResult{}
	for _, path := range paths {
		o := runFile(path, opts)
		result.Total++
		if o.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, o)
	}
	return result
}

func runFile(path string, opts []Option) ScenarioOutcome {
	o := ScenarioOutcome{Path: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		o.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return o
	}
	o.Name = scenario.Name

	run, err := Run(scenario, opts...)
	if err != nil {
		o.Errors = []string{fmt.Sprintf("scenario execution failed: %v", err)}
		return o
	}

	o.Pass = run.Pass
	o.Errors = run.Errors
	o.Sessions = run.Sessions
	o.Trace = run.Trace
	return o
}
