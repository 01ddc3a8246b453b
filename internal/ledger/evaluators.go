package ledger

import (
	"fmt"
	"regexp"
	"strings"
)

// EvalResult is one evaluator's verdict on an event.
type EvalResult struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Details string  `json:"details"`
	Score   float64 `json:"score,omitempty"`
}

// Evaluator is one automated check in the battery run against every
// finalized event.
type Evaluator interface {
	Name() string
	Evaluate(event *RunEvent) EvalResult
}

// TestsPassEvaluator fails when any test failed or none ran at all.
type TestsPassEvaluator struct{}

func (e *TestsPassEvaluator) Name() string { return "tests-pass" }

func (e *TestsPassEvaluator) Evaluate(event *RunEvent) EvalResult {
	if event.Tests.Ran == 0 {
		return EvalResult{Name: e.Name(), Passed: false, Details: "no tests ran"}
	}
	if event.Tests.Failed > 0 {
		return EvalResult{
			Name:    e.Name(),
			Passed:  false,
			Details: fmt.Sprintf("%d of %d tests failed", event.Tests.Failed, event.Tests.Ran),
		}
	}
	return EvalResult{
		Name:    e.Name(),
		Passed:  true,
		Details: fmt.Sprintf("%d tests passed", event.Tests.Passed),
		Score:   1,
	}
}

// ForbiddenCommandEvaluator scans the tools used by an event against a
// configured regex set.
type ForbiddenCommandEvaluator struct {
	patterns []*regexp.Regexp
}

// NewForbiddenCommandEvaluator compiles the forbidden command patterns.
func NewForbiddenCommandEvaluator(patterns []string) (*ForbiddenCommandEvaluator, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: forbidden command pattern %q: %v", ErrInvalidConfig, p, err)
		}
		compiled = append(compiled, re)
	}
	return &ForbiddenCommandEvaluator{patterns: compiled}, nil
}

func (e *ForbiddenCommandEvaluator) Name() string { return "forbidden-command-scan" }

func (e *ForbiddenCommandEvaluator) Evaluate(event *RunEvent) EvalResult {
	for _, tool := range event.ToolsUsed {
		for _, re := range e.patterns {
			if re.MatchString(tool) {
				return EvalResult{
					Name:    e.Name(),
					Passed:  false,
					Details: fmt.Sprintf("forbidden command matched: %s", tool),
				}
			}
		}
	}
	return EvalResult{Name: e.Name(), Passed: true, Details: "no forbidden commands used", Score: 1}
}

// ForbiddenDependencyEvaluator flags touched dependency manifests for
// manual review. It cannot prove a dependency change is bad, so it
// fails soft with the file list in the details.
type ForbiddenDependencyEvaluator struct{}

var manifestFiles = []string{
	"go.mod", "go.sum", "package.json", "package-lock.json", "yarn.lock",
	"requirements.txt", "pyproject.toml", "Cargo.toml", "Gemfile", "pom.xml",
}

func (e *ForbiddenDependencyEvaluator) Name() string { return "forbidden-dependency-scan" }

func (e *ForbiddenDependencyEvaluator) Evaluate(event *RunEvent) EvalResult {
	var touched []string
	for _, file := range event.FilesTouched {
		base := file
		if i := strings.LastIndex(file, "/"); i >= 0 {
			base = file[i+1:]
		}
		for _, manifest := range manifestFiles {
			if base == manifest {
				touched = append(touched, file)
				break
			}
		}
	}
	if len(touched) > 0 {
		return EvalResult{
			Name:    e.Name(),
			Passed:  false,
			Details: fmt.Sprintf("dependency manifests touched, review required: %s", strings.Join(touched, ", ")),
		}
	}
	return EvalResult{Name: e.Name(), Passed: true, Details: "no dependency manifests touched", Score: 1}
}

// ViolationRateEvaluator passes iff the event's violation count is at
// or under the configured maximum.
type ViolationRateEvaluator struct {
	MaxViolations int
}

func (e *ViolationRateEvaluator) Name() string { return "violation-rate" }

func (e *ViolationRateEvaluator) Evaluate(event *RunEvent) EvalResult {
	count := len(event.Violations)
	if count > e.MaxViolations {
		return EvalResult{
			Name:    e.Name(),
			Passed:  false,
			Details: fmt.Sprintf("%d violations exceeds maximum %d", count, e.MaxViolations),
		}
	}
	return EvalResult{
		Name:    e.Name(),
		Passed:  true,
		Details: fmt.Sprintf("%d violations within maximum %d", count, e.MaxViolations),
		Score:   1,
	}
}

// DiffQualityEvaluator passes iff the rework share of the diff stays at
// or under the configured ratio. An empty diff passes.
type DiffQualityEvaluator struct {
	MaxReworkRatio float64
}

func (e *DiffQualityEvaluator) Name() string { return "diff-quality" }

func (e *DiffQualityEvaluator) Evaluate(event *RunEvent) EvalResult {
	if event.Diff.TotalLines == 0 {
		return EvalResult{Name: e.Name(), Passed: true, Details: "empty diff", Score: 1}
	}
	ratio := float64(event.Diff.ReworkLines) / float64(event.Diff.TotalLines)
	if ratio > e.MaxReworkRatio {
		return EvalResult{
			Name:    e.Name(),
			Passed:  false,
			Details: fmt.Sprintf("rework ratio %.2f exceeds maximum %.2f", ratio, e.MaxReworkRatio),
			Score:   1 - ratio,
		}
	}
	return EvalResult{
		Name:    e.Name(),
		Passed:  true,
		Details: fmt.Sprintf("rework ratio %.2f within maximum %.2f", ratio, e.MaxReworkRatio),
		Score:   1 - ratio,
	}
}
