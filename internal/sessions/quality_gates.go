package sessions

import "context"

// GateResult is the outcome of evaluating a single quality gate.
type GateResult struct {
	Name   string
	Passed bool
	Detail string
}

// GateCheck evaluates one quality gate against the story currently being
// finished. Checks run against whatever the caller already has in hand
// (build/test/lint output, diff stats) rather than re-invoking tools
// themselves — the runner side owns shelling out.
type GateCheck func(ctx context.Context, story *StoryExecutionState) GateResult

// QualityGateRegistry holds the named gates evaluated at the end of each
// story, modeled on the original's per-story gate checks: a story isn't
// marked complete until every registered gate passes.
type QualityGateRegistry struct {
	checks map[string]GateCheck
	order  []string
}

// NewQualityGateRegistry returns a registry seeded with the standard gates:
// build, tests, and lint must all pass before a story counts as done.
func NewQualityGateRegistry() *QualityGateRegistry {
	r := &QualityGateRegistry{checks: make(map[string]GateCheck)}
	r.Register("build", buildGate)
	r.Register("tests", testsGate)
	r.Register("lint", lintGate)
	return r
}

// Register adds or replaces a named gate check, appending it to the
// evaluation order if it's new.
func (r *QualityGateRegistry) Register(name string, check GateCheck) {
	if _, exists := r.checks[name]; !exists {
		r.order = append(r.order, name)
	}
	r.checks[name] = check
}

// Evaluate runs every registered gate against story, records each result on
// story.QualityGates, and returns the individual results in registration
// order.
func (r *QualityGateRegistry) Evaluate(ctx context.Context, story *StoryExecutionState) []GateResult {
	if story.QualityGates == nil {
		story.QualityGates = make(map[string]bool)
	}
	results := make([]GateResult, 0, len(r.order))
	for _, name := range r.order {
		result := r.checks[name](ctx, story)
		result.Name = name
		story.QualityGates[name] = result.Passed
		results = append(results, result)
	}
	return results
}

// buildGate is a placeholder gate that passes by default; callers running a
// real build step should Register("build", ...) their own check before
// evaluating.
func buildGate(ctx context.Context, story *StoryExecutionState) GateResult {
	return GateResult{Passed: true, Detail: "no build check registered"}
}

func testsGate(ctx context.Context, story *StoryExecutionState) GateResult {
	return GateResult{Passed: true, Detail: "no test check registered"}
}

func lintGate(ctx context.Context, story *StoryExecutionState) GateResult {
	return GateResult{Passed: true, Detail: "no lint check registered"}
}
