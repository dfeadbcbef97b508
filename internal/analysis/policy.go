package analysis

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PhaseName identifies one of the three fixed analysis phases.
type PhaseName string

const (
	PhaseStructureDiscovery PhaseName = "structure_discovery"
	PhaseArchitectureTrace  PhaseName = "architecture_trace"
	PhaseConsistencyCheck   PhaseName = "consistency_check"
)

// Quota is a phase's minimum tool-invocation requirement.
type Quota struct {
	MinTotalCalls  int      `yaml:"min_total_calls"`
	MinReadCalls   int      `yaml:"min_read_calls"`
	MinSearchCalls int      `yaml:"min_search_calls"`
	RequiredTools  []string `yaml:"required_tools"`
}

// Satisfied reports whether a capture's tool counts meet the quota.
func (q Quota) Satisfied(capture *PhaseCapture) bool {
	if capture == nil {
		return q.MinTotalCalls == 0 && q.MinReadCalls == 0 && q.MinSearchCalls == 0 && len(q.RequiredTools) == 0
	}
	total, reads, searches := 0, 0, 0
	for tool, n := range capture.ToolCounts {
		total += n
		switch tool {
		case "Read":
			reads += n
		case "Grep", "Glob", "CodebaseSearch":
			searches += n
		}
	}
	if total < q.MinTotalCalls || reads < q.MinReadCalls || searches < q.MinSearchCalls {
		return false
	}
	for _, req := range q.RequiredTools {
		if capture.ToolCounts[req] == 0 {
			return false
		}
	}
	return true
}

// PhasePolicy tunes one phase's attempt loop.
type PhasePolicy struct {
	MaxAttempts            int     `yaml:"max_attempts"`
	ForceToolModeAttempts  int     `yaml:"force_tool_mode_attempts"`
	TemperatureOverride    float64 `yaml:"temperature_override"`
	Quota                  Quota   `yaml:"quota"`
}

// Phase is one stage of the fixed three-phase analysis sequence.
type Phase struct {
	Name        PhaseName    `yaml:"name"`
	Title       string       `yaml:"title"`
	Objective   string       `yaml:"objective"`
	Layers      []string     `yaml:"layers"`
	Policy      PhasePolicy  `yaml:"policy"`
	TokenBudgetCap int       `yaml:"token_budget_cap"`
}

// TokenBudget computes this phase's budget for a given context window:
// clamp(0.55 * context_window, 20_000, TokenBudgetCap).
func (p Phase) TokenBudget(contextWindow int) int {
	budget := int(0.55 * float64(contextWindow))
	if budget < 20_000 {
		budget = 20_000
	}
	if p.TokenBudgetCap > 0 && budget > p.TokenBudgetCap {
		budget = p.TokenBudgetCap
	}
	return budget
}

// DefaultPhases returns the fixed three-phase sequence with the policy
// defaults described in SPEC_FULL.md §4.7.
func DefaultPhases() []Phase {
	return []Phase{
		{
			Name:      PhaseStructureDiscovery,
			Title:     "Structure Discovery",
			Objective: "map manifests, entrypoints, and overall repository shape",
			Layers:    []string{"manifest-reader", "entrypoint-finder"},
			Policy: PhasePolicy{
				MaxAttempts: 3, ForceToolModeAttempts: 2,
				Quota: Quota{MinTotalCalls: 4, MinReadCalls: 1, MinSearchCalls: 1, RequiredTools: []string{"LS"}},
			},
			TokenBudgetCap: 80_000,
		},
		{
			Name:      PhaseArchitectureTrace,
			Title:     "Architecture Trace",
			Objective: "trace how components found in structure discovery connect",
			Layers:    []string{"component-mapper", "dependency-tracer"},
			Policy: PhasePolicy{
				MaxAttempts: 3, ForceToolModeAttempts: 2,
				Quota: Quota{MinTotalCalls: 6, MinReadCalls: 3, MinSearchCalls: 1},
			},
			TokenBudgetCap: 100_000,
		},
		{
			Name:      PhaseConsistencyCheck,
			Title:     "Consistency Check",
			Objective: "verify or mark unverified the traced architecture against source",
			Layers:    []string{"verifier"},
			Policy: PhasePolicy{
				MaxAttempts: 2, ForceToolModeAttempts: 1,
				Quota: Quota{MinTotalCalls: 3, MinReadCalls: 2},
			},
			TokenBudgetCap: 80_000,
		},
	}
}

// LoadPhasesYAML parses an operator-supplied override of the phase policy
// set, falling back to DefaultPhases for any phase name it doesn't mention.
func LoadPhasesYAML(doc []byte) ([]Phase, error) {
	var overrides []Phase
	if err := yaml.Unmarshal(doc, &overrides); err != nil {
		return nil, fmt.Errorf("parsing phase policy yaml: %w", err)
	}
	byName := map[PhaseName]Phase{}
	for _, p := range DefaultPhases() {
		byName[p.Name] = p
	}
	for _, o := range overrides {
		byName[o.Name] = o
	}
	out := make([]Phase, 0, len(byName))
	for _, p := range DefaultPhases() {
		out = append(out, byName[p.Name])
	}
	return out, nil
}
