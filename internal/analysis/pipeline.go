package analysis

import (
	"context"
	"fmt"
	"log/slog"
)

// Completer is the minimal LLM-calling surface the pipeline needs. The
// agentic loop's provider/executor pair is adapted to this interface at the
// call site (internal/agent/analyze_tool.go) rather than importing
// internal/agent here, which would create an import cycle (the loop invokes
// this package whenever the Analyze tool fires).
type Completer interface {
	// Complete runs one non-streaming turn: a worker/synthesis prompt in,
	// final text plus any tool calls it made out. Implementations are
	// responsible for running their own internal tool-execution rounds
	// (baseline passes and worker sub-agents are themselves bounded
	// agentic loops) and returning the accumulated PhaseCapture.
	Complete(ctx context.Context, prompt string, phase PhaseName, forceToolMode bool) (CompleterResult, error)
}

// CompleterResult is what one phase attempt produces.
type CompleterResult struct {
	Text    string
	Usage   Usage
	Capture *PhaseCapture
}

// AnalyzeRequest is the input to a full pipeline run.
type AnalyzeRequest struct {
	Query         string
	ProjectPath   string
	Profile       Profile
	ContextWindow int
	Inventory     *Inventory
	Phases        []Phase
}

// Report is the pipeline's terminal output.
type Report struct {
	Text           string
	Ledger         *Ledger
	Coverage       CoverageReport
	GatePassed     bool
	GateReasons    []string
	ValidationIssues []string
}

// Pipeline drives the fixed phase sequence, the coverage gate, the optional
// top-up pass, and synthesis.
type Pipeline struct {
	completer Completer
	validator *PathValidator
}

// NewPipeline constructs a Pipeline. completer supplies the LLM/tool-running
// surface; see Completer's doc comment for why it is an interface rather
// than a concrete agent.LLMProvider.
func NewPipeline(completer Completer) *Pipeline {
	return &Pipeline{completer: completer, validator: NewPathValidator()}
}

// Run executes structure discovery, architecture trace, and consistency
// check in sequence, gates the result, optionally tops up coverage, and
// synthesizes a final report.
func (p *Pipeline) Run(ctx context.Context, req AnalyzeRequest) (*Report, error) {
	phases := req.Phases
	if len(phases) == 0 {
		phases = DefaultPhases()
	}

	ledger := NewLedger(len(phases))
	ledger.Inventory = req.Inventory

	for _, phase := range phases {
		outcome, err := p.runPhase(ctx, phase, req)
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", phase.Name, err)
		}
		ledger.Merge(outcome)
	}

	targets := EffectiveTargets(req.Profile, inventorySize(req.Inventory))
	coverage := ledger.ComputeCoverage(req.Inventory)
	gate := ledger.Gate(targets)

	if !gate.Passed {
		topUp := SelectTopUpFiles(req.Inventory, ledger, targets)
		if len(topUp) > 0 {
			if err := p.topUp(ctx, ledger, topUp); err != nil {
				slog.Warn("analysis top-up pass failed", "error", err)
			}
			coverage = ledger.ComputeCoverage(req.Inventory)
			gate = ledger.Gate(targets)
		}
	}

	if !gate.Passed {
		return &Report{
			Text:        fallbackReport(ledger, gate),
			Ledger:      ledger,
			Coverage:    coverage,
			GatePassed:  false,
			GateReasons: gate.Reasons,
		}, nil
	}

	synthResult, err := p.completer.Complete(ctx, synthesisPrompt(req, ledger, coverage), "", false)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	issues := p.validator.Validate(synthResult.Text, ledger.ObservedPaths)
	text := synthResult.Text
	if len(issues) >= 1 && len(issues) < 8 {
		corrected, err := p.completer.Complete(ctx, correctionPrompt(synthResult.Text, issues), "", false)
		if err == nil {
			text = corrected.Text
			issues = p.validator.Validate(text, ledger.ObservedPaths)
		}
	}
	if len(issues) >= 8 {
		text = fallbackReport(ledger, GateResult{Passed: true})
	}

	return &Report{
		Text:             text,
		Ledger:           ledger,
		Coverage:         coverage,
		GatePassed:       true,
		ValidationIssues: issues,
	}, nil
}

func (p *Pipeline) runPhase(ctx context.Context, phase Phase, req AnalyzeRequest) (AnalysisPhaseOutcome, error) {
	maxAttempts := phase.Policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastResult CompleterResult
	var lastErr error
	status := PhaseFailed

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		forceTool := attempt <= phase.Policy.ForceToolModeAttempts
		prompt := workerPrompt(phase, req, attempt)

		result, err := p.completer.Complete(ctx, prompt, phase.Name, forceTool)
		if err != nil {
			lastErr = err
			continue
		}
		lastResult = result
		lastErr = nil

		quotaMet := phase.Policy.Quota.Satisfied(result.Capture)
		hasText := result.Text != ""

		switch {
		case quotaMet && hasText:
			status = PhasePassed
		case hasText && (result.Capture != nil && len(result.Capture.EvidenceLines) > 0):
			status = PhasePartial
		default:
			status = PhaseFailed
		}

		if status == PhasePassed {
			break
		}
		if status == PhasePartial && attempt == maxAttempts {
			break
		}
	}

	if lastErr != nil && status == PhaseFailed {
		return AnalysisPhaseOutcome{Phase: string(phase.Name), Status: PhaseFailed, Error: lastErr.Error()}, nil
	}

	return AnalysisPhaseOutcome{
		Phase:      string(phase.Name),
		Response:   lastResult.Text,
		Usage:      lastResult.Usage,
		Iterations: maxAttempts,
		Status:     status,
		Capture:    lastResult.Capture,
	}, nil
}

func (p *Pipeline) topUp(ctx context.Context, ledger *Ledger, files []string) error {
	prompt := topUpPrompt(files)
	result, err := p.completer.Complete(ctx, prompt, "", true)
	if err != nil {
		return err
	}
	if result.Capture != nil {
		for path := range result.Capture.ReadPaths {
			ledger.ReadPaths[path] = struct{}{}
			ledger.ObservedPaths[path] = struct{}{}
		}
		ledger.EvidenceLines = appendCapped(ledger.EvidenceLines, result.Capture.EvidenceLines, maxEvidenceLines)
	}
	return nil
}

func inventorySize(inv *Inventory) int {
	if inv == nil {
		return 0
	}
	return len(inv.Files)
}

func fallbackReport(ledger *Ledger, gate GateResult) string {
	out := "Analysis could not gather sufficient verified evidence to produce a full report.\n\n"
	if len(gate.Reasons) > 0 {
		out += "Unmet requirements:\n"
		for _, r := range gate.Reasons {
			out += "- " + r + "\n"
		}
		out += "\n"
	}
	paths := ledger.SortedObservedPaths()
	if len(paths) > 0 {
		out += "Paths observed during the run:\n"
		for _, p := range paths {
			out += "- " + p + "\n"
		}
	}
	return out
}
