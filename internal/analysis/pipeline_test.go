package analysis

import (
	"context"
	"strings"
	"testing"
)

type fakeCompleter struct {
	responses []CompleterResult
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, phase PhaseName, forceToolMode bool) (CompleterResult, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func capture(tool string, paths ...string) *PhaseCapture {
	c := NewPhaseCapture()
	c.ToolCounts[tool] = len(paths)
	c.ToolCounts["Read"] += len(paths)
	c.ToolCounts["Grep"] = 2
	c.ToolCounts["LS"] = 1
	for i, p := range paths {
		c.ObservedPaths[p] = struct{}{}
		c.ReadPaths[p] = struct{}{}
		c.EvidenceLines = append(c.EvidenceLines, "line "+string(rune('a'+i)))
	}
	return c
}

func TestPipelineRunPassesGateAndSynthesizes(t *testing.T) {
	inv := &Inventory{Files: []string{"a.go", "b.go"}, TestFiles: nil}
	phaseResult := CompleterResult{Text: "structure found", Capture: capture("Read", "a.go", "b.go")}
	completer := &fakeCompleter{responses: []CompleterResult{
		phaseResult, phaseResult, phaseResult, // 3 phases
		{Text: "final synthesized report mentioning a.go"},
	}}
	p := NewPipeline(completer)
	req := AnalyzeRequest{Query: "explain the system", Inventory: inv, Profile: ProfileFast}

	report, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.GatePassed {
		t.Fatalf("expected gate to pass, reasons: %v", report.GateReasons)
	}
	if !strings.Contains(report.Text, "a.go") {
		t.Errorf("expected synthesized text preserved, got: %s", report.Text)
	}
}

func TestPipelineRunFallsBackOnGateFailure(t *testing.T) {
	emptyResult := CompleterResult{Text: "", Capture: NewPhaseCapture()}
	completer := &fakeCompleter{responses: []CompleterResult{emptyResult}}
	p := NewPipeline(completer)
	req := AnalyzeRequest{Query: "explain the system", Profile: ProfileDeepCoverage}

	report, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.GatePassed {
		t.Fatal("expected gate to fail on empty evidence")
	}
	if !strings.Contains(report.Text, "Unmet requirements") {
		t.Errorf("expected fallback report text, got: %s", report.Text)
	}
}
