package analysis

import "testing"

func TestPhaseCaptureRecordToolCallAndResult(t *testing.T) {
	c := NewPhaseCapture()
	c.RecordToolCall("call-1", "Read", map[string]any{"file_path": "a.go"})
	if c.ToolCounts["Read"] != 1 {
		t.Fatalf("expected Read count 1, got %d", c.ToolCounts["Read"])
	}
	if _, ok := c.ReadPaths["a.go"]; !ok {
		t.Fatalf("expected a.go recorded as a read path")
	}
	c.RecordToolResult("call-1", "package main", false)
	if _, pending := c.PendingCalls["call-1"]; pending {
		t.Errorf("expected pending call cleared after result")
	}
	if len(c.EvidenceLines) != 1 {
		t.Errorf("expected 1 evidence line, got %d", len(c.EvidenceLines))
	}
}

func TestPhaseCaptureRecordsWarningOnError(t *testing.T) {
	c := NewPhaseCapture()
	c.RecordToolCall("call-1", "Read", map[string]any{"file_path": "missing.go"})
	c.RecordToolResult("call-1", "no such file", true)
	if len(c.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(c.Warnings))
	}
	if len(c.EvidenceLines) != 0 {
		t.Errorf("expected no evidence line recorded for an error result")
	}
}

func TestLedgerMergeCountsStatuses(t *testing.T) {
	l := NewLedger(2)
	l.Merge(AnalysisPhaseOutcome{Phase: "p1", Status: PhasePassed, Response: "ok"})
	l.Merge(AnalysisPhaseOutcome{Phase: "p2", Status: PhasePartial, Response: "partial"})
	if l.SuccessfulPhases != 1 || l.PartialPhases != 1 {
		t.Fatalf("unexpected phase counts: success=%d partial=%d", l.SuccessfulPhases, l.PartialPhases)
	}
	if len(l.PhaseSummaries) != 2 {
		t.Errorf("expected 2 phase summaries, got %d", len(l.PhaseSummaries))
	}
}
