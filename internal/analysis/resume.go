package analysis

import (
	"context"
	"encoding/json"
	"fmt"
)

// ArtifactStore is the minimal persistence surface resume and the pipeline
// need. internal/analysis/artifacts provides a local-filesystem and an
// S3-backed implementation.
type ArtifactStore interface {
	Read(ctx context.Context, runID, relPath string) ([]byte, error)
	Write(ctx context.Context, runID, relPath string, data []byte) error
	List(ctx context.Context, runID, prefix string) ([]string, error)
}

// manifest is the run-level index written after each completed phase,
// mirroring original_source's resumable run design.
type manifest struct {
	RunID           string   `json:"run_id"`
	CompletedPhases []string `json:"completed_phases"`
}

// WriteManifest persists the current completed-phase list so a killed run
// can resume instead of restarting from phase one.
func WriteManifest(ctx context.Context, store ArtifactStore, runID string, completedPhases []string) error {
	m := manifest{RunID: runID, CompletedPhases: completedPhases}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return store.Write(ctx, runID, "manifest.json", data)
}

// ResumeRun reconstructs ledger state for every phase already marked
// complete in the persisted manifest, and returns the name of the first
// phase that still needs to run.
func ResumeRun(ctx context.Context, store ArtifactStore, runID string, allPhases []Phase) (*Ledger, PhaseName, error) {
	data, err := store.Read(ctx, runID, "manifest.json")
	if err != nil {
		// No manifest yet: fresh run, start at phase one.
		return NewLedger(len(allPhases)), allPhases[0].Name, nil
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", fmt.Errorf("decoding manifest: %w", err)
	}

	done := map[string]bool{}
	for _, p := range m.CompletedPhases {
		done[p] = true
	}

	ledger := NewLedger(len(allPhases))
	for _, phase := range allPhases {
		if !done[string(phase.Name)] {
			continue
		}
		summary, err := store.Read(ctx, runID, "phases/"+string(phase.Name)+"/summary.md")
		if err != nil {
			continue
		}
		ledger.Merge(AnalysisPhaseOutcome{
			Phase:    string(phase.Name),
			Response: string(summary),
			Status:   PhasePassed,
		})
	}

	for _, phase := range allPhases {
		if !done[string(phase.Name)] {
			return ledger, phase.Name, nil
		}
	}
	return ledger, "", nil
}
