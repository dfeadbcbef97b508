package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/agentcore/internal/agent/loopdetect"
	"github.com/flowforge/agentcore/internal/agent/memory"
	"github.com/flowforge/agentcore/internal/agent/normalize"
	"github.com/flowforge/agentcore/pkg/models"
)

// analysisPhaseKey is the context key an Analyze-tool-driven sub-run uses to
// tell the loop which phase is currently active, so normalization can
// enforce the reduced analysis-phase tool and path scope (§4.1).
type analysisPhaseKey struct{}

// WithAnalysisPhase marks ctx as running inside the named analysis phase.
func WithAnalysisPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, analysisPhaseKey{}, phase)
}

// AnalysisPhaseFromContext returns the active analysis phase name, or "" if
// none is set (i.e. this is an ordinary, non-analysis agentic run).
func AnalysisPhaseFromContext(ctx context.Context) string {
	phase, _ := ctx.Value(analysisPhaseKey{}).(string)
	return phase
}

// ErrLoopTerminatedByDetector is returned from executeToolsPhase when the
// loop detector escalates to its terminal level.
var ErrLoopTerminatedByDetector = fmt.Errorf("agentic loop terminated: repeating tool-call pattern detected")

// normalizeAndGuardTools canonicalizes every pending tool call's name and
// arguments, enforces analysis-phase scope, and feeds each call through the
// loop detector. Calls that fail normalization are converted in place into
// already-failed results by the caller (executeToolsPhase's existing policy
// checks run after this, so a call whose Name became invalid simply won't
// match any registered tool and fails there instead of panicking here).
//
// Returns a non-nil error only when the detector has escalated to
// LevelForceTerminate; the caller should stop the run.
func (l *AgenticLoop) normalizeAndGuardTools(ctx context.Context, state *LoopState, chunks chan<- *ResponseChunk) error {
	if len(state.PendingTools) == 0 {
		return nil
	}
	if state.ToolUsageCounts == nil {
		state.ToolUsageCounts = map[string]int{}
	}
	if state.detector == nil {
		state.detector = loopdetect.New(loopdetect.DefaultConfig())
	}

	nctx := normalize.NormalizeContext{AnalysisPhase: AnalysisPhaseFromContext(ctx)}

	for i := range state.PendingTools {
		tc := &state.PendingTools[i]

		normalized, err := normalize.Normalize(nctx, tc.Name, json.RawMessage(tc.Input))
		if err != nil {
			// Leave the raw call as-is; the registry lookup downstream will
			// fail it with a clear "tool not found"/validation error instead.
			continue
		}
		if encoded, err := json.Marshal(normalized.Args); err == nil {
			tc.Name = normalized.Name
			tc.Input = encoded
		}

		state.ToolUsageCounts[tc.Name]++

		fp := loopdetect.Fingerprint(tc.Name, normalized.Args)
		escalation := state.detector.Record(fp, false)

		switch escalation.Kind {
		case loopdetect.LevelWarning, loopdetect.LevelStripTools:
			l.steerIfPossible(ctx, escalation.Message)
		case loopdetect.LevelForceTerminate:
			l.steerIfPossible(ctx, escalation.Message)
			return ErrLoopTerminatedByDetector
		}
	}
	return nil
}

// steerIfPossible injects a repair/guidance message through the steering
// queue if the caller attached one to ctx (see steering.go).
func (l *AgenticLoop) steerIfPossible(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if q := SteeringQueueFromContext(ctx); q != nil {
		q.SteerText(text)
	}
}

// updateSessionMemory rebuilds the Layer-2 session-memory message whenever
// this round read any files, so a later compaction or a long tool sequence
// never forces the model to rediscover work it already did.
func (l *AgenticLoop) updateSessionMemory(state *LoopState, toolCalls []models.ToolCall, toolResults []models.ToolResult) {
	var filesRead []memory.FileRead
	resultByID := make(map[string]models.ToolResult, len(toolResults))
	for _, r := range toolResults {
		resultByID[r.ToolCallID] = r
	}
	for _, tc := range toolCalls {
		if tc.Name != normalize.ToolRead {
			continue
		}
		var args struct {
			FilePath string `json:"file_path"`
		}
		_ = json.Unmarshal(tc.Input, &args)
		if args.FilePath == "" {
			continue
		}
		res := resultByID[tc.ID]
		filesRead = append(filesRead, memory.FileRead{
			Path:  args.FilePath,
			Lines: countLines(res.Content),
			Bytes: len(res.Content),
		})
	}
	if len(filesRead) == 0 {
		return
	}

	memMessages := make([]memory.Message, len(state.Messages))
	for i, m := range state.Messages {
		memMessages[i] = memory.Message{Role: m.Role, Content: m.Content}
	}
	updated := l.memoryMgr.UpdateOrInsert(memMessages, "", filesRead, nil, state.ToolUsageCounts)

	if len(updated) == len(state.Messages) {
		// In-place replacement of the existing memory message: only its
		// content changed, so patch it back without disturbing anything else.
		for i := range updated {
			if updated[i].Content != memMessages[i].Content {
				state.Messages[i].Content = updated[i].Content
			}
		}
		return
	}

	// A new memory message was inserted; rebuild state.Messages with it spliced
	// in at the same index memory.ExpectedIndex used.
	insertAt := memory.ExpectedIndex
	if insertAt > len(state.Messages) {
		insertAt = len(state.Messages)
	}
	out := make([]CompletionMessage, 0, len(state.Messages)+1)
	out = append(out, state.Messages[:insertAt]...)
	out = append(out, CompletionMessage{Role: "assistant", Content: updated[insertAt].Content})
	out = append(out, state.Messages[insertAt:]...)
	state.Messages = out
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	count := 1
	for _, r := range s {
		if r == '\n' {
			count++
		}
	}
	return count
}
