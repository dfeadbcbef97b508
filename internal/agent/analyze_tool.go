package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowforge/agentcore/internal/agent/fallback"
	"github.com/flowforge/agentcore/internal/agent/normalize"
	"github.com/flowforge/agentcore/internal/analysis"
	"github.com/flowforge/agentcore/pkg/models"
)

// maxCompleterToolRounds bounds how many tool-execution rounds a single
// Completer.Complete call may run before it is forced to return whatever
// text it has, so one phase attempt can never itself become an unbounded
// loop inside the outer analysis pipeline's own attempt loop.
const maxCompleterToolRounds = 8

// AnalyzeToolName is the canonical name the normalizer and tool registry use
// for the analysis-pipeline entry point.
const AnalyzeToolName = normalize.ToolAnalyze

// AnalyzeTool exposes internal/analysis's phased, evidence-gated analysis
// pipeline as an ordinary Tool, so the main agentic loop can dispatch to it
// exactly like any other tool call.
type AnalyzeTool struct {
	loop          *AgenticLoop
	model         string
	contextWindow int
}

// NewAnalyzeTool builds the Analyze tool bound to loop's provider/executor.
// model/contextWindow configure the sub-loop Complete uses internally; they
// are independent of whatever model the outer conversation is using, since
// analysis workers are typically run on a cheaper or more tool-reliable
// model than the main conversation.
func NewAnalyzeTool(loop *AgenticLoop, model string, contextWindow int) *AnalyzeTool {
	return &AnalyzeTool{loop: loop, model: model, contextWindow: contextWindow}
}

func (t *AnalyzeTool) Name() string { return AnalyzeToolName }

func (t *AnalyzeTool) Description() string {
	return "Run a deep, evidence-gated analysis pass over the project (structure discovery, architecture trace, consistency check) and return a synthesized report grounded only in files actually observed."
}

func (t *AnalyzeTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What to analyze or answer about the project"},
			"project_path": {"type": "string", "description": "Root directory to analyze"},
			"profile": {"type": "string", "enum": ["fast", "balanced", "deep_coverage"], "description": "How thorough the pass should be"}
		},
		"required": ["query"]
	}`)
}

func (t *AnalyzeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var args struct {
		Query       string `json:"query"`
		ProjectPath string `json:"project_path"`
		Profile     string `json:"profile"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid Analyze arguments: %w", err)
	}
	if args.Query == "" {
		return nil, ErrMissingAnalyzeQuery
	}

	inventory, err := buildInventory(args.ProjectPath)
	if err != nil {
		return &ToolResult{Content: "failed to build file inventory: " + err.Error(), IsError: true}, nil
	}

	completer := &loopCompleter{
		loop:          t.loop,
		model:         t.model,
		contextWindow: t.contextWindow,
		projectPath:   args.ProjectPath,
	}
	pipeline := analysis.NewPipeline(completer)

	req := analysis.AnalyzeRequest{
		Query:         args.Query,
		ProjectPath:   args.ProjectPath,
		Profile:       profileFromString(args.Profile),
		ContextWindow: t.contextWindow,
		Inventory:     inventory,
		Phases:        analysis.DefaultPhases(),
	}

	report, err := pipeline.Run(ctx, req)
	if err != nil {
		return &ToolResult{Content: "analysis failed: " + err.Error(), IsError: true}, nil
	}

	return &ToolResult{Content: report.Text}, nil
}

func profileFromString(s string) analysis.Profile {
	switch s {
	case "fast":
		return analysis.ProfileFast
	case "deep_coverage":
		return analysis.ProfileDeepCoverage
	default:
		return analysis.ProfileBalanced
	}
}

// ErrMissingAnalyzeQuery is returned when the Analyze tool is invoked
// without a query argument.
var ErrMissingAnalyzeQuery = fmt.Errorf("Analyze requires a non-empty query")

// loopCompleter adapts AgenticLoop's concrete LLMProvider/Executor pair to
// internal/analysis.Completer, running a small bounded tool-call loop per
// phase attempt entirely below the analysis package, which never imports
// internal/agent (see internal/analysis/pipeline.go's doc comment on
// Completer for why that import direction is avoided).
type loopCompleter struct {
	loop          *AgenticLoop
	model         string
	contextWindow int
	projectPath   string
}

func (c *loopCompleter) Complete(ctx context.Context, prompt string, phase analysis.PhaseName, forceToolMode bool) (analysis.CompleterResult, error) {
	phaseCtx := WithAnalysisPhase(ctx, string(phase))

	system := analysisWorkerSystemPrompt(c.projectPath, forceToolMode)
	tools := c.loop.executor.registry.AsLLMTools()

	messages := []CompletionMessage{{Role: "user", Content: prompt}}
	capture := analysis.NewPhaseCapture()
	var usage analysis.Usage

	for round := 0; round < maxCompleterToolRounds; round++ {
		req := &CompletionRequest{
			Model:     c.model,
			System:    system,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: 4096,
		}

		stream, err := c.loop.provider.Complete(phaseCtx, req)
		if err != nil {
			return analysis.CompleterResult{Text: "", Usage: usage, Capture: capture}, err
		}

		var textBuilder strings.Builder
		var toolCalls []models.ToolCall
		for chunk := range stream {
			if chunk.Error != nil {
				return analysis.CompleterResult{Text: textBuilder.String(), Usage: usage, Capture: capture}, chunk.Error
			}
			if chunk.Text != "" {
				textBuilder.WriteString(chunk.Text)
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
			if chunk.Done {
				usage = usage.Add(analysis.Usage{InputTokens: chunk.InputTokens, OutputTokens: chunk.OutputTokens})
			}
		}
		text := textBuilder.String()

		if len(toolCalls) == 0 {
			if fallbackCalls, cleaned, ok := extractFallbackCalls(text); ok {
				toolCalls = fallbackCalls
				text = cleaned
			}
		}

		if len(toolCalls) == 0 {
			return analysis.CompleterResult{Text: text, Usage: usage, Capture: capture}, nil
		}

		messages = append(messages, CompletionMessage{Role: "assistant", Content: text, ToolCalls: toolCalls})

		results := make([]models.ToolResult, len(toolCalls))
		for i, tc := range toolCalls {
			normalized, nerr := normalize.Normalize(normalize.NormalizeContext{AnalysisPhase: string(phase)}, tc.Name, tc.Input)
			name, argsJSON := tc.Name, tc.Input
			if nerr == nil {
				name = normalized.Name
				if encoded, merr := json.Marshal(normalized.Args); merr == nil {
					argsJSON = encoded
				}
			}
			capture.RecordToolCall(tc.ID, name, rawToMap(argsJSON))

			execResults := c.loop.executor.ExecuteAll(phaseCtx, []models.ToolCall{{ID: tc.ID, Name: name, Input: argsJSON}})
			if len(execResults) == 0 || execResults[0].Result == nil {
				results[i] = models.ToolResult{ToolCallID: tc.ID, Content: "no result", IsError: true}
				capture.RecordToolResult(tc.ID, "no result", true)
				continue
			}
			res := execResults[0].Result
			results[i] = models.ToolResult{ToolCallID: tc.ID, Content: res.Content, IsError: res.IsError}
			capture.RecordToolResult(tc.ID, res.Content, res.IsError)
		}

		messages = append(messages, toolResultsMessage(results))
	}

	return analysis.CompleterResult{Text: "", Usage: usage, Capture: capture}, nil
}

func toolResultsMessage(results []models.ToolResult) CompletionMessage {
	return CompletionMessage{Role: "tool", ToolResults: results}
}

func extractFallbackCalls(text string) ([]models.ToolCall, string, bool) {
	result := fallback.ExtractToolCalls(text, "")
	if len(result.Calls) == 0 {
		return nil, text, false
	}
	calls := make([]models.ToolCall, len(result.Calls))
	for i, rc := range result.Calls {
		calls[i] = models.ToolCall{ID: fmt.Sprintf("fallback-%d", i), Name: rc.Tool, Input: rc.Args}
	}
	return calls, result.CleanedText, true
}

func rawToMap(raw json.RawMessage) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

func analysisWorkerSystemPrompt(projectPath string, forceToolMode bool) string {
	var b strings.Builder
	b.WriteString("You are an analysis worker restricted to read-only inspection tools. ")
	if projectPath != "" {
		fmt.Fprintf(&b, "The project root is %s. ", projectPath)
	}
	if forceToolMode {
		b.WriteString("You must call at least one tool before producing any text in this turn.")
	}
	return b.String()
}

func buildInventory(projectPath string) (*analysis.Inventory, error) {
	files, testFiles, err := listProjectFiles(projectPath)
	if err != nil {
		return nil, err
	}
	return &analysis.Inventory{Files: files, TestFiles: testFiles}, nil
}
