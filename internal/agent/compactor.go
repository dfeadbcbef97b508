package agent

import (
	"context"
	"strconv"

	agentctx "github.com/flowforge/agentcore/internal/agent/context"
	"github.com/flowforge/agentcore/pkg/models"
)

// Compactor reduces a message history to fit within a context budget. The
// loop selects an implementation per provider based on
// LLMProvider.ToolCallReliability: a provider with flaky tool-call replay
// gets the cheapest, most deterministic strategy rather than one that
// depends on the provider re-reading its own prior tool calls faithfully.
type Compactor interface {
	// Compact returns a possibly-shortened message list plus the number of
	// messages/chars it dropped, for diagnostics.
	Compact(ctx context.Context, sessionID string, messages []*models.Message) (CompactResult, error)
}

// CompactResult reports what a Compactor did.
type CompactResult struct {
	Messages []*models.Message
	Dropped  int
}

// ToolCallReliability describes how well a provider replays multi-turn tool
// call/result pairs after compaction rewrites history around them.
type ToolCallReliability int

const (
	// ReliabilityHigh providers tolerate a rolling-summary compactor that
	// collapses old turns into prose; they re-derive tool intent fine from
	// a summary alone.
	ReliabilityHigh ToolCallReliability = iota
	// ReliabilityMedium providers want the literal tool-call/result message
	// pairs kept intact near the end of history, summarizing only the
	// oldest part.
	ReliabilityMedium
	// ReliabilityLow providers get confused by any reordering or
	// rewriting of tool-call history at all; only a cheap prefix/suffix
	// trim is safe for them.
	ReliabilityLow
)

// ReliableCompactor wraps the rolling-summary/pruning pipeline
// (internal/agent/context) that already existed for providers whose tool
// call replay tolerates history rewriting.
type ReliableCompactor struct {
	summarizer *agentctx.Summarizer
	settings   agentctx.ContextPruningSettings
	charWindow int
}

// NewReliableCompactor builds a ReliableCompactor around an existing
// Summarizer and pruning settings.
func NewReliableCompactor(summarizer *agentctx.Summarizer, settings agentctx.ContextPruningSettings, charWindow int) *ReliableCompactor {
	return &ReliableCompactor{summarizer: summarizer, settings: settings, charWindow: charWindow}
}

// Compact prunes tool-result bulk first, then rolls the remaining overflow
// into a summary message if the provider configured one.
func (c *ReliableCompactor) Compact(ctx context.Context, sessionID string, messages []*models.Message) (CompactResult, error) {
	before := len(messages)
	pruned := agentctx.PruneContextMessages(messages, c.settings, c.charWindow)

	if c.summarizer == nil || !c.summarizer.ShouldSummarize(pruned, nil) {
		return CompactResult{Messages: pruned, Dropped: before - len(pruned)}, nil
	}

	summaryMsg, err := c.summarizer.Summarize(ctx, sessionID, pruned, nil)
	if err != nil {
		return CompactResult{Messages: pruned, Dropped: before - len(pruned)}, err
	}

	out := make([]*models.Message, 0, len(pruned)+1)
	out = append(out, summaryMsg)
	out = append(out, pruned...)
	return CompactResult{Messages: out, Dropped: before - len(out) + 1}, nil
}

// PrefixStableCompactor keeps the first N messages (system/task framing)
// and the most recent M messages byte-for-byte untouched, dropping only
// the run of messages in between. No summarization, no rewriting of
// surviving tool-call pairs — deterministic output for a given input,
// which is what a medium-reliability provider needs to keep replaying
// tool calls correctly across a compaction boundary.
type PrefixStableCompactor struct {
	KeepPrefix int
	KeepSuffix int
}

// NewPrefixStableCompactor returns a compactor keeping keepPrefix messages
// from the start and keepSuffix from the end untouched.
func NewPrefixStableCompactor(keepPrefix, keepSuffix int) *PrefixStableCompactor {
	if keepPrefix <= 0 {
		keepPrefix = 2
	}
	if keepSuffix <= 0 {
		keepSuffix = 20
	}
	return &PrefixStableCompactor{KeepPrefix: keepPrefix, KeepSuffix: keepSuffix}
}

func (c *PrefixStableCompactor) Compact(ctx context.Context, sessionID string, messages []*models.Message) (CompactResult, error) {
	if len(messages) <= c.KeepPrefix+c.KeepSuffix {
		return CompactResult{Messages: messages}, nil
	}

	dropped := len(messages) - c.KeepPrefix - c.KeepSuffix
	out := make([]*models.Message, 0, c.KeepPrefix+c.KeepSuffix+1)
	out = append(out, messages[:c.KeepPrefix]...)
	out = append(out, &models.Message{
		Role:    models.RoleAssistant,
		Content: "[compacted: " + strconv.Itoa(dropped) + " earlier messages omitted]",
	})
	out = append(out, messages[len(messages)-c.KeepSuffix:]...)
	return CompactResult{Messages: out, Dropped: dropped}, nil
}

// AnalysisTrimCompactor is the cheapest strategy: it only truncates
// individual tool-result contents down to a byte cap, never removing or
// reordering messages. Analysis phases run many large Read/Grep results
// through a short-lived worker conversation that never needs true
// rolling-summary compaction — trimming bulky evidence text is enough to
// stay under budget and is always safe regardless of provider reliability.
type AnalysisTrimCompactor struct {
	MaxResultChars int
}

// NewAnalysisTrimCompactor returns a compactor capping each tool-result
// message's content length at maxResultChars.
func NewAnalysisTrimCompactor(maxResultChars int) *AnalysisTrimCompactor {
	if maxResultChars <= 0 {
		maxResultChars = 4000
	}
	return &AnalysisTrimCompactor{MaxResultChars: maxResultChars}
}

func (c *AnalysisTrimCompactor) Compact(ctx context.Context, sessionID string, messages []*models.Message) (CompactResult, error) {
	dropped := 0
	out := make([]*models.Message, len(messages))
	for i, m := range messages {
		if m.Role != models.RoleTool || len(m.Content) <= c.MaxResultChars {
			out[i] = m
			continue
		}
		cut := m.Content[:c.MaxResultChars]
		dropped += len(m.Content) - len(cut)
		clone := *m
		clone.Content = cut + "...[truncated]"
		out[i] = &clone
	}
	return CompactResult{Messages: out, Dropped: dropped}, nil
}

// ReliabilityReporter is an optional capability an LLMProvider can implement
// to declare its tool-call reliability tier. Providers that don't implement
// it are treated as ReliabilityHigh (the existing rolling-summary behavior),
// so adding this is non-breaking for every provider already in the tree.
type ReliabilityReporter interface {
	ToolCallReliability() ToolCallReliability
}

// reliabilityOf inspects provider for ReliabilityReporter, defaulting to
// ReliabilityHigh.
func reliabilityOf(provider LLMProvider) ToolCallReliability {
	if r, ok := provider.(ReliabilityReporter); ok {
		return r.ToolCallReliability()
	}
	return ReliabilityHigh
}

// SelectCompactor picks the compaction strategy for a provider's declared
// tool-call reliability.
func SelectCompactor(reliability ToolCallReliability, summarizer *agentctx.Summarizer, pruning agentctx.ContextPruningSettings, charWindow int) Compactor {
	switch reliability {
	case ReliabilityLow:
		return NewPrefixStableCompactor(2, 20)
	case ReliabilityMedium:
		return NewAnalysisTrimCompactor(4000)
	default:
		return NewReliableCompactor(summarizer, pruning, charWindow)
	}
}
