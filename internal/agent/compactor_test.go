package agent

import (
	"context"
	"strings"
	"testing"

	agentctx "github.com/flowforge/agentcore/internal/agent/context"
	"github.com/flowforge/agentcore/pkg/models"
)

func TestPrefixStableCompactorKeepsEndsDeterministically(t *testing.T) {
	msgs := make([]*models.Message, 0, 30)
	for i := 0; i < 30; i++ {
		msgs = append(msgs, &models.Message{Role: models.RoleUser, Content: "msg"})
	}
	c := NewPrefixStableCompactor(2, 5)

	result, err := c.Compact(context.Background(), "s1", msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Messages) != 2+1+5 {
		t.Fatalf("expected 8 messages, got %d", len(result.Messages))
	}
	if result.Dropped != 23 {
		t.Errorf("expected 23 dropped, got %d", result.Dropped)
	}

	result2, err := c.Compact(context.Background(), "s1", msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2.Messages[2].Content != result.Messages[2].Content {
		t.Error("expected deterministic output for identical input")
	}
}

func TestPrefixStableCompactorNoopWhenShort(t *testing.T) {
	msgs := []*models.Message{{Role: models.RoleUser, Content: "hi"}}
	c := NewPrefixStableCompactor(2, 5)
	result, err := c.Compact(context.Background(), "s1", msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Messages) != 1 || result.Dropped != 0 {
		t.Fatalf("expected passthrough, got %+v", result)
	}
}

func TestAnalysisTrimCompactorTruncatesOnlyToolResults(t *testing.T) {
	longContent := strings.Repeat("x", 10000)
	msgs := []*models.Message{
		{Role: models.RoleUser, Content: longContent},
		{Role: models.RoleTool, Content: longContent},
	}
	c := NewAnalysisTrimCompactor(100)

	result, err := c.Compact(context.Background(), "s1", msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Messages[0].Content) != 10000 {
		t.Error("expected non-tool message left untouched")
	}
	if len(result.Messages[1].Content) >= 10000 {
		t.Error("expected tool result truncated")
	}
	if result.Dropped == 0 {
		t.Error("expected dropped byte count to be reported")
	}
}

func TestSelectCompactorPicksStrategyByReliability(t *testing.T) {
	if _, ok := SelectCompactor(ReliabilityLow, nil, agentctx.DefaultContextPruningSettings(), 30000).(*PrefixStableCompactor); !ok {
		t.Error("expected PrefixStableCompactor for low reliability")
	}
	if _, ok := SelectCompactor(ReliabilityMedium, nil, agentctx.DefaultContextPruningSettings(), 30000).(*AnalysisTrimCompactor); !ok {
		t.Error("expected AnalysisTrimCompactor for medium reliability")
	}
	if _, ok := SelectCompactor(ReliabilityHigh, nil, agentctx.DefaultContextPruningSettings(), 30000).(*ReliableCompactor); !ok {
		t.Error("expected ReliableCompactor for high reliability")
	}
}
