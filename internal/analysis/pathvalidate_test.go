package analysis

import "testing"

func TestPathValidatorFlagsUnobserved(t *testing.T) {
	v := NewPathValidator()
	observed := map[string]struct{}{"internal/agent/loop.go": {}}
	issues := v.Validate("The bug lives in internal/agent/runtime.go near the top.", observed)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d: %v", len(issues), issues)
	}
}

func TestPathValidatorAllowsObserved(t *testing.T) {
	v := NewPathValidator()
	observed := map[string]struct{}{"internal/agent/loop.go": {}}
	issues := v.Validate("The bug lives in internal/agent/loop.go near the top.", observed)
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestPathValidatorIgnoresURLs(t *testing.T) {
	v := NewPathValidator()
	issues := v.Validate("See https://example.com/docs/path for details.", map[string]struct{}{})
	if len(issues) != 0 {
		t.Fatalf("expected URLs to be ignored, got %v", issues)
	}
}
