package normalize

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCanonicalName(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"read", ToolRead, false},
		{"Grep", ToolGrep, false},
		{"LIST", ToolLS, false},
		{"pwd", ToolCwd, false},
		{"frobnicate", "", true},
	}
	for _, tc := range cases {
		got, err := CanonicalName(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("CanonicalName(%q): expected error", tc.raw)
			}
			var unsupported *ErrUnsupportedTool
			if !errors.As(err, &unsupported) {
				t.Errorf("CanonicalName(%q): expected ErrUnsupportedTool, got %T", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("CanonicalName(%q): unexpected error %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	call, err := Normalize(NormalizeContext{}, "glob", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Args["pattern"] != "**/*" || call.Args["path"] != "." {
		t.Errorf("unexpected defaults: %+v", call.Args)
	}
}

func TestNormalizeAnalysisPhaseDefaults(t *testing.T) {
	call, err := Normalize(NormalizeContext{AnalysisPhase: "structure"}, "glob", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Args["pattern"] != "*" || call.Args["head_limit"] != 120 {
		t.Errorf("unexpected analysis defaults: %+v", call.Args)
	}
}

func TestNormalizeRejectsBashDuringAnalysis(t *testing.T) {
	_, err := Normalize(NormalizeContext{AnalysisPhase: "structure"}, "bash", json.RawMessage(`{"command":"ls"}`))
	if err == nil {
		t.Fatal("expected error rejecting bash during analysis")
	}
	var rejected *ErrRejectedInAnalysis
	if !errors.As(err, &rejected) {
		t.Fatalf("expected ErrRejectedInAnalysis, got %T: %v", err, err)
	}
}

func TestNormalizeMissingRequiredArgument(t *testing.T) {
	_, err := Normalize(NormalizeContext{}, "grep", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected missing-argument error")
	}
	var missing *ErrMissingArgument
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingArgument, got %T: %v", err, err)
	}
}

func TestEnforceScopeRejectsExcludedRoot(t *testing.T) {
	_, err := Normalize(NormalizeContext{AnalysisPhase: "structure"}, "ls", json.RawMessage(`{"path":"node_modules/pkg"}`))
	if err == nil {
		t.Fatal("expected scope rejection")
	}
}

func TestEnforceScopeLiftedByUserMessage(t *testing.T) {
	call, err := Normalize(NormalizeContext{
		AnalysisPhase: "structure",
		UserMessage:   "why is node_modules so large?",
	}, "ls", json.RawMessage(`{"path":"node_modules/pkg"}`))
	if err != nil {
		t.Fatalf("expected exclusion to be lifted, got error: %v", err)
	}
	if call.Args["path"] != "node_modules/pkg" {
		t.Errorf("unexpected args: %+v", call.Args)
	}
}

func TestReadAcceptsPathAlias(t *testing.T) {
	call, err := Normalize(NormalizeContext{}, "read", json.RawMessage(`{"path":"main.go"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Args["file_path"] != "main.go" {
		t.Errorf("expected file_path alias to be filled, got %+v", call.Args)
	}
}
