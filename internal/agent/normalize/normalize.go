// Package normalize canonicalizes raw tool-call names and arguments before
// they reach the tool executor, and enforces the reduced scope a running
// analysis phase is allowed to touch.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Canonical tool names. These are the only names the normalizer ever emits.
const (
	ToolRead          = "Read"
	ToolWrite         = "Write"
	ToolEdit          = "Edit"
	ToolBash          = "Bash"
	ToolGlob          = "Glob"
	ToolGrep          = "Grep"
	ToolLS            = "LS"
	ToolCwd           = "Cwd"
	ToolAnalyze       = "Analyze"
	ToolTask          = "Task"
	ToolWebFetch      = "WebFetch"
	ToolWebSearch     = "WebSearch"
	ToolNotebookEdit  = "NotebookEdit"
	ToolCodebaseSearch = "CodebaseSearch"
)

var canonicalTools = map[string]string{
	"read": ToolRead, "write": ToolWrite, "edit": ToolEdit, "bash": ToolBash,
	"glob": ToolGlob, "grep": ToolGrep, "ls": ToolLS, "list": ToolLS,
	"cwd": ToolCwd, "pwd": ToolCwd,
	"analyze": ToolAnalyze, "analysis": ToolAnalyze,
	"task": ToolTask, "delegate": ToolTask,
	"webfetch": ToolWebFetch, "fetch": ToolWebFetch,
	"websearch": ToolWebSearch, "search": ToolWebSearch,
	"notebookedit": ToolNotebookEdit,
	"codebasesearch": ToolCodebaseSearch,
}

// defaultExcludedRoots mirrors directories an analysis phase never walks
// unless the user's own message names one explicitly.
var defaultExcludedRoots = []string{
	".git", "node_modules", "target", "dist", "build",
	"coverage", ".venv", ".pytest_cache", ".mypy_cache", ".ruff_cache",
}

// scopedArgKeys are the argument keys checked against the excluded-roots set.
var scopedArgKeys = map[string]bool{
	"path": true, "file_path": true, "working_dir": true,
	"notebook_path": true, "path_hint": true,
}

// toolsDisabledInAnalysis may never be invoked while an analysis phase is active.
var toolsDisabledInAnalysis = map[string]bool{
	ToolBash: true, ToolWrite: true, ToolEdit: true, ToolTask: true,
	ToolWebFetch: true, ToolWebSearch: true, ToolNotebookEdit: true,
}

// ErrUnsupportedTool is returned when the raw name matches no known alias.
type ErrUnsupportedTool struct{ Raw string }

func (e *ErrUnsupportedTool) Error() string { return fmt.Sprintf("unsupported tool: %q", e.Raw) }

// ErrRejectedInAnalysis is returned when a tool or argument is not permitted
// while an analysis phase is active.
type ErrRejectedInAnalysis struct{ Reason string }

func (e *ErrRejectedInAnalysis) Error() string { return e.Reason }

// ErrMissingArgument is returned when a required argument is absent or empty.
type ErrMissingArgument struct {
	Tool string
	Key  string
}

func (e *ErrMissingArgument) Error() string {
	return fmt.Sprintf("%s: missing required argument %q", e.Tool, e.Key)
}

// NormalizeContext carries the information needed to fill in defaults and
// enforce analysis-phase scope restrictions.
type NormalizeContext struct {
	// AnalysisPhase is non-empty when an analysis phase is currently running.
	AnalysisPhase string
	// ExcludedRoots overrides the default excluded-directory set. Nil uses the default.
	ExcludedRoots []string
	// UserMessage is scanned for explicit directory mentions that lift an exclusion.
	UserMessage string
}

// NormalizedCall is a canonical tool name paired with filled-in, validated arguments.
type NormalizedCall struct {
	Name string
	Args map[string]any
}

// CanonicalName resolves a raw tool name to its canonical form.
func CanonicalName(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if name, ok := canonicalTools[key]; ok {
		return name, nil
	}
	return "", &ErrUnsupportedTool{Raw: raw}
}

// Normalize canonicalizes the tool name, fills in defaults for the resulting
// canonical tool, and — when an analysis phase is active — enforces the
// reduced tool and path scope analysis phases operate under.
func Normalize(nctx NormalizeContext, rawName string, rawArgs json.RawMessage) (*NormalizedCall, error) {
	name, err := CanonicalName(rawName)
	if err != nil {
		return nil, err
	}

	args := map[string]any{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("%s: invalid arguments: %w", name, err)
		}
	}

	inAnalysis := nctx.AnalysisPhase != ""
	if inAnalysis && toolsDisabledInAnalysis[name] {
		return nil, &ErrRejectedInAnalysis{Reason: fmt.Sprintf("%s is disabled during analysis phase %s", name, nctx.AnalysisPhase)}
	}

	if err := fillDefaults(name, args, inAnalysis); err != nil {
		return nil, err
	}

	if inAnalysis {
		if err := enforceScope(nctx, args); err != nil {
			return nil, err
		}
	}

	return &NormalizedCall{Name: name, Args: args}, nil
}

func fillDefaults(name string, args map[string]any, inAnalysis bool) error {
	switch name {
	case ToolCwd:
		// no arguments
	case ToolLS:
		setDefault(args, "path", ".")
	case ToolGlob:
		if inAnalysis {
			setDefault(args, "pattern", "*")
			setDefault(args, "path", ".")
			setDefault(args, "head_limit", 120)
		} else {
			setDefault(args, "pattern", "**/*")
			setDefault(args, "path", ".")
		}
	case ToolGrep:
		if !nonEmptyString(args, "pattern") {
			return &ErrMissingArgument{Tool: name, Key: "pattern"}
		}
		setDefault(args, "path", ".")
		if inAnalysis {
			setDefault(args, "output_mode", "files_with_matches")
			setDefault(args, "head_limit", 40)
		}
	case ToolRead:
		if p, ok := args["path"]; ok {
			if _, hasFilePath := args["file_path"]; !hasFilePath {
				args["file_path"] = p
			}
			delete(args, "path")
		}
		if !nonEmptyString(args, "file_path") {
			return &ErrMissingArgument{Tool: name, Key: "file_path"}
		}
		if inAnalysis {
			setDefault(args, "offset", 1)
			setDefault(args, "limit", 120)
		}
	case ToolBash:
		if !nonEmptyString(args, "command") {
			return &ErrMissingArgument{Tool: name, Key: "command"}
		}
	case ToolAnalyze:
		if !nonEmptyString(args, "query") && !nonEmptyString(args, "prompt") {
			return &ErrMissingArgument{Tool: name, Key: "query"}
		}
		setDefault(args, "mode", "auto")
	default:
		// Write/Edit/Task/WebFetch/WebSearch/NotebookEdit/CodebaseSearch: pass through.
	}
	return nil
}

func setDefault(args map[string]any, key string, value any) {
	if _, ok := args[key]; !ok {
		args[key] = value
	}
}

func nonEmptyString(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func enforceScope(nctx NormalizeContext, args map[string]any) error {
	excluded := defaultExcludedRoots
	if nctx.ExcludedRoots != nil {
		excluded = nctx.ExcludedRoots
	}
	msgLower := strings.ToLower(nctx.UserMessage)

	for key, val := range args {
		if !scopedArgKeys[key] {
			continue
		}
		s, ok := val.(string)
		if !ok || s == "" {
			continue
		}
		seg := firstSegment(s)
		for _, root := range excluded {
			if !strings.EqualFold(seg, root) {
				continue
			}
			if strings.Contains(msgLower, strings.ToLower(root)) {
				continue // user explicitly asked about it; exclusion lifted
			}
			return &ErrRejectedInAnalysis{Reason: fmt.Sprintf("path %q is outside the analysis scope (excluded root %q)", s, root)}
		}
	}
	return nil
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if idx := strings.IndexAny(p, "/\\"); idx >= 0 {
		return p[:idx]
	}
	return p
}

// SortedExcludedRoots is exposed for deterministic logging/testing of the
// default exclusion set.
func SortedExcludedRoots() []string {
	out := append([]string(nil), defaultExcludedRoots...)
	sort.Strings(out)
	return out
}
