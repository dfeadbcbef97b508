// Package fallback extracts tool calls from free-form model text for
// providers that do not reliably produce native tool-call blocks, and
// classifies response text as a complete answer, a narrated tool intent, or
// a pending (not-yet-executed) action.
package fallback

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// RawCall is an unvalidated tool call extracted from model text, ready to be
// passed through normalize.Normalize.
type RawCall struct {
	Tool string
	Args json.RawMessage
}

// ParseResult is the outcome of scanning a model turn's text and thinking
// channels for fenced tool-call blocks.
type ParseResult struct {
	Calls          []RawCall
	DroppedReasons []string
	CleanedText    string
}

// fenceBlock matches a fenced code block whose info string names a tool,
// e.g. ```tool_call:Read\n{"file_path": "x"}\n```.
var fenceBlock = regexp.MustCompile("(?s)```(?:tool_call|tool-call|tool)[:\\s]+([A-Za-z_]+)\\s*\\n(.*?)```")

// ExtractToolCalls scans both the visible text and the thinking channel for
// fenced tool-call blocks, deduplicates by tool+canonicalized-argument
// signature, and returns the cleaned text with those blocks removed.
func ExtractToolCalls(text, thinking string) ParseResult {
	result := ParseResult{}
	seen := map[string]bool{}

	for _, source := range []string{text, thinking} {
		matches := fenceBlock.FindAllStringSubmatchIndex(source, -1)
		for _, m := range matches {
			tool := source[m[2]:m[3]]
			body := strings.TrimSpace(source[m[4]:m[5]])

			var decoded any
			if err := json.Unmarshal([]byte(body), &decoded); err != nil {
				result.DroppedReasons = append(result.DroppedReasons,
					"malformed JSON arguments for tool "+tool+": "+err.Error())
				continue
			}
			canon, err := json.Marshal(decoded)
			if err != nil {
				result.DroppedReasons = append(result.DroppedReasons, "could not re-encode arguments for tool "+tool)
				continue
			}
			sig := strings.ToLower(tool) + ":" + string(canon)
			if seen[sig] {
				continue
			}
			seen[sig] = true
			result.Calls = append(result.Calls, RawCall{Tool: tool, Args: canon})
		}
	}

	result.CleanedText = fenceBlock.ReplaceAllString(text, "")
	result.CleanedText = strings.TrimSpace(result.CleanedText)
	return result
}

var intentPrefixes = []string{
	"i will", "i'll", "let me", "next i will", "i am going to", "i'm going to",
}

var danglingConjunctions = []string{"and", "but", "or", "then"}

// IsCompleteAnswer reports whether cleaned (tool-call blocks already
// stripped) reads as a finished, user-facing answer rather than a narration
// that trails off into unexecuted intent.
func IsCompleteAnswer(cleaned string) bool {
	cleaned = strings.TrimSpace(cleaned)
	if utf8.RuneCountInString(cleaned) <= 200 {
		return false
	}
	if strings.Count(cleaned, "```")%2 != 0 {
		return false
	}

	lastLine := lastNonEmptyLine(cleaned)
	if lastLine == "" {
		return false
	}
	trimmed := strings.TrimSpace(lastLine)
	lower := strings.ToLower(trimmed)

	for _, suffix := range []string{":", "...", "…"} {
		if strings.HasSuffix(trimmed, suffix) {
			return false
		}
	}
	for _, prefix := range intentPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	withoutComma := strings.TrimSuffix(lower, ",")
	for _, conj := range danglingConjunctions {
		if withoutComma == conj || strings.HasSuffix(withoutComma, " "+conj) {
			return false
		}
	}
	return true
}

func lastNonEmptyLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

var knownToolNames = []string{
	"read", "write", "edit", "bash", "glob", "grep", "ls", "cwd",
	"analyze", "task", "webfetch", "websearch", "notebookedit", "codebasesearch",
}

var intentPhrases = []string{
	"let me use", "i'll call", "i will call", "i'll use", "i will use",
	"going to use", "going to call",
	"调用", "执行", "使用工具",
}

// DescribesToolIntent reports whether text narrates an intent to invoke a
// tool (by name) without actually emitting a tool call.
func DescribesToolIntent(text string) bool {
	lower := strings.ToLower(text)
	hasTool := false
	for _, name := range knownToolNames {
		if strings.Contains(lower, name) {
			hasTool = true
			break
		}
	}
	if !hasTool {
		return false
	}
	for _, phrase := range intentPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// DescribesPendingAction reports whether text ends mid-intent — trailing off
// with an action phrase but producing no executable tool call.
func DescribesPendingAction(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	lastLine := strings.ToLower(lastNonEmptyLine(trimmed))
	for _, prefix := range intentPrefixes {
		if strings.HasPrefix(lastLine, prefix) {
			return true
		}
	}
	for _, suffix := range []string{":", "...", "…"} {
		if strings.HasSuffix(strings.TrimSpace(lastLine), suffix) {
			return true
		}
	}
	return false
}
