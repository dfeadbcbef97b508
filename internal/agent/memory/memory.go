// Package memory maintains the single Layer-2 session-memory message in an
// agentic loop's conversation: a running record of files already read and
// key findings, so the model is never asked to re-discover what it already
// knows after a compaction or a long tool-call sequence.
package memory

import (
	"fmt"
	"sort"
	"strings"
)

// Message is the minimal shape this package needs from a conversation
// message. Callers convert their own message type (e.g. agent.CompletionMessage)
// to and from Message at the call site, keeping this package free of a
// dependency on internal/agent.
type Message struct {
	Role    string
	Content string
}

// Marker is the literal prefix identifying the session-memory message.
// Exactly one message in a conversation may carry it.
const Marker = "[SESSION_MEMORY_V1]"

// ExpectedIndex is where the memory message is inserted when none exists yet
// — immediately after the system/first message.
const ExpectedIndex = 1

const maxFindings = 15

// FileRead records that a file has already been read by a tool call, so the
// model is instructed not to re-read it.
type FileRead struct {
	Path  string
	Lines int
	Bytes int
}

// Manager owns the rendering and placement logic for the session-memory
// message. It holds no state of its own — all state lives in the message
// list the caller passes in — so a Manager is safe to share across runs.
type Manager struct{}

// New returns a Manager. Included for symmetry with the other new
// component constructors; Manager carries no configuration today.
func New() *Manager { return &Manager{} }

// HasMarker reports whether msg is the session-memory message.
func HasMarker(msg Message) bool {
	return strings.Contains(msg.Content, Marker)
}

// FindIndex returns the index of the session-memory message, or -1 if none
// of the messages carry the marker.
func FindIndex(messages []Message) int {
	for i, m := range messages {
		if HasMarker(m) {
			return i
		}
	}
	return -1
}

// UpdateOrInsert replaces the existing session-memory message in place, or
// inserts a freshly rendered one at ExpectedIndex when none exists yet.
// taskDescription, filesRead, and findings are merged into the rendered
// content; toolUsage is rendered as a count-sorted histogram.
func (m *Manager) UpdateOrInsert(
	messages []Message,
	taskDescription string,
	filesRead []FileRead,
	findings []string,
	toolUsage map[string]int,
) []Message {
	content := render(taskDescription, filesRead, dedupeFindings(findings), toolUsage)
	memMsg := Message{Role: "assistant", Content: content}

	if idx := FindIndex(messages); idx >= 0 {
		out := append([]Message(nil), messages...)
		out[idx] = memMsg
		return out
	}

	insertAt := ExpectedIndex
	if insertAt > len(messages) {
		insertAt = len(messages)
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, messages[:insertAt]...)
	out = append(out, memMsg)
	out = append(out, messages[insertAt:]...)
	return out
}

func dedupeFindings(findings []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		f = strings.TrimSpace(f)
		if len(f) < 20 || len(f) > 300 {
			continue
		}
		key := strings.ToLower(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
		if len(out) >= maxFindings {
			break
		}
	}
	return out
}

func render(taskDescription string, filesRead []FileRead, findings []string, toolUsage map[string]int) string {
	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString("\n")

	if taskDescription != "" {
		task := taskDescription
		if len(task) > 500 {
			task = task[:500] + "…"
		}
		fmt.Fprintf(&b, "Task: %s\n\n", task)
	}

	if len(filesRead) > 0 {
		b.WriteString("Files already read (do NOT re-read these):\n")
		for _, f := range filesRead {
			fmt.Fprintf(&b, "- %s (%d lines, %d bytes)\n", f.Path, f.Lines, f.Bytes)
		}
		b.WriteString("\n")
	}

	if len(findings) > 0 {
		b.WriteString("Key findings so far:\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(toolUsage) > 0 {
		type kv struct {
			tool  string
			count int
		}
		usage := make([]kv, 0, len(toolUsage))
		for tool, count := range toolUsage {
			usage = append(usage, kv{tool, count})
		}
		sort.Slice(usage, func(i, j int) bool {
			if usage[i].count != usage[j].count {
				return usage[i].count > usage[j].count
			}
			return usage[i].tool < usage[j].tool
		})
		b.WriteString("Tool usage:\n")
		for _, u := range usage {
			fmt.Fprintf(&b, "- %s: %d\n", u.tool, u.count)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
