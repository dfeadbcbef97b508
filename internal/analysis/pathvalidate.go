package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

// pathToken matches a conservative path-like substring: contains a slash,
// reasonable length, no URL scheme, and restricted characters.
var pathToken = regexp.MustCompile(`[A-Za-z0-9._\-:/+@~#\\]{2,260}`)

var urlPrefixes = []string{"http://", "https://", "ftp://", "mailto:"}

// PathValidator scans synthesized text for path-like tokens and flags any
// that were never observed during the run.
type PathValidator struct{}

// NewPathValidator returns a validator with no configuration.
func NewPathValidator() *PathValidator { return &PathValidator{} }

// Validate scans text for path-like tokens and returns one issue string per
// token that looks like a real path but was never observed.
func (v *PathValidator) Validate(text string, observed map[string]struct{}) []string {
	var issues []string
	seen := map[string]bool{}

	for _, tok := range pathToken.FindAllString(text, -1) {
		if !looksLikePath(tok) {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if observedMatch(tok, observed) {
			continue
		}
		issues = append(issues, fmt.Sprintf("unverified path mention: %q", tok))
	}
	return issues
}

func looksLikePath(tok string) bool {
	if !strings.ContainsAny(tok, "/\\") {
		return false
	}
	for _, prefix := range urlPrefixes {
		if strings.HasPrefix(tok, prefix) {
			return false
		}
	}
	if strings.ContainsAny(tok, "*{}<>") {
		return false // regex/template marker, not a literal path
	}
	hasAlnum := false
	for _, r := range tok {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			hasAlnum = true
			break
		}
	}
	return hasAlnum
}

// observedMatch reports whether tok matches an observed path by equality or
// by prefix/suffix containment — synthesis text often trims a leading "./"
// or trails punctuation onto an otherwise exact path.
func observedMatch(tok string, observed map[string]struct{}) bool {
	clean := strings.Trim(tok, ".,;:)")
	for p := range observed {
		if p == tok || p == clean {
			return true
		}
		if strings.HasSuffix(p, clean) || strings.HasSuffix(clean, p) {
			return true
		}
	}
	return false
}
