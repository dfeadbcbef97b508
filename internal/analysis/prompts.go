package analysis

import (
	"strconv"
	"strings"
)

func workerPrompt(phase Phase, req AnalyzeRequest, attempt int) string {
	var b strings.Builder
	b.WriteString("Phase: " + phase.Title + "\n")
	b.WriteString("Objective: " + phase.Objective + "\n")
	b.WriteString("Request: " + req.Query + "\n")
	if attempt > 1 {
		b.WriteString("This is a repair attempt; the prior attempt did not meet the evidence quota for this phase.\n")
	}
	b.WriteString("Use Read, Grep, Glob, LS, and Cwd to gather verifiable evidence. Do not invent file paths.\n")
	return b.String()
}

func synthesisPrompt(req AnalyzeRequest, ledger *Ledger, cov CoverageReport) string {
	var b strings.Builder
	b.WriteString("User request: " + req.Query + "\n\n")
	b.WriteString("Observed paths:\n")
	for _, p := range capList(ledger.SortedObservedPaths(), 200) {
		b.WriteString("- " + p + "\n")
	}
	b.WriteString("\nCoverage: observed=")
	b.WriteString(formatRatio(cov.CoverageRatio))
	b.WriteString(" read=")
	b.WriteString(formatRatio(cov.SampledReadRatio))
	b.WriteString(" test=")
	b.WriteString(formatRatio(cov.TestCoverageRatio))
	b.WriteString("\n\nPhase summaries:\n")
	for _, s := range ledger.PhaseSummaries {
		b.WriteString(s + "\n---\n")
	}
	if len(ledger.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range ledger.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	b.WriteString("\nUsing only the evidence above, write a report that separates verified facts, risks, and unknowns. Never mention a path that was not observed above.\n")
	return b.String()
}

func correctionPrompt(prior string, issues []string) string {
	var b strings.Builder
	b.WriteString("Your previous answer mentioned paths that were never observed during this run:\n")
	for _, i := range issues {
		b.WriteString("- " + i + "\n")
	}
	b.WriteString("\nRewrite the answer, removing or correcting those mentions, and keep every other claim:\n\n")
	b.WriteString(prior)
	return b.String()
}

func topUpPrompt(files []string) string {
	var b strings.Builder
	b.WriteString("Read the following files to close remaining coverage gaps before synthesis:\n")
	for _, f := range files {
		b.WriteString("- " + f + "\n")
	}
	return b.String()
}

func capList(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r, 'f', 2, 64)
}
