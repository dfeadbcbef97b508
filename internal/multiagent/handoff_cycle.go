package multiagent

// handoffCycleWindow is how many recent agent-history transitions (plus the
// pending one) are inspected for a repeating hand-off pattern.
const handoffCycleWindow = 8

// detectHandoffCycle reports whether appending (from -> to) to the recent
// handoff history would complete a short repeating cycle (period 1..4)
// filling the whole inspected window — the same check loopdetect.Detector
// runs over tool-call fingerprints, applied here to agent transitions
// instead, since ActiveHandoffStack alone cannot see a one-way A->B->A->B
// loop that never sets ReturnExpected.
func detectHandoffCycle(history []AgentHistoryEntry, from, to string) bool {
	transitions := make([]string, 0, handoffCycleWindow)
	start := 0
	if len(history) > handoffCycleWindow-1 {
		start = len(history) - (handoffCycleWindow - 1)
	}
	for _, h := range history[start:] {
		transitions = append(transitions, h.AgentID+"->"+h.HandoffTo)
	}
	transitions = append(transitions, from+"->"+to)

	n := len(transitions)
	if n < handoffCycleWindow {
		return false
	}
	for period := 1; period <= 4; period++ {
		if n%period != 0 {
			continue
		}
		cycle := true
		for i := 0; i < n; i++ {
			if transitions[i] != transitions[i%period] {
				cycle = false
				break
			}
		}
		if cycle {
			return true
		}
	}
	return false
}
