package analysis

import "sort"

// Inventory is the repository file listing an analysis run plans against.
type Inventory struct {
	Files     []string
	TestFiles []string
}

// Chunk is a partition of the inventory assigned to one worker layer.
type Chunk struct {
	ID    string
	Phase string
	Files []string
}

// Profile selects the effective coverage targets for a run.
type Profile string

const (
	ProfileFast         Profile = "fast"
	ProfileBalanced      Profile = "balanced"
	ProfileDeepCoverage Profile = "deep_coverage"
)

// Targets are the ratio thresholds a CoverageReport must meet to pass the gate.
type Targets struct {
	CoverageRatio      float64
	SampledReadRatio   float64
	TestCoverageRatio  float64
	MaxTotalReadFiles  int
	MinUsablePhases    int
}

// EffectiveTargets computes the coverage targets for a profile, scaled down
// slightly for very large inventories so the read-depth targets stay
// achievable within a bounded token budget.
func EffectiveTargets(profile Profile, inventorySize int) Targets {
	var t Targets
	switch profile {
	case ProfileFast:
		t = Targets{CoverageRatio: 0.35, SampledReadRatio: 0.10, TestCoverageRatio: 0.10, MaxTotalReadFiles: 25, MinUsablePhases: 3}
	case ProfileDeepCoverage:
		t = Targets{CoverageRatio: 0.75, SampledReadRatio: 0.35, TestCoverageRatio: 0.40, MaxTotalReadFiles: 120, MinUsablePhases: 3}
	default: // ProfileBalanced
		t = Targets{CoverageRatio: 0.55, SampledReadRatio: 0.20, TestCoverageRatio: 0.25, MaxTotalReadFiles: 60, MinUsablePhases: 3}
	}

	if inventorySize > 2000 {
		t.SampledReadRatio *= 0.5
		t.TestCoverageRatio *= 0.5
	} else if inventorySize > 500 {
		t.SampledReadRatio *= 0.75
		t.TestCoverageRatio *= 0.75
	}
	return t
}

// CoverageReport is the computed ratio snapshot for a ledger against an inventory.
type CoverageReport struct {
	InventoryTotalFiles     int
	SampledReadFiles        int
	TestFilesTotal          int
	TestFilesRead           int
	CoverageRatio           float64
	SampledReadRatio        float64
	TestCoverageRatio       float64
	ObservedTestCoverageRatio float64
	ChunkCount              int
	SynthesisRounds         int
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 1.0
	}
	return float64(numerator) / float64(denominator)
}

// Coverage computes the CoverageReport for the ledger's accumulated path
// sets against inv. A nil inventory yields an all-1.0 report (vacuously satisfied).
func (l *Ledger) ComputeCoverage(inv *Inventory) CoverageReport {
	if inv == nil {
		return CoverageReport{CoverageRatio: 1, SampledReadRatio: 1, TestCoverageRatio: 1, ObservedTestCoverageRatio: 1}
	}

	inventorySet := toSet(inv.Files)
	testSet := toSet(inv.TestFiles)

	observedInInventory := intersectCount(l.ObservedPaths, inventorySet)
	readInInventory := intersectCount(l.ReadPaths, inventorySet)
	readTestFiles := intersectCount(l.ReadPaths, testSet)
	observedTestFiles := intersectCount(l.ObservedPaths, testSet)

	report := CoverageReport{
		InventoryTotalFiles:       len(inv.Files),
		SampledReadFiles:          readInInventory,
		TestFilesTotal:            len(inv.TestFiles),
		TestFilesRead:             readTestFiles,
		CoverageRatio:             ratio(observedInInventory, len(inv.Files)),
		SampledReadRatio:          ratio(readInInventory, len(inv.Files)),
		TestCoverageRatio:         ratio(readTestFiles, len(inv.TestFiles)),
		ObservedTestCoverageRatio: ratio(observedTestFiles, len(inv.TestFiles)),
		ChunkCount:                len(l.ChunkPlan),
	}
	l.Coverage = &report
	return report
}

func toSet(files []string) map[string]struct{} {
	out := make(map[string]struct{}, len(files))
	for _, f := range files {
		out[f] = struct{}{}
	}
	return out
}

func intersectCount(a map[string]struct{}, b map[string]struct{}) int {
	count := 0
	for p := range a {
		if _, ok := b[p]; ok {
			count++
		}
	}
	return count
}

// GateResult is the pass/fail verdict for a ledger against targets.
type GateResult struct {
	Passed bool
	Reasons []string
}

// Gate evaluates whether the ledger's accumulated evidence and coverage
// ratios satisfy targets. A gate failure names every unmet condition.
func (l *Ledger) Gate(targets Targets) GateResult {
	var reasons []string
	usablePhases := l.SuccessfulPhases + l.PartialPhases

	if usablePhases < targets.MinUsablePhases {
		reasons = append(reasons, "fewer usable phases than required")
	}
	if len(l.EvidenceLines) == 0 {
		reasons = append(reasons, "no evidence collected")
	}

	cov := l.Coverage
	if cov == nil {
		c := l.ComputeCoverage(l.Inventory)
		cov = &c
	}
	if cov.CoverageRatio < targets.CoverageRatio {
		reasons = append(reasons, "observed-path coverage below target")
	}
	if cov.SampledReadRatio < targets.SampledReadRatio {
		reasons = append(reasons, "read-depth coverage below target")
	}
	if cov.TestCoverageRatio < targets.TestCoverageRatio {
		reasons = append(reasons, "test coverage below target")
	}

	return GateResult{Passed: len(reasons) == 0, Reasons: reasons}
}

// TopUpResult reports what the top-up pass added.
type TopUpResult struct {
	FilesRead []string
}

// SelectTopUpFiles picks the files a top-up pass should read: unread tests
// first (sorted), then unread non-tests (sorted), bounded by the remaining
// read budget.
func SelectTopUpFiles(inv *Inventory, l *Ledger, targets Targets) []string {
	if inv == nil {
		return nil
	}
	remaining := targets.MaxTotalReadFiles - len(l.ReadPaths)
	if remaining <= 0 {
		return nil
	}

	var unreadTests, unreadOthers []string
	testSet := toSet(inv.TestFiles)
	for _, f := range inv.TestFiles {
		if _, read := l.ReadPaths[f]; !read {
			unreadTests = append(unreadTests, f)
		}
	}
	for _, f := range inv.Files {
		if _, isTest := testSet[f]; isTest {
			continue
		}
		if _, read := l.ReadPaths[f]; !read {
			unreadOthers = append(unreadOthers, f)
		}
	}
	sort.Strings(unreadTests)
	sort.Strings(unreadOthers)

	picked := make([]string, 0, remaining)
	for _, f := range unreadTests {
		if len(picked) >= remaining {
			break
		}
		picked = append(picked, f)
	}
	for _, f := range unreadOthers {
		if len(picked) >= remaining {
			break
		}
		picked = append(picked, f)
	}
	return picked
}
