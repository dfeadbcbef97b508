package sessions

import "time"

// ExecutionStatus is the lifecycle state of an ExecutionSession or a single
// StoryExecutionState within it.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionSession is the durable record of one run of the agentic loop over
// a project: which stories it worked through, the provider/model used, and
// the running token totals. It is distinct from pkg/models.Session, which
// tracks a channel-facing conversation thread rather than a bounded body of
// execution work.
type ExecutionSession struct {
	ID            string
	ProjectPath   string
	PRDPath       string
	Status        ExecutionStatus
	Provider      string
	Model         string
	SystemPrompt  string
	Stories       []StoryExecutionState
	CurrentStory  int
	TotalInput    int64
	TotalOutput   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     time.Time
	CompletedAt   time.Time
	Error         string
	Metadata      map[string]any
}

// Progress returns the completed-story count, total-story count, and the
// floor-rounded percentage complete, matching the original's rounding.
func (s *ExecutionSession) Progress() (completed, total, percentage int) {
	total = len(s.Stories)
	if total == 0 {
		return 0, 0, 0
	}
	for _, st := range s.Stories {
		if st.Status == ExecutionCompleted {
			completed++
		}
	}
	percentage = (s.CurrentStory * 100) / total
	if percentage > 100 {
		percentage = 100
	}
	return completed, total, percentage
}

// StoryExecutionState tracks one story's progress within an ExecutionSession.
type StoryExecutionState struct {
	StoryID      string
	Title        string
	Status       ExecutionStatus
	StartedAt    time.Time
	CompletedAt  time.Time
	Error        string
	Iterations   int
	InputTokens  int64
	OutputTokens int64
	// QualityGates maps a gate name (see quality_gates.go) to whether it
	// passed the last time this story's gates were evaluated.
	QualityGates map[string]bool
}

// AllGatesPassed reports whether every recorded gate passed. A story with no
// recorded gates is vacuously considered passed — gates that were never run
// cannot fail it.
func (s *StoryExecutionState) AllGatesPassed() bool {
	for _, passed := range s.QualityGates {
		if !passed {
			return false
		}
	}
	return true
}
