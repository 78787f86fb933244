package assistant

import (
	"github.com/google/uuid"
)

// DemoStep records an action seen during a demonstration session.
type DemoStep struct {
	Action Action `json:"action"`
	Label  string `json:"label"`
}

// Session is the full state of one open dialogue.
type Session struct {
	ID        string
	TurnCount int
	Completed bool
	Entities  map[string]any
	DemoSteps []DemoStep

	turns      *Store
	generation uint64
}

func newSession(generation uint64) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Entities:   make(map[string]any),
		turns:      NewStore(),
		generation: generation,
	}
}

// mergeEntities folds server-supplied entities into the session; later values
// win for the same key.
func (s *Session) mergeEntities(in map[string]any) {
	for k, v := range in {
		s.Entities[k] = v
	}
}

func (s *Session) entitiesCopy() map[string]any {
	out := make(map[string]any, len(s.Entities))
	for k, v := range s.Entities {
		out[k] = v
	}
	return out
}

// ProgressStage is the derived position on the demo progress indicator.
type ProgressStage int

const (
	StageDescribe ProgressStage = iota
	StageAvailability
	StageDeposit
	StageConfirmed
)

var stageLabels = [...]string{"Describe", "Availability", "Deposit", "Confirmed"}

func (p ProgressStage) String() string {
	if p < StageDescribe || p > StageConfirmed {
		return "Unknown"
	}
	return stageLabels[p]
}

// StageLabels lists the progress indicator stages in order.
func StageLabels() []string {
	return stageLabels[:]
}

// DemoProgress derives the furthest stage reached from the recorded demo steps.
func DemoProgress(steps []DemoStep) ProgressStage {
	stage := StageDescribe
	for _, step := range steps {
		var s ProgressStage
		switch step.Action {
		case ActionBookingComplete:
			s = StageConfirmed
		case ActionShowDeposit:
			s = StageDeposit
		case ActionShowSlots, ActionRescheduled:
			s = StageAvailability
		}
		if s > stage {
			stage = s
		}
	}
	return stage
}
