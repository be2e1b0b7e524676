package assessment

import "fmt"

// Stage identifies one phase of the assessment conversation.
type Stage string

const (
	StageProfileReview   Stage = "profile_review"
	StageTechnicalProbe  Stage = "technical_probe"
	StageBehavioralProbe Stage = "behavioral_probe"
	StageScorer          Stage = "scorer"
	StageHandoff         Stage = "handoff"
	StageComplete        Stage = "complete"
)

// transitions is the whole pipeline: every non-terminal stage has exactly one successor.
var transitions = map[Stage]Stage{
	StageProfileReview:   StageTechnicalProbe,
	StageTechnicalProbe:  StageBehavioralProbe,
	StageBehavioralProbe: StageScorer,
	StageScorer:          StageHandoff,
	StageHandoff:         StageComplete,
}

// ConversationalStages lists the stages that talk to the participant, in pipeline order.
var ConversationalStages = []Stage{StageProfileReview, StageTechnicalProbe, StageBehavioralProbe}

// Next returns the successor of s. The terminal stage and unknown tags have none.
func (s Stage) Next() (Stage, bool) {
	next, ok := transitions[s]
	return next, ok
}

// Conversational reports whether the stage exchanges messages with the participant.
func (s Stage) Conversational() bool {
	switch s {
	case StageProfileReview, StageTechnicalProbe, StageBehavioralProbe:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known stage tags.
func (s Stage) Valid() bool {
	if s == StageComplete {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// Category is the report label for the stage's evaluation.
func (s Stage) Category() string {
	switch s {
	case StageProfileReview:
		return "Profile Analysis"
	case StageTechnicalProbe:
		return "Technical Skills"
	case StageBehavioralProbe:
		return "Behavioral & Soft Skills"
	case StageScorer:
		return "Scoring"
	case StageHandoff:
		return "HR Handoff"
	default:
		return "Complete"
	}
}

func (s Stage) String() string {
	return string(s)
}

// UnmarshalText rejects unknown tags so a decoded session never carries an illegal stage.
func (s *Stage) UnmarshalText(text []byte) error {
	candidate := Stage(text)
	if !candidate.Valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvariantViolation, string(text))
	}
	*s = candidate
	return nil
}
