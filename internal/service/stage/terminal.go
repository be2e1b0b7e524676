package stage

import (
	"context"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
)

const (
	scorerStartMessage = "Thank you for completing the interview. Your responses are now being scored."
	scorerReply        = "Your assessment is being finalized."
	// ClosingMessage is shown to the participant once the assessment has been handed to HR.
	ClosingMessage = "Thank you so much for taking the time to speak with us today. " +
		"Our HR team will review your assessment and reach out within a few business days. " +
		"Best of luck!"
)

// Scorer marks the point where conversation stops and aggregation begins.
// Scoring itself happens in the report service.
type Scorer struct{}

// NewScorer builds the scoring stage.
func NewScorer() *Scorer { return &Scorer{} }

func (s *Scorer) Stage() assessment.Stage { return assessment.StageScorer }

func (s *Scorer) Start(context.Context, string) string { return scorerStartMessage }

// Respond always hands off.
func (s *Scorer) Respond(context.Context, Turn) Reply {
	return Reply{Text: scorerReply, Transition: true, Next: assessment.StageHandoff}
}

// Handoff closes the conversation for the participant.
type Handoff struct{}

// NewHandoff builds the handoff stage.
func NewHandoff() *Handoff { return &Handoff{} }

func (h *Handoff) Stage() assessment.Stage { return assessment.StageHandoff }

func (h *Handoff) Start(context.Context, string) string { return ClosingMessage }

// Respond always completes.
func (h *Handoff) Respond(context.Context, Turn) Reply {
	return Reply{Text: ClosingMessage, Transition: true, Next: assessment.StageComplete}
}
