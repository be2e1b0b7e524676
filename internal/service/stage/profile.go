package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
)

const profileWindow = 6

// ProfileReview greets the participant and clarifies their background.
type ProfileReview struct {
	base
}

// NewProfileReview builds the opening stage.
func NewProfileReview(gen ai.Generator, maxTurns int, log *zap.Logger) *ProfileReview {
	return &ProfileReview{base: newBase(assessment.StageProfileReview, gen, log, maxTurns, profileWindow, MarkerTechnical)}
}

// Start opens the assessment with a greeting grounded in the participant profile.
func (p *ProfileReview) Start(ctx context.Context, participantContext string) string {
	return p.open(ctx, []ai.Message{
		ai.System(profileSystemPrompt),
		profileBlock(participantContext),
		ai.User("Open the interview: greet the candidate and ask one clarifying question about their background."),
	}, profileOpenFallback)
}

// Respond continues the profile review or hands off to the technical stage.
func (p *ProfileReview) Respond(ctx context.Context, turn Turn) Reply {
	messages := []ai.Message{ai.System(profileSystemPrompt), profileBlock(turn.ParticipantContext)}
	messages = append(messages, p.history(turn)...)
	messages = append(messages, ai.User(turn.Message))
	if turn.Number >= p.maxTurns {
		messages = append(messages, ai.System("This is the final profile exchange. Thank the candidate and end with "+MarkerTechnical+"."))
	}
	return p.reply(ctx, turn, messages, profileFallback, profileClosing)
}

// Evaluate scores the profile review portion of the transcript.
func (p *ProfileReview) Evaluate(ctx context.Context, history []assessment.Message) assessment.Evaluation {
	return p.evaluate(ctx, history, profileEvaluationPrompt, profileCriteria, fallbackEvaluation(p.stage, profileFeedbackFallback))
}

// fallbackEvaluation is the fixed default used whenever scoring output is unusable.
func fallbackEvaluation(stage assessment.Stage, feedback string) assessment.Evaluation {
	return assessment.Evaluation{
		Stage:        stage,
		Category:     stage.Category(),
		Score:        FallbackScore,
		Feedback:     feedback,
		Strengths:    []string{"Communication"},
		Improvements: []string{"Depth in specific areas"},
		Fallback:     true,
	}
}
