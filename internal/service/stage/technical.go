package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
)

const technicalWindow = 8

// TechnicalProbe asks adaptive technical questions following a fixed plan.
type TechnicalProbe struct {
	base
}

// NewTechnicalProbe builds the technical stage.
func NewTechnicalProbe(gen ai.Generator, maxTurns int, log *zap.Logger) *TechnicalProbe {
	return &TechnicalProbe{base: newBase(assessment.StageTechnicalProbe, gen, log, maxTurns, technicalWindow, MarkerBehavioral)}
}

// Start asks the first planned question.
func (t *TechnicalProbe) Start(ctx context.Context, participantContext string) string {
	return t.open(ctx, []ai.Message{
		ai.System(technicalSystemPrompt),
		profileBlock(participantContext),
		ai.User("Open the technical interview with one system design question tailored to this profile."),
	}, technicalOpenFallback+technicalFocus[0])
}

// Respond follows up on the answer or hands off to the behavioral stage.
func (t *TechnicalProbe) Respond(ctx context.Context, turn Turn) Reply {
	messages := []ai.Message{ai.System(technicalSystemPrompt), profileBlock(turn.ParticipantContext)}
	messages = append(messages, t.history(turn)...)
	messages = append(messages, ai.User(turn.Message))
	if turn.Number >= t.maxTurns {
		messages = append(messages, ai.System("You have asked enough questions. Thank the candidate and end with "+MarkerBehavioral+"."))
	} else {
		messages = append(messages, ai.System(fmt.Sprintf("Questions asked so far: %d of %d. Ask the next question from the plan.", turn.Number, t.maxTurns)))
	}
	return t.reply(ctx, turn, messages, "Thanks. "+focusFor(turn.Number), technicalClosing)
}

// Evaluate scores the technical portion of the transcript.
func (t *TechnicalProbe) Evaluate(ctx context.Context, history []assessment.Message) assessment.Evaluation {
	return t.evaluate(ctx, history, technicalEvaluationPrompt, technicalCriteria, fallbackEvaluation(t.stage, technicalFeedbackFallback))
}

// focusFor returns the planned question that follows answer n.
func focusFor(n int) string {
	if n < 0 {
		n = 0
	}
	return technicalFocus[n%len(technicalFocus)]
}
