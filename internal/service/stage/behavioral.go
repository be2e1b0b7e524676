package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
)

const behavioralWindow = 8

// BehavioralProbe asks STAR-style situational questions across rotating topics.
type BehavioralProbe struct {
	base
}

// NewBehavioralProbe builds the behavioral stage.
func NewBehavioralProbe(gen ai.Generator, maxTurns int, log *zap.Logger) *BehavioralProbe {
	return &BehavioralProbe{base: newBase(assessment.StageBehavioralProbe, gen, log, maxTurns, behavioralWindow, MarkerEvaluation)}
}

// Start asks the first situational question.
func (b *BehavioralProbe) Start(ctx context.Context, participantContext string) string {
	return b.open(ctx, []ai.Message{
		ai.System(behavioralSystemPrompt),
		profileBlock(participantContext),
		ai.User(fmt.Sprintf("Open the behavioral interview with one question about %s.", topicFor(0))),
	}, behavioralOpenFallback+topicFor(0)+".")
}

// Respond follows up or closes the interview questions.
func (b *BehavioralProbe) Respond(ctx context.Context, turn Turn) Reply {
	messages := []ai.Message{ai.System(behavioralSystemPrompt), profileBlock(turn.ParticipantContext)}
	messages = append(messages, b.history(turn)...)
	messages = append(messages, ai.User(turn.Message))
	if turn.Number >= b.maxTurns {
		messages = append(messages, ai.System("This is the last behavioral answer. Thank the candidate and end with "+MarkerEvaluation+"."))
	} else {
		messages = append(messages, ai.System(fmt.Sprintf("Next topic to explore: %s.", topicFor(turn.Number))))
	}
	return b.reply(ctx, turn, messages, behavioralFallback+topicFor(turn.Number)+".", behavioralClosing)
}

// Evaluate scores the behavioral portion of the transcript.
func (b *BehavioralProbe) Evaluate(ctx context.Context, history []assessment.Message) assessment.Evaluation {
	return b.evaluate(ctx, history, behavioralEvaluationPrompt, behavioralCriteria, fallbackEvaluation(b.stage, behavioralFeedbackFallback))
}

func topicFor(n int) string {
	if n < 0 {
		n = 0
	}
	return behavioralTopics[n%len(behavioralTopics)]
}
