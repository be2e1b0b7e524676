// Package stage holds the five stage handlers that each own one phase of an
// assessment conversation.
//
// Handlers are stateless: the per-stage turn counter lives on the session and
// arrives as Turn.Number, so one handler instance serves every session.
// Generation failures never escape a handler; they degrade to fixed fallback
// text or a fixed default evaluation.
package stage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
)

// ErrEvaluationParse marks structured evaluation output that could not be used.
var ErrEvaluationParse = errors.New("evaluation output malformed")

// FallbackScore is the conservative score used when an evaluation cannot be parsed.
const FallbackScore = 75.0

const (
	openTemperature     float32 = 0.8
	respondTemperature  float32 = 0.7
	evaluateTemperature float32 = 0.2
)

// Turn is one participant reply handed to the active stage.
type Turn struct {
	ParticipantContext string
	// History is a bounded recent window of the transcript, ending with the incoming message.
	History []assessment.Message
	Message string
	// Number counts participant replies within this stage, starting at 1.
	Number int
}

// Reply is a stage's answer plus its transition decision.
type Reply struct {
	Text       string
	Transition bool
	// Next is the stage the handler hands off to; empty when Transition is false.
	Next assessment.Stage
}

// Handler owns one phase of the conversation.
type Handler interface {
	Stage() assessment.Stage
	// Start produces the opening message for the stage.
	Start(ctx context.Context, participantContext string) string
	Respond(ctx context.Context, turn Turn) Reply
}

// Evaluator is implemented by the stages that score the participant.
type Evaluator interface {
	Evaluate(ctx context.Context, history []assessment.Message) assessment.Evaluation
}

// base carries the plumbing shared by the conversational stages.
type base struct {
	stage    assessment.Stage
	gen      ai.Generator
	logger   *zap.Logger
	maxTurns int
	window   int
	marker   string
}

func newBase(stage assessment.Stage, gen ai.Generator, log *zap.Logger, maxTurns, window int, marker string) base {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return base{
		stage:    stage,
		gen:      gen,
		logger:   logger.OrNop(log).With(zap.String(logger.FieldStage, string(stage))),
		maxTurns: maxTurns,
		window:   window,
		marker:   marker,
	}
}

// Stage returns the tag of the stage.
func (b *base) Stage() assessment.Stage {
	return b.stage
}

// MaxTurns is the participant reply count that forces a transition.
func (b *base) MaxTurns() int {
	return b.maxTurns
}

func (b *base) generate(ctx context.Context, messages []ai.Message, temperature float32) (string, bool) {
	if b.gen == nil {
		return "", false
	}
	text, err := b.gen.Generate(ctx, messages, temperature)
	if err != nil {
		b.logger.Warn("generation failed, using fallback", zap.Error(err))
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		b.logger.Warn("generation returned empty text, using fallback")
		return "", false
	}
	return text, true
}

// open generates an opening message or returns fallback.
func (b *base) open(ctx context.Context, messages []ai.Message, fallback string) string {
	text, ok := b.generate(ctx, messages, openTemperature)
	if !ok {
		return fallback
	}
	// An opener never hands off, so any marker is noise.
	return ParseReply(text, b.marker).Text
}

// reply runs one respond cycle. Reaching maxTurns forces the transition whatever the content.
func (b *base) reply(ctx context.Context, turn Turn, messages []ai.Message, fallback, closing string) Reply {
	forced := turn.Number >= b.maxTurns

	var reply Reply
	if text, ok := b.generate(ctx, messages, respondTemperature); ok {
		reply = ParseReply(text, b.marker)
	}
	if reply.Text == "" {
		reply.Text = fallback
		if forced {
			reply.Text = closing
		}
	}

	if forced && !reply.Transition {
		b.logger.Debug("max turns reached, forcing transition", zap.Int("turn", turn.Number))
		reply.Transition = true
	}
	if reply.Transition {
		reply.Next, _ = b.stage.Next()
	}
	return reply
}

// history converts the window to prompt messages, dropping the trailing
// incoming message so it is not sent twice.
func (b *base) history(turn Turn) []ai.Message {
	window := turn.History
	if n := len(window); n > 0 {
		last := window[n-1]
		if last.Role == assessment.RoleParticipant && last.Content == turn.Message {
			window = window[:n-1]
		}
	}
	if b.window > 0 && len(window) > b.window {
		window = window[len(window)-b.window:]
	}

	out := make([]ai.Message, 0, len(window))
	for _, msg := range window {
		if msg.Role == assessment.RoleParticipant {
			out = append(out, ai.User(msg.Content))
		} else {
			out = append(out, ai.Assistant(msg.Content))
		}
	}
	return out
}

// evaluate asks for a JSON evaluation of the stage's part of the transcript.
func (b *base) evaluate(ctx context.Context, history []assessment.Message, system, criteria string, fallback assessment.Evaluation) assessment.Evaluation {
	messages := []ai.Message{
		ai.System(system + "\n" + evaluationSchema),
		ai.User(fmt.Sprintf("Evaluate this conversation based on:\n%s\n\nHISTORY:\n%s", criteria, formatHistory(history, b.stage))),
	}

	raw, ok := b.generate(ctx, messages, evaluateTemperature)
	if !ok {
		return fallback
	}

	ev, err := parseEvaluation(b.stage, raw)
	if err != nil {
		b.logger.Warn("evaluation output unusable, using default",
			zap.Error(err),
			zap.String("response_preview", logger.TruncateForLog(raw, 200)),
		)
		return fallback
	}
	if ev.Feedback == "" {
		ev.Feedback = fallback.Feedback
	}
	return ev
}

// parseEvaluation turns structured generation output into an Evaluation.
// A missing or non-numeric score makes the whole output unusable.
func parseEvaluation(stage assessment.Stage, raw string) (assessment.Evaluation, error) {
	data, err := ai.DecodeObject(raw)
	if err != nil {
		return assessment.Evaluation{}, fmt.Errorf("%w: %w", ErrEvaluationParse, err)
	}

	score := ai.CoerceFloat(data["score"])
	if math.IsNaN(score) {
		return assessment.Evaluation{}, fmt.Errorf("%w: score missing", ErrEvaluationParse)
	}

	improvements := ai.CoerceStrings(data["improvements"])
	if improvements == nil {
		improvements = ai.CoerceStrings(data["areas_for_improvement"])
	}

	return assessment.Evaluation{
		Stage:        stage,
		Category:     stage.Category(),
		Score:        assessment.ClampScore(score),
		Feedback:     ai.CoerceString(data["feedback"]),
		Strengths:    ai.CoerceStrings(data["strengths"]),
		Improvements: improvements,
	}, nil
}

// formatHistory renders the messages belonging to stage as an interview script.
func formatHistory(history []assessment.Message, stage assessment.Stage) string {
	var builder strings.Builder
	for _, msg := range history {
		if msg.Stage != stage {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		if msg.Role == assessment.RoleParticipant {
			builder.WriteString("Candidate: ")
		} else {
			builder.WriteString("Interviewer: ")
		}
		builder.WriteString(content)
	}
	if builder.Len() == 0 {
		return "(no messages in this stage)"
	}
	return builder.String()
}

func profileBlock(participantContext string) ai.Message {
	return ai.User("CANDIDATE PROFILE:\n" + strings.TrimSpace(participantContext))
}
