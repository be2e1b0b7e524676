package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
)

type cannedGenerator struct {
	reply string
	err   error
	calls [][]ai.Message
}

func (c *cannedGenerator) Generate(_ context.Context, msgs []ai.Message, _ float32) (string, error) {
	c.calls = append(c.calls, msgs)
	return c.reply, c.err
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		marker     string
		text       string
		transition bool
	}{
		{"continue token stripped", "Tell me more. [CONTINUE]", MarkerTechnical, "Tell me more.", false},
		{"own marker transitions", "Thanks!  [TRANSITION:technical]", MarkerTechnical, "Thanks!", true},
		{"foreign marker stripped only", "Great [TRANSITION:evaluation] answer", MarkerTechnical, "Great answer", false},
		{"no marker", "Plain text", MarkerBehavioral, "Plain text", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReply(tt.raw, tt.marker)
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.transition, got.Transition)
		})
	}
}

func TestRespondForcesTransitionAtMaxTurns(t *testing.T) {
	gen := &cannedGenerator{reply: "What else did you build? [CONTINUE]"}
	h := NewTechnicalProbe(gen, 2, nil)

	first := h.Respond(context.Background(), Turn{Message: "answer one", Number: 1})
	assert.False(t, first.Transition)
	assert.Empty(t, first.Next)

	second := h.Respond(context.Background(), Turn{Message: "answer two", Number: 2})
	assert.True(t, second.Transition)
	assert.Equal(t, assessment.StageBehavioralProbe, second.Next)
	assert.NotContains(t, second.Text, "[CONTINUE]")
}

func TestRespondHonorsMarkerBeforeMax(t *testing.T) {
	gen := &cannedGenerator{reply: "Great context. [TRANSITION:technical]"}
	h := NewProfileReview(gen, 2, nil)

	reply := h.Respond(context.Background(), Turn{Message: "I am a Go engineer", Number: 1})
	assert.True(t, reply.Transition)
	assert.Equal(t, assessment.StageTechnicalProbe, reply.Next)
	assert.Equal(t, "Great context.", reply.Text)
}

func TestRespondFallsBackOnGenerationFailure(t *testing.T) {
	gen := &cannedGenerator{err: errors.New("upstream down")}
	h := NewBehavioralProbe(gen, 4, nil)

	reply := h.Respond(context.Background(), Turn{Message: "an example", Number: 1})
	assert.False(t, reply.Transition)
	assert.Contains(t, reply.Text, topicFor(1))

	last := h.Respond(context.Background(), Turn{Message: "final example", Number: 4})
	assert.True(t, last.Transition)
	assert.Equal(t, assessment.StageScorer, last.Next)
	assert.Equal(t, behavioralClosing, last.Text)
}

func TestStartUsesFallbackWithoutGenerator(t *testing.T) {
	h := NewProfileReview(nil, 2, nil)
	assert.Equal(t, profileOpenFallback, h.Start(context.Background(), "profile"))
}

func TestHistoryDropsIncomingMessageAndBoundsWindow(t *testing.T) {
	gen := &cannedGenerator{reply: "ok"}
	h := NewProfileReview(gen, 5, nil)

	var history []assessment.Message
	for i := 0; i < 9; i++ {
		role := assessment.RoleSystem
		if i%2 == 1 {
			role = assessment.RoleParticipant
		}
		history = append(history, assessment.Message{Index: i, Role: role, Content: "m"})
	}
	history = append(history, assessment.Message{Index: 9, Role: assessment.RoleParticipant, Content: "latest"})

	h.Respond(context.Background(), Turn{History: history, Message: "latest", Number: 1})
	require.Len(t, gen.calls, 1)

	msgs := gen.calls[0]
	// system prompt + profile + window + incoming message
	assert.Len(t, msgs, 2+profileWindow+1)
	assert.Equal(t, "latest", msgs[len(msgs)-1].Content)
	for _, m := range msgs[2 : len(msgs)-1] {
		assert.NotEqual(t, "latest", m.Content)
	}
}

func TestEvaluateParsesStructuredOutput(t *testing.T) {
	gen := &cannedGenerator{reply: "```json\n{\"score\": 140, \"feedback\": \"Deep answers\", \"strengths\": [\"Design\"], \"areas_for_improvement\": [\"Testing\"]}\n```"}
	h := NewTechnicalProbe(gen, 4, nil)

	ev := h.Evaluate(context.Background(), []assessment.Message{
		{Role: assessment.RoleParticipant, Content: "answer", Stage: assessment.StageTechnicalProbe},
	})
	assert.Equal(t, assessment.StageTechnicalProbe, ev.Stage)
	assert.Equal(t, 100.0, ev.Score)
	assert.Equal(t, "Deep answers", ev.Feedback)
	assert.Equal(t, []string{"Design"}, ev.Strengths)
	assert.Equal(t, []string{"Testing"}, ev.Improvements)
	assert.False(t, ev.Fallback)
}

func TestEvaluateMalformedOutputFallsBack(t *testing.T) {
	for _, raw := range []string{"I think they did well", `{"feedback": "no score"}`, `{"score": "high"}`} {
		gen := &cannedGenerator{reply: raw}
		h := NewTechnicalProbe(gen, 4, nil)

		ev := h.Evaluate(context.Background(), nil)
		assert.True(t, ev.Fallback, raw)
		assert.Equal(t, FallbackScore, ev.Score)
		assert.Equal(t, technicalFeedbackFallback, ev.Feedback)
	}
}

func TestParseEvaluationWrapsError(t *testing.T) {
	_, err := parseEvaluation(assessment.StageProfileReview, "nope")
	assert.ErrorIs(t, err, ErrEvaluationParse)
	assert.ErrorIs(t, err, ai.ErrNoJSONObject)
}

func TestFormatHistoryFiltersByStage(t *testing.T) {
	out := formatHistory([]assessment.Message{
		{Role: assessment.RoleSystem, Content: "Q1", Stage: assessment.StageProfileReview},
		{Role: assessment.RoleSystem, Content: "Q2", Stage: assessment.StageTechnicalProbe},
		{Role: assessment.RoleParticipant, Content: "A2", Stage: assessment.StageTechnicalProbe},
	}, assessment.StageTechnicalProbe)
	assert.Equal(t, "Interviewer: Q2\n\nCandidate: A2", out)
}

func TestAdministrativeStagesAlwaysTransition(t *testing.T) {
	scorer := NewScorer().Respond(context.Background(), Turn{})
	assert.True(t, scorer.Transition)
	assert.Equal(t, assessment.StageHandoff, scorer.Next)

	handoff := NewHandoff()
	assert.Equal(t, ClosingMessage, handoff.Start(context.Background(), ""))
	assert.Equal(t, assessment.StageComplete, handoff.Respond(context.Background(), Turn{}).Next)
}

func TestRegistry(t *testing.T) {
	r := Default(ai.NewScripted(), DefaultOptions(), nil)

	for _, s := range []assessment.Stage{
		assessment.StageProfileReview, assessment.StageTechnicalProbe, assessment.StageBehavioralProbe,
		assessment.StageScorer, assessment.StageHandoff,
	} {
		h, err := r.Lookup(s)
		require.NoError(t, err)
		assert.Equal(t, s, h.Stage())
	}

	_, err := r.Lookup(assessment.StageComplete)
	assert.ErrorIs(t, err, assessment.ErrInvariantViolation)

	_, ok := r.Evaluator(assessment.StageTechnicalProbe)
	assert.True(t, ok)
	_, ok = r.Evaluator(assessment.StageScorer)
	assert.False(t, ok)
}

func TestScriptedWalkthroughReachesTechnical(t *testing.T) {
	r := Default(ai.NewScripted(), DefaultOptions(), nil)
	h, err := r.Lookup(assessment.StageProfileReview)
	require.NoError(t, err)

	opening := h.Start(context.Background(), "Backend engineer")
	assert.Contains(t, opening, "Welcome")

	reply := h.Respond(context.Background(), Turn{Message: "I build payment systems.", Number: 1})
	assert.True(t, reply.Transition)
	assert.NotContains(t, reply.Text, "[TRANSITION")
}
