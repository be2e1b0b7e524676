package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/model/participant"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
	"github.com/zhouzirui/z-assess/backend/internal/service/handoff"
	"github.com/zhouzirui/z-assess/backend/internal/service/report"
	"github.com/zhouzirui/z-assess/backend/internal/service/stage"
	"github.com/zhouzirui/z-assess/backend/internal/store"
)

// stubGenerator answers conversation prompts with chat and scoring prompts with evalReply.
type stubGenerator struct {
	chat      string
	evalReply string
}

func (g stubGenerator) Generate(_ context.Context, msgs []ai.Message, _ float32) (string, error) {
	if len(msgs) > 0 && strings.Contains(strings.ToLower(msgs[0].Content), "valid json") {
		return g.evalReply, nil
	}
	return g.chat, nil
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ []ai.Message, _ float32) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []handoff.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e handoff.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) Close() {}

type fixture struct {
	svc      *Service
	sessions *store.MemorySessionStore
	reports  *store.MemoryReportStore
	notifier *recordingNotifier
}

func newFixture(t *testing.T, gen ai.Generator, opts stage.Options, timeout time.Duration) fixture {
	t.Helper()
	registry := stage.Default(gen, opts, nil)
	return newFixtureWithRegistry(t, gen, registry, timeout)
}

func newFixtureWithRegistry(t *testing.T, gen ai.Generator, registry *stage.Registry, timeout time.Duration) fixture {
	t.Helper()
	sessions := store.NewMemorySessionStore(time.Hour)
	reports := store.NewMemoryReportStore()
	notifier := &recordingNotifier{}

	svc := NewService(Dependencies{
		Sessions:     sessions,
		Reports:      reports,
		Participants: participant.NewMemoryStore(participant.Seed()),
		Registry:     registry,
		Aggregator:   report.NewAggregator(registry, gen, timeout, nil),
		Planner:      handoff.NewPlanner(),
		Notifier:     notifier,
	}, Config{HistoryWindow: 10, StageTimeout: timeout})

	return fixture{svc: svc, sessions: sessions, reports: reports, notifier: notifier}
}

func TestScriptedSessionFollowsPipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ai.NewScripted(), stage.DefaultOptions(), time.Second)

	sess, opening, err := f.svc.StartSession(ctx, "demo-backend")
	require.NoError(t, err)
	assert.NotEmpty(t, opening)
	assert.Equal(t, assessment.StageProfileReview, sess.ActiveStage)
	require.Len(t, sess.Messages, 1)

	seen := []assessment.Stage{assessment.StageProfileReview}
	for i := 0; i < 20; i++ {
		resp, err := f.svc.HandleMessage(ctx, sess.ID, fmt.Sprintf("answer %d about system design", i))
		require.NoError(t, err)
		assert.NotContains(t, resp.Text, "[TRANSITION")
		if resp.ActiveStage != seen[len(seen)-1] {
			seen = append(seen, resp.ActiveStage)
		}
		if resp.IsComplete {
			break
		}
	}
	assert.Equal(t, []assessment.Stage{
		assessment.StageProfileReview,
		assessment.StageTechnicalProbe,
		assessment.StageBehavioralProbe,
		assessment.StageScorer,
	}, seen)

	out, err := f.svc.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Contains(t, out.ClosingMessage, "Alex Chen")

	final, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StageComplete, final.ActiveStage)
	require.NotNil(t, final.EndedAt)

	var path []assessment.Stage
	for _, tr := range final.Transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []assessment.Stage{
		assessment.StageTechnicalProbe,
		assessment.StageBehavioralProbe,
		assessment.StageScorer,
		assessment.StageHandoff,
		assessment.StageComplete,
	}, path)

	for _, st := range assessment.ConversationalStages {
		ev, ok := final.Evaluation(st)
		require.True(t, ok, st)
		assert.Equal(t, 75.0, ev.Score)
	}
	assert.Equal(t, 75.0, out.Report.OverallScore)
	assert.Equal(t, assessment.RecommendHire, out.Report.Recommendation)
	require.Len(t, f.notifier.events, 1)
}

func TestTransitionConcatenatesNextOpener(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ai.NewScripted(), stage.DefaultOptions(), time.Second)

	sess, _, err := f.svc.StartSession(ctx, "demo-frontend")
	require.NoError(t, err)

	resp, err := f.svc.HandleMessage(ctx, sess.ID, "I work on design systems")
	require.NoError(t, err)
	assert.Equal(t, assessment.StageTechnicalProbe, resp.ActiveStage)
	assert.Contains(t, resp.Text, "technical assessment")
	assert.Contains(t, resp.Text, "system design")

	snap, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	// opener, answer, closing remark, technical opener
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, assessment.StageProfileReview, snap.Messages[2].Stage)
	assert.Equal(t, assessment.StageTechnicalProbe, snap.Messages[3].Stage)
	_, evaluated := snap.Evaluation(assessment.StageProfileReview)
	assert.True(t, evaluated)
}

func TestMaxTurnsDriveSessionToComplete(t *testing.T) {
	ctx := context.Background()
	gen := stubGenerator{chat: "Interesting, tell me more. [CONTINUE]", evalReply: "no structured output today"}
	f := newFixture(t, gen, stage.DefaultOptions(), time.Second)

	sess, err := f.svc.CreateSession(ctx, "p-1", "Backend engineer, 6 years")
	require.NoError(t, err)
	_, err = f.svc.OpeningMessage(ctx, sess.ID)
	require.NoError(t, err)

	// 2 profile + 4 technical + 4 behavioral replies.
	var resp Response
	for i := 0; i < 10; i++ {
		require.False(t, resp.IsComplete, "completed early at message %d", i)
		resp, err = f.svc.HandleMessage(ctx, sess.ID, "answer")
		require.NoError(t, err)
	}
	assert.True(t, resp.IsComplete)
	assert.Equal(t, assessment.StageScorer, resp.ActiveStage)

	out, err := f.svc.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, report.DefaultScore, out.Report.TechnicalScore)
	assert.Equal(t, report.DefaultScore, out.Report.BehavioralScore)
	assert.Equal(t, report.DefaultScore, out.Report.ProfileScore)
	for _, c := range out.Report.Categories {
		assert.True(t, c.Defaulted)
	}

	final, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StageComplete, final.ActiveStage)
}

func TestMalformedTechnicalEvaluationFallsBack(t *testing.T) {
	ctx := context.Background()
	gen := stubGenerator{chat: "Go on. [CONTINUE]", evalReply: `{"score": "excellent!!", "feedback": 3`}
	f := newFixture(t, gen, stage.Options{ProfileMaxTurns: 1, TechnicalMaxTurns: 1, BehavioralMaxTurns: 1}, time.Second)

	sess, err := f.svc.CreateSession(ctx, "p-1", "")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = f.svc.HandleMessage(ctx, sess.ID, "answer")
		require.NoError(t, err)
	}

	snap, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StageBehavioralProbe, snap.ActiveStage)

	ev, ok := snap.Evaluation(assessment.StageTechnicalProbe)
	require.True(t, ok)
	assert.True(t, ev.Fallback)
	assert.Equal(t, stage.FallbackScore, ev.Score)
	assert.Equal(t, "Technical interview completed. Candidate demonstrated reasonable knowledge.", ev.Feedback)
}

func TestUnknownSessionHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ai.NewScripted(), stage.DefaultOptions(), time.Second)

	_, err := f.svc.HandleMessage(ctx, "does-not-exist", "hello")
	assert.ErrorIs(t, err, assessment.ErrSessionNotFound)

	_, err = f.svc.Session(ctx, "does-not-exist")
	assert.ErrorIs(t, err, assessment.ErrSessionNotFound)

	_, err = f.svc.EndSession(ctx, "does-not-exist")
	assert.ErrorIs(t, err, assessment.ErrSessionNotFound)
	assert.Empty(t, f.notifier.events)
}

func TestCompletedSessionRejectsMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ai.NewScripted(), stage.DefaultOptions(), time.Second)

	sess, _, err := f.svc.StartSession(ctx, "demo-backend")
	require.NoError(t, err)
	_, err = f.svc.EndSession(ctx, sess.ID)
	require.NoError(t, err)

	before, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)

	_, err = f.svc.HandleMessage(ctx, sess.ID, "one more thing")
	assert.ErrorIs(t, err, assessment.ErrSessionComplete)
	assert.ErrorIs(t, err, assessment.ErrSessionNotFound)

	_, err = f.svc.OpeningMessage(ctx, sess.ID)
	assert.ErrorIs(t, err, assessment.ErrSessionComplete)

	after, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.Evaluations, after.Evaluations)
}

func TestEndSessionEarlyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ai.NewScripted(), stage.DefaultOptions(), time.Second)

	sess, _, err := f.svc.StartSession(ctx, "demo-backend")
	require.NoError(t, err)

	first, err := f.svc.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	for _, c := range first.Report.Categories {
		assert.False(t, c.Defaulted, "%s was evaluated at session end", c.Stage)
	}

	snap, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, snap.Evaluations, len(assessment.ConversationalStages))
	for _, st := range assessment.ConversationalStages {
		ev, ok := snap.Evaluation(st)
		require.True(t, ok, "missing evaluation for %s", st)
		assert.False(t, ev.Fallback, st)
	}

	second, err := f.svc.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Report.ID, second.Report.ID)
	assert.Equal(t, first.Plan, second.Plan)
	assert.Len(t, f.notifier.events, 1)

	listed, err := f.reports.ListReports(ctx, "demo-backend")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestMissingHandlerIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	gen := ai.NewScripted()
	registry := stage.NewRegistry(stage.NewProfileReview(gen, 2, nil))
	f := newFixtureWithRegistry(t, gen, registry, time.Second)

	sess, err := f.svc.CreateSession(ctx, "p-1", "")
	require.NoError(t, err)

	// The scripted profile reviewer transitions immediately, and no technical handler exists.
	_, err = f.svc.HandleMessage(ctx, sess.ID, "hello")
	assert.ErrorIs(t, err, assessment.ErrInvariantViolation)

	snap, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, assessment.StageProfileReview, snap.ActiveStage)
}

func TestStageTimeoutFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, blockingGenerator{}, stage.DefaultOptions(), 20*time.Millisecond)

	sess, err := f.svc.CreateSession(ctx, "p-1", "")
	require.NoError(t, err)

	start := time.Now()
	resp, err := f.svc.HandleMessage(ctx, sess.ID, "hello")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, assessment.StageProfileReview, resp.ActiveStage)
}

// delayedGenerator answers through next after delay unless ctx ends first.
type delayedGenerator struct {
	next  ai.Generator
	delay time.Duration
}

func (g delayedGenerator) Generate(ctx context.Context, msgs []ai.Message, temperature float32) (string, error) {
	select {
	case <-time.After(g.delay):
		return g.next.Generate(ctx, msgs, temperature)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestCallerCancellationDoesNotDegradeTurn(t *testing.T) {
	gen := delayedGenerator{next: ai.NewScripted(), delay: 100 * time.Millisecond}
	f := newFixture(t, gen, stage.DefaultOptions(), 5*time.Second)

	sess, err := f.svc.CreateSession(context.Background(), "p-1", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	resp, err := f.svc.HandleMessage(ctx, sess.ID, "I build payment APIs")
	require.NoError(t, err)
	assert.Equal(t, assessment.StageTechnicalProbe, resp.ActiveStage)

	snap, err := f.svc.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 3)
	assert.Contains(t, snap.Messages[1].Content, "great context")
	ev, ok := snap.Evaluation(assessment.StageProfileReview)
	require.True(t, ok)
	assert.False(t, ev.Fallback)
}

func TestCancelledCallerLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t, ai.NewScripted(), stage.DefaultOptions(), time.Second)

	sess, err := f.svc.CreateSession(context.Background(), "p-1", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.svc.HandleMessage(ctx, sess.ID, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = f.svc.EndSession(ctx, sess.ID)
	assert.ErrorIs(t, err, context.Canceled)

	snap, err := f.svc.Session(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.StageTurns)
	assert.Empty(t, snap.ReportID)
}

// lossySessions runs updates but fails to write the result back.
type lossySessions struct {
	*store.MemorySessionStore
}

func (l lossySessions) Update(ctx context.Context, id string, fn store.UpdateFunc) (*assessment.Session, error) {
	s, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	return nil, errors.New("session write failed")
}

func TestEndSessionDropsReportWhenSessionWriteFails(t *testing.T) {
	ctx := context.Background()
	gen := ai.NewScripted()
	registry := stage.Default(gen, stage.DefaultOptions(), nil)
	sessions := store.NewMemorySessionStore(time.Hour)
	reports := store.NewMemoryReportStore()
	notifier := &recordingNotifier{}

	svc := NewService(Dependencies{
		Sessions:   lossySessions{sessions},
		Reports:    reports,
		Registry:   registry,
		Aggregator: report.NewAggregator(registry, gen, time.Second, nil),
		Planner:    handoff.NewPlanner(),
		Notifier:   notifier,
	}, Config{StageTimeout: time.Second})

	sess, err := svc.CreateSession(ctx, "p-1", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.EndSession(ctx, sess.ID)
		require.Error(t, err)
	}

	listed, err := reports.ListReports(ctx, "p-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.Empty(t, notifier.events)
}

func TestConcurrentMessagesAreSerialized(t *testing.T) {
	ctx := context.Background()
	gen := stubGenerator{chat: "Noted. [CONTINUE]", evalReply: `{"score": 80}`}
	f := newFixture(t, gen, stage.Options{ProfileMaxTurns: 1000, TechnicalMaxTurns: 1000, BehavioralMaxTurns: 1000}, time.Second)

	a, err := f.svc.CreateSession(ctx, "p-a", "")
	require.NoError(t, err)
	b, err := f.svc.CreateSession(ctx, "p-b", "")
	require.NoError(t, err)

	const perSession = 25
	var wg sync.WaitGroup
	for i := 0; i < perSession; i++ {
		for _, id := range []string{a.ID, b.ID} {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				_, err := f.svc.HandleMessage(ctx, id, fmt.Sprintf("msg %d", i))
				assert.NoError(t, err)
			}(id, i)
		}
	}
	wg.Wait()

	for _, id := range []string{a.ID, b.ID} {
		snap, err := f.svc.Session(ctx, id)
		require.NoError(t, err)
		require.Len(t, snap.Messages, 2*perSession)
		for i, m := range snap.Messages {
			assert.Equal(t, i, m.Index)
			want := assessment.RoleParticipant
			if i%2 == 1 {
				want = assessment.RoleSystem
			}
			assert.Equal(t, want, m.Role, "message %d", i)
		}
		assert.Equal(t, perSession, snap.StageTurns[assessment.StageProfileReview])
	}
}

func TestStartSessionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ai.NewScripted(), stage.DefaultOptions(), time.Second)

	_, _, err := f.svc.StartSession(ctx, " ")
	assert.True(t, errors.Is(err, ErrParticipantRequired))

	_, _, err = f.svc.StartSession(ctx, "ghost")
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	sess, err := f.svc.CreateSession(ctx, "p", "")
	require.NoError(t, err)
	_, err = f.svc.HandleMessage(ctx, sess.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
