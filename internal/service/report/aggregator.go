// Package report turns a finished session into an immutable assessment report.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
	"github.com/zhouzirui/z-assess/backend/internal/service/stage"
)

const (
	// DefaultScore stands in for any stage that produced no evaluation.
	DefaultScore = 75.0

	technicalWeight  = 0.40
	behavioralWeight = 0.35
	profileWeight    = 0.25

	communicationFactor = 0.90

	maxStrengths = 5
	maxRisks     = 3

	summaryTemperature float32 = 0.5
)

const summarySystemPrompt = `You are a Senior Hiring Manager writing the executive summary of a completed engineering assessment for the HR team.
Be objective. Write three or four sentences covering the most important findings. Do not use bullet points.`

// EvaluatorSource resolves the evaluator for a stage. stage.Registry satisfies it.
type EvaluatorSource interface {
	Evaluator(s assessment.Stage) (stage.Evaluator, bool)
}

// Aggregator builds reports from sessions.
type Aggregator struct {
	evaluators EvaluatorSource
	gen        ai.Generator
	timeout    time.Duration
	logger     *zap.Logger
}

// NewAggregator wires the aggregator. gen may be nil, in which case the summary is always the fixed template.
func NewAggregator(evaluators EvaluatorSource, gen ai.Generator, timeout time.Duration, log *zap.Logger) *Aggregator {
	return &Aggregator{
		evaluators: evaluators,
		gen:        gen,
		timeout:    timeout,
		logger:     logger.OrNop(log),
	}
}

// EnsureEvaluations lazily evaluates every conversational stage that has no
// evaluation yet and records the result on s. Stages without an evaluator are
// left for Build to default.
func (a *Aggregator) EnsureEvaluations(ctx context.Context, s *assessment.Session) {
	for _, st := range assessment.ConversationalStages {
		if _, ok := s.Evaluation(st); ok {
			continue
		}
		ev, ok := a.evaluators.Evaluator(st)
		if !ok {
			continue
		}

		callCtx, cancel := a.bounded(ctx)
		result := ev.Evaluate(callCtx, s.Transcript())
		cancel()

		a.logger.Debug("lazy evaluation recorded",
			zap.String(logger.FieldSessionID, s.ID),
			zap.String(logger.FieldStage, string(st)),
			zap.Float64("score", result.Score),
		)
		s.RecordEvaluation(result)
	}
}

// Build produces the report for s. Evaluations missing after EnsureEvaluations fall back to DefaultScore.
func (a *Aggregator) Build(ctx context.Context, s *assessment.Session) assessment.Report {
	a.EnsureEvaluations(ctx, s)

	categories := make([]assessment.CategoryScore, 0, len(assessment.ConversationalStages))
	for _, st := range assessment.ConversationalStages {
		categories = append(categories, categoryFor(s, st))
	}

	profile := categories[0].Score
	technical := categories[1].Score
	behavioral := categories[2].Score

	overall := Overall(technical, behavioral, profile)
	rec := assessment.Recommend(overall)

	r := assessment.Report{
		ID:                 uuid.NewString(),
		SessionID:          s.ID,
		ParticipantID:      s.ParticipantID,
		CreatedAt:          time.Now().UTC(),
		TechnicalScore:     technical,
		BehavioralScore:    behavioral,
		ProfileScore:       profile,
		CommunicationScore: assessment.ClampScore(communicationFactor * behavioral),
		OverallScore:       overall,
		Categories:         categories,
		KeyStrengths:       rankStrengths(categories),
		Risks:              rankRisks(categories),
		Recommendation:     rec,
		RecommendationText: rec.Describe(),
	}
	r.ExecutiveSummary = a.summarize(ctx, s, r)
	return r
}

// Overall is the weighted score, always within [0,100].
func Overall(technical, behavioral, profile float64) float64 {
	return assessment.ClampScore(
		technicalWeight*assessment.ClampScore(technical) +
			behavioralWeight*assessment.ClampScore(behavioral) +
			profileWeight*assessment.ClampScore(profile),
	)
}

func categoryFor(s *assessment.Session, st assessment.Stage) assessment.CategoryScore {
	ev, ok := s.Evaluation(st)
	if !ok {
		return assessment.CategoryScore{
			Stage:     st,
			Category:  st.Category(),
			Score:     DefaultScore,
			Feedback:  "Stage not reached; neutral default applied.",
			Defaulted: true,
		}
	}
	return assessment.CategoryScore{
		Stage:        st,
		Category:     st.Category(),
		Score:        assessment.ClampScore(ev.Score),
		Feedback:     ev.Feedback,
		Strengths:    append([]string(nil), ev.Strengths...),
		Improvements: append([]string(nil), ev.Improvements...),
		Defaulted:    ev.Fallback,
	}
}

// rankStrengths takes strengths from the highest-scoring categories first.
func rankStrengths(categories []assessment.CategoryScore) []string {
	ordered := append([]assessment.CategoryScore(nil), categories...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	var items []string
	for _, c := range ordered {
		items = append(items, c.Strengths...)
	}
	return dedupeCapped(items, maxStrengths)
}

// rankRisks takes improvement areas from the lowest-scoring categories first.
func rankRisks(categories []assessment.CategoryScore) []string {
	ordered := append([]assessment.CategoryScore(nil), categories...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score < ordered[j].Score })

	var items []string
	for _, c := range ordered {
		items = append(items, c.Improvements...)
	}
	return dedupeCapped(items, maxRisks)
}

func dedupeCapped(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, limit)
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (a *Aggregator) summarize(ctx context.Context, s *assessment.Session, r assessment.Report) string {
	fallback := fallbackSummary(r)
	if a.gen == nil {
		return fallback
	}

	var evals strings.Builder
	for _, c := range r.Categories {
		fmt.Fprintf(&evals, "- %s: %.1f/100. %s\n", c.Category, c.Score, c.Feedback)
	}

	callCtx, cancel := a.bounded(ctx)
	defer cancel()

	text, err := a.gen.Generate(callCtx, []ai.Message{
		ai.System(summarySystemPrompt),
		ai.User(fmt.Sprintf("CANDIDATE PROFILE:\n%s\n\nINTERVIEW:\n%d messages exchanged.\n\nSTAGE EVALUATIONS:\n%s\nOVERALL: %.1f/100 (%s)",
			s.ParticipantContext, len(s.Messages), evals.String(), r.OverallScore, r.Recommendation)),
	}, summaryTemperature)
	if err != nil {
		a.logger.Warn("executive summary generation failed, using template",
			zap.String(logger.FieldSessionID, s.ID), zap.Error(err))
		return fallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallback
	}
	return text
}

func fallbackSummary(r assessment.Report) string {
	return fmt.Sprintf("The candidate completed the assessment with an overall score of %.1f/100 "+
		"(technical %.1f, behavioral %.1f, profile %.1f). %s",
		r.OverallScore, r.TechnicalScore, r.BehavioralScore, r.ProfileScore, r.RecommendationText)
}

func (a *Aggregator) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}
