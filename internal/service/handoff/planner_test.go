package handoff

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
)

func TestPriorityBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		overall float64
		risks   int
		want    assessment.Priority
	}{
		{"85 fast track", 85, 0, assessment.PriorityHigh},
		{"84.9 no risks", 84.9, 0, assessment.PriorityNormal},
		{"40 with risks", 40, 3, assessment.PriorityHigh},
		{"40 without risks", 40, 0, assessment.PriorityHigh},
		{"50 is not low", 50, 0, assessment.PriorityNormal},
		{"49.9 is low", 49.9, 0, assessment.PriorityHigh},
		{"three risks", 70, 3, assessment.PriorityMedium},
		{"two risks", 70, 2, assessment.PriorityNormal},
		{"high score beats risks", 90, 3, assessment.PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PriorityFor(tt.overall, tt.risks))
		})
	}
}

func TestDiscussionPoints(t *testing.T) {
	points := DiscussionPoints(assessment.Report{TechnicalScore: 90, BehavioralScore: 70})
	assert.Equal(t, []string{"Strong technical skills but behavioral scores are relatively lower - consider team dynamics"}, points)

	points = DiscussionPoints(assessment.Report{TechnicalScore: 60, BehavioralScore: 80, Risks: []string{"a", "b", "c"}})
	assert.Equal(t, []string{
		"Excellent soft skills - may benefit from technical mentorship",
		"Risk to address: a",
		"Risk to address: b",
	}, points)

	// A gap of exactly 15 is not enough.
	points = DiscussionPoints(assessment.Report{TechnicalScore: 90, BehavioralScore: 75})
	assert.Equal(t, genericDiscussionPoints, points)
}

func TestPlan(t *testing.T) {
	r := assessment.Report{
		ID:                 "r1",
		SessionID:          "s1",
		OverallScore:       86.4,
		ExecutiveSummary:   strings.Repeat("x", 250),
		RecommendationText: assessment.RecommendStrongHire.Describe(),
		KeyStrengths:       []string{"s1", "s2", "s3", "s4"},
		Risks:              []string{"r1", "r2", "r3"},
	}

	plan := NewPlanner().Plan(r)
	assert.Equal(t, assessment.PriorityHigh, plan.Priority)
	assert.True(t, plan.RequiresImmediateReview)
	assert.Equal(t, "r1", plan.ReportID)

	text := plan.NotificationText
	assert.True(t, strings.HasPrefix(text, "[HIGH PRIORITY]"))
	assert.Contains(t, text, "86.4/100")
	assert.Contains(t, text, strings.Repeat("x", 200)+"...")
	assert.Contains(t, text, "• s3")
	assert.NotContains(t, text, "• s4")
	assert.Contains(t, text, "• r2")
	assert.NotContains(t, text, "• r3")
	assert.True(t, strings.HasSuffix(text, "make your decision."))
}

func TestProcessDecision(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &Planner{now: func() time.Time { return fixed }}

	d, err := p.ProcessDecision("r1", " Approve ", " great ")
	require.NoError(t, err)
	assert.Equal(t, assessment.VerdictApprove, d.Verdict)
	assert.Equal(t, "Schedule final interview or send offer", d.NextSteps)
	assert.Equal(t, "great", d.Notes)
	assert.Equal(t, fixed, d.DecidedAt)
	assert.NotEmpty(t, d.ID)

	d, err = p.ProcessDecision("r1", "hold", "")
	require.NoError(t, err)
	assert.Equal(t, "Schedule follow-up review in 1 week", d.NextSteps)

	_, err = p.ProcessDecision("r1", "maybe", "")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestClosingMessage(t *testing.T) {
	assert.Contains(t, ClosingMessage("Maya"), "Maya")
	assert.Contains(t, ClosingMessage(""), "few business days")
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), Event{
		Report: assessment.Report{ID: "r1"},
		Plan:   assessment.HandoffPlan{Priority: assessment.PriorityMedium},
	}))
	entries := logs.FilterMessage("handoff ready for review").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].ContextMap()["report_id"])
}

func TestNATSNotifier(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := NewNATSNotifier(ctx, url, "assessment.handoff.test", nil)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.Notify(ctx, Event{Report: assessment.Report{ID: "r1"}}))
}
