// Package handoff prepares finished reports for human review and records the
// reviewer's decision.
package handoff

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/stage"
)

// ErrInvalidDecision is returned for verdicts outside approve, reject and hold.
var ErrInvalidDecision = errors.New("invalid decision")

const (
	highScoreThreshold = 85.0
	lowScoreThreshold  = 50.0
	riskThreshold      = 3
	scoreGap           = 15.0
	maxRiskPoints      = 2
	summaryPreview     = 200
)

var genericDiscussionPoints = []string{
	"Review overall fit with team culture",
	"Discuss growth potential and career path",
	"Confirm compensation expectations alignment",
}

var nextSteps = map[assessment.Verdict]string{
	assessment.VerdictApprove: "Schedule final interview or send offer",
	assessment.VerdictReject:  "Send rejection notification",
	assessment.VerdictHold:    "Schedule follow-up review in 1 week",
}

// Planner derives handoff plans. It holds no state.
type Planner struct {
	now func() time.Time
}

// NewPlanner returns a planner using the wall clock.
func NewPlanner() *Planner {
	return &Planner{now: time.Now}
}

// Plan builds the review plan for r. The same report always yields the same plan.
func (p *Planner) Plan(r assessment.Report) assessment.HandoffPlan {
	priority := PriorityFor(r.OverallScore, len(r.Risks))
	return assessment.HandoffPlan{
		ReportID:                r.ID,
		SessionID:               r.SessionID,
		ParticipantID:           r.ParticipantID,
		Priority:                priority,
		NotificationText:        NotificationText(r, priority),
		DiscussionPoints:        DiscussionPoints(r),
		RequiresImmediateReview: priority == assessment.PriorityHigh,
	}
}

// PriorityFor applies the priority rules in order; the first match wins.
// Very high and very low scores both map to high.
func PriorityFor(overall float64, risks int) assessment.Priority {
	switch {
	case overall >= highScoreThreshold:
		return assessment.PriorityHigh
	case overall < lowScoreThreshold:
		return assessment.PriorityHigh
	case risks >= riskThreshold:
		return assessment.PriorityMedium
	default:
		return assessment.PriorityNormal
	}
}

// DiscussionPoints builds the reviewer agenda. It is never empty.
func DiscussionPoints(r assessment.Report) []string {
	var points []string

	gap := r.TechnicalScore - r.BehavioralScore
	switch {
	case gap > scoreGap:
		points = append(points, "Strong technical skills but behavioral scores are relatively lower - consider team dynamics")
	case -gap > scoreGap:
		points = append(points, "Excellent soft skills - may benefit from technical mentorship")
	}

	for i, risk := range r.Risks {
		if i == maxRiskPoints {
			break
		}
		points = append(points, "Risk to address: "+risk)
	}

	if len(points) == 0 {
		points = append(points, genericDiscussionPoints...)
	}
	return points
}

// NotificationText renders the message sent to the HR channel.
func NotificationText(r assessment.Report, priority assessment.Priority) string {
	var b strings.Builder

	switch priority {
	case assessment.PriorityHigh:
		b.WriteString("[HIGH PRIORITY] ")
	case assessment.PriorityMedium:
		b.WriteString("[MEDIUM PRIORITY] ")
	}
	b.WriteString("New Candidate Assessment Complete\n\n")
	fmt.Fprintf(&b, "Overall Score: %.1f/100\n", r.OverallScore)
	fmt.Fprintf(&b, "Summary: %s\n", preview(r.ExecutiveSummary, summaryPreview))
	fmt.Fprintf(&b, "Recommendation: %s\n", r.RecommendationText)

	if len(r.KeyStrengths) > 0 {
		b.WriteString("\nKey Strengths:\n")
		for _, s := range head(r.KeyStrengths, 3) {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}
	if len(r.Risks) > 0 {
		b.WriteString("\nAreas of Concern:\n")
		for _, s := range head(r.Risks, 2) {
			fmt.Fprintf(&b, "• %s\n", s)
		}
	}

	b.WriteString("\nPlease review the full assessment report and make your decision.")
	return b.String()
}

// ProcessDecision validates a reviewer verdict and attaches the follow-up action.
func (p *Planner) ProcessDecision(reportID, verdict, notes string) (assessment.Decision, error) {
	v, err := assessment.ParseVerdict(verdict)
	if err != nil {
		return assessment.Decision{}, fmt.Errorf("%w: %w", ErrInvalidDecision, err)
	}
	return assessment.Decision{
		ID:        uuid.NewString(),
		ReportID:  reportID,
		Verdict:   v,
		Notes:     strings.TrimSpace(notes),
		NextSteps: nextSteps[v],
		DecidedAt: p.now().UTC(),
	}, nil
}

// ClosingMessage is the participant-facing goodbye, personalized when name is known.
func ClosingMessage(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return stage.ClosingMessage
	}
	return fmt.Sprintf("Thank you so much for taking the time to speak with us today, %s. "+
		"Our HR team will review your assessment and reach out within a few business days. Best of luck!", name)
}

func preview(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
