package assessment

import (
	"fmt"
	"strings"
	"time"
)

// Recommendation is the hiring label derived from the overall score.
type Recommendation string

const (
	RecommendStrongHire Recommendation = "STRONG HIRE"
	RecommendHire       Recommendation = "HIRE"
	RecommendConsider   Recommendation = "CONSIDER"
	RecommendNoHire     Recommendation = "NO HIRE"
)

var recommendationText = map[Recommendation]string{
	RecommendStrongHire: "Candidate demonstrates excellent qualifications and strong fit for the role.",
	RecommendHire:       "Candidate meets requirements with some areas for development. Recommended for role.",
	RecommendConsider:   "Candidate shows potential but has notable gaps. Recommend additional evaluation.",
	RecommendNoHire:     "Candidate does not meet minimum requirements for this role.",
}

// Recommend maps an overall score to its band. Each band includes its lower bound.
func Recommend(overall float64) Recommendation {
	switch {
	case overall >= 80:
		return RecommendStrongHire
	case overall >= 65:
		return RecommendHire
	case overall >= 50:
		return RecommendConsider
	default:
		return RecommendNoHire
	}
}

// Describe returns the reviewer-facing sentence for the label.
func (r Recommendation) Describe() string {
	return fmt.Sprintf("%s - %s", r, recommendationText[r])
}

// CategoryScore is one stage's contribution to the report.
type CategoryScore struct {
	Stage        Stage    `json:"stage"`
	Category     string   `json:"category"`
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Defaulted    bool     `json:"defaulted,omitempty"`
}

// Report is the final aggregated scoring artifact. It is never mutated after creation.
type Report struct {
	ID                 string          `json:"id"`
	SessionID          string          `json:"sessionId"`
	ParticipantID      string          `json:"participantId"`
	CreatedAt          time.Time       `json:"createdAt"`
	TechnicalScore     float64         `json:"technicalScore"`
	BehavioralScore    float64         `json:"behavioralScore"`
	ProfileScore       float64         `json:"profileScore"`
	CommunicationScore float64         `json:"communicationScore"`
	OverallScore       float64         `json:"overallScore"`
	Categories         []CategoryScore `json:"categories"`
	ExecutiveSummary   string          `json:"executiveSummary"`
	KeyStrengths       []string        `json:"keyStrengths"`
	Risks              []string        `json:"risks"`
	Recommendation     Recommendation  `json:"recommendation"`
	RecommendationText string          `json:"recommendationText"`
}

// Clone returns a deep copy so stored reports cannot be changed through shared slices.
func (r Report) Clone() Report {
	cp := r
	cp.KeyStrengths = cloneStrings(r.KeyStrengths)
	cp.Risks = cloneStrings(r.Risks)
	if r.Categories != nil {
		cp.Categories = make([]CategoryScore, len(r.Categories))
		for i, c := range r.Categories {
			c.Strengths = cloneStrings(c.Strengths)
			c.Improvements = cloneStrings(c.Improvements)
			cp.Categories[i] = c
		}
	}
	return cp
}

func cloneStrings(items []string) []string {
	if items == nil {
		return nil
	}
	return append(make([]string, 0, len(items)), items...)
}

// Priority is the review urgency assigned to a handoff.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// HandoffPlan is what the human reviewer receives alongside the report.
type HandoffPlan struct {
	ReportID                string   `json:"reportId"`
	SessionID               string   `json:"sessionId"`
	ParticipantID           string   `json:"participantId"`
	Priority                Priority `json:"priority"`
	NotificationText        string   `json:"notificationText"`
	DiscussionPoints        []string `json:"discussionPoints"`
	RequiresImmediateReview bool     `json:"requiresImmediateReview"`
}

// Verdict is the reviewer's decision on a report.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictHold    Verdict = "hold"
)

// ParseVerdict normalizes a reviewer decision.
func ParseVerdict(raw string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(raw))); v {
	case VerdictApprove, VerdictReject, VerdictHold:
		return v, nil
	default:
		return "", fmt.Errorf("unknown decision %q", raw)
	}
}

// Decision is a reviewer annotation appended next to a report.
type Decision struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	Verdict   Verdict   `json:"decision"`
	Notes     string    `json:"notes,omitempty"`
	NextSteps string    `json:"nextSteps"`
	DecidedAt time.Time `json:"decidedAt"`
}
