package handoff

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/store"
)

// ReviewService serves the human-review side: stored reports, their plans and decisions.
type ReviewService struct {
	reports store.ReportStore
	planner *Planner
	logger  *zap.Logger
}

// NewReviewService wires the review surface over the report log.
func NewReviewService(reports store.ReportStore, planner *Planner, log *zap.Logger) *ReviewService {
	if planner == nil {
		planner = NewPlanner()
	}
	return &ReviewService{reports: reports, planner: planner, logger: logger.OrNop(log)}
}

// Report returns a stored report.
func (s *ReviewService) Report(ctx context.Context, reportID string) (assessment.Report, error) {
	return s.reports.GetReport(ctx, reportID)
}

// Reports lists a participant's reports, newest first.
func (s *ReviewService) Reports(ctx context.Context, participantID string) ([]assessment.Report, error) {
	return s.reports.ListReports(ctx, participantID)
}

// Plan recomputes the handoff plan of a stored report.
func (s *ReviewService) Plan(ctx context.Context, reportID string) (assessment.HandoffPlan, error) {
	r, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		return assessment.HandoffPlan{}, err
	}
	return s.planner.Plan(r), nil
}

// Decide records a reviewer verdict next to the report. The report itself is untouched.
func (s *ReviewService) Decide(ctx context.Context, reportID, verdict, notes string) (assessment.Decision, error) {
	if _, err := s.reports.GetReport(ctx, reportID); err != nil {
		return assessment.Decision{}, err
	}

	d, err := s.planner.ProcessDecision(reportID, verdict, notes)
	if err != nil {
		return assessment.Decision{}, err
	}
	if err := s.reports.SaveDecision(ctx, d); err != nil {
		return assessment.Decision{}, fmt.Errorf("save decision: %w", err)
	}

	s.logger.Info("review decision recorded",
		zap.String(logger.FieldReportID, reportID),
		zap.String("decision", string(d.Verdict)),
	)
	return d, nil
}

// Decisions lists the verdicts recorded for a report.
func (s *ReviewService) Decisions(ctx context.Context, reportID string) ([]assessment.Decision, error) {
	return s.reports.Decisions(ctx, reportID)
}
