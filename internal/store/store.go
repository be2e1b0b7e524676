// Package store persists assessment sessions, reports and HR decisions.
//
// Two backends exist: an in-process cache for single-node and test use, and
// Redis for deployments that must survive restarts.
package store

import (
	"context"
	"errors"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
)

var (
	// ErrReportNotFound means no report exists under the requested ID.
	ErrReportNotFound = errors.New("report not found")
	// ErrReportExists guards the append-only report log.
	ErrReportExists = errors.New("report already exists")
)

// UpdateFunc mutates a session in place. Returning an error discards the mutation.
type UpdateFunc func(s *assessment.Session) error

// SessionStore holds live sessions. Missing sessions surface as assessment.ErrSessionNotFound.
type SessionStore interface {
	Create(ctx context.Context, s *assessment.Session) error
	Get(ctx context.Context, id string) (*assessment.Session, error)
	// Update runs fn against the stored session under a per-session lock and
	// persists the result only when fn succeeds. Calls for the same ID are serialized.
	Update(ctx context.Context, id string, fn UpdateFunc) (*assessment.Session, error)
	Delete(ctx context.Context, id string) error
}

// ReportStore is the append-only log of final reports plus the decisions HR records against them.
type ReportStore interface {
	SaveReport(ctx context.Context, r assessment.Report) error
	GetReport(ctx context.Context, id string) (assessment.Report, error)
	ListReports(ctx context.Context, participantID string) ([]assessment.Report, error)
	// DeleteReport removes a report that was never attached to its session.
	// Deleting a missing report is not an error.
	DeleteReport(ctx context.Context, id string) error
	SaveDecision(ctx context.Context, d assessment.Decision) error
	Decisions(ctx context.Context, reportID string) ([]assessment.Decision, error)
}
