// Package assessment drives a session through the stage pipeline.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/model/participant"
	"github.com/zhouzirui/z-assess/backend/internal/service/handoff"
	"github.com/zhouzirui/z-assess/backend/internal/service/report"
	"github.com/zhouzirui/z-assess/backend/internal/service/stage"
	"github.com/zhouzirui/z-assess/backend/internal/store"
)

var (
	ErrParticipantRequired = errors.New("participant id is required")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrEmptyMessage        = errors.New("message content is required")
)

const (
	defaultHistoryWindow = 10
	responseSeparator    = "\n\n"
)

// Config bounds the per-call cost of the pipeline.
type Config struct {
	HistoryWindow int
	StageTimeout  time.Duration
}

// Dependencies groups the collaborators of the Service.
type Dependencies struct {
	Sessions     store.SessionStore
	Reports      store.ReportStore
	Participants participant.Store
	Registry     *stage.Registry
	Aggregator   *report.Aggregator
	Planner      *handoff.Planner
	Notifier     handoff.Notifier
	Logger       *zap.Logger
}

// Response is what the participant sees after one message.
type Response struct {
	Text        string           `json:"response"`
	ActiveStage assessment.Stage `json:"activeStage"`
	IsComplete  bool             `json:"isComplete"`
}

// Outcome is the result of ending a session.
type Outcome struct {
	Report         assessment.Report      `json:"report"`
	Plan           assessment.HandoffPlan `json:"plan"`
	ClosingMessage string                 `json:"closingMessage"`
}

// Service is the assessment state machine. Every mutation of a session runs
// inside SessionStore.Update, so calls for one session are serialized while
// different sessions proceed independently.
type Service struct {
	sessions     store.SessionStore
	reports      store.ReportStore
	participants participant.Store
	registry     *stage.Registry
	aggregator   *report.Aggregator
	planner      *handoff.Planner
	notifier     handoff.Notifier
	cfg          Config
	logger       *zap.Logger
}

// NewService wires the orchestrator.
func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	log := logger.OrNop(deps.Logger)

	notifier := deps.Notifier
	if notifier == nil {
		notifier = handoff.NewLogNotifier(log)
	}
	planner := deps.Planner
	if planner == nil {
		planner = handoff.NewPlanner()
	}
	aggregator := deps.Aggregator
	if aggregator == nil {
		aggregator = report.NewAggregator(deps.Registry, nil, cfg.StageTimeout, log)
	}

	return &Service{
		sessions:     deps.Sessions,
		reports:      deps.Reports,
		participants: deps.Participants,
		registry:     deps.Registry,
		aggregator:   aggregator,
		planner:      planner,
		notifier:     notifier,
		cfg:          cfg,
		logger:       log,
	}
}

// CreateSession starts a session at profile review. The participant context is stored as given.
func (s *Service) CreateSession(ctx context.Context, participantID, participantContext string) (*assessment.Session, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, ErrParticipantRequired
	}

	session := assessment.NewSession(participantID, participantContext)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session created",
		zap.String(logger.FieldSessionID, session.ID),
		zap.String(logger.FieldParticipantID, participantID),
	)
	return session.Clone(), nil
}

// OpeningMessage asks the active stage for its opener and records it.
func (s *Service) OpeningMessage(ctx context.Context, sessionID string) (string, error) {
	work, err := detach(ctx)
	if err != nil {
		return "", err
	}

	var opening string
	_, err = s.sessions.Update(work, sessionID, func(sess *assessment.Session) error {
		if sess.IsComplete {
			return fmt.Errorf("%w: %s", assessment.ErrSessionComplete, sess.ID)
		}
		h, err := s.registry.Lookup(sess.ActiveStage)
		if err != nil {
			return err
		}

		opening = s.start(work, h, sess.ParticipantContext)
		_, err = sess.Append(assessment.RoleSystem, opening)
		return err
	})
	if err != nil {
		return "", s.surface(sessionID, err)
	}
	return opening, nil
}

// StartSession resolves the participant, creates a session and returns it with its opener.
func (s *Service) StartSession(ctx context.Context, participantID string) (*assessment.Session, string, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, "", ErrParticipantRequired
	}

	var participantContext string
	if s.participants != nil {
		p, ok := s.participants.FindByID(participantID)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrParticipantNotFound, participantID)
		}
		participantContext = p.Context
	}

	session, err := s.CreateSession(ctx, participantID, participantContext)
	if err != nil {
		return nil, "", err
	}
	opening, err := s.OpeningMessage(ctx, session.ID)
	if err != nil {
		return nil, "", err
	}

	snapshot, err := s.sessions.Get(ctx, session.ID)
	if err != nil {
		return nil, "", err
	}
	return snapshot, opening, nil
}

// HandleMessage feeds one participant message through the active stage.
// Unknown and completed sessions fail with an error matching
// assessment.ErrSessionNotFound and leave no trace.
func (s *Service) HandleMessage(ctx context.Context, sessionID, content string) (Response, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Response{}, ErrEmptyMessage
	}

	work, err := detach(ctx)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	_, err = s.sessions.Update(work, sessionID, func(sess *assessment.Session) error {
		if sess.IsComplete {
			return fmt.Errorf("%w: %s", assessment.ErrSessionComplete, sess.ID)
		}

		leaving := sess.ActiveStage
		if !leaving.Conversational() {
			return fmt.Errorf("%w: open session %s parked in %q", assessment.ErrInvariantViolation, sess.ID, leaving)
		}
		h, err := s.registry.Lookup(leaving)
		if err != nil {
			return err
		}

		if _, err := sess.Append(assessment.RoleParticipant, content); err != nil {
			return err
		}
		turn := stage.Turn{
			ParticipantContext: sess.ParticipantContext,
			History:            sess.Window(s.cfg.HistoryWindow),
			Message:            content,
			Number:             sess.BeginTurn(),
		}

		reply := s.respond(work, h, turn)
		if _, err := sess.Append(assessment.RoleSystem, reply.Text); err != nil {
			return err
		}

		text := reply.Text
		if reply.Transition {
			opener, err := s.transition(work, sess, reply)
			if err != nil {
				return err
			}
			if opener != "" {
				text = strings.TrimSpace(text + responseSeparator + opener)
			}
		}

		resp = Response{Text: text, ActiveStage: sess.ActiveStage, IsComplete: sess.IsComplete}
		return nil
	})
	if err != nil {
		return Response{}, s.surface(sessionID, err)
	}
	return resp, nil
}

// transition evaluates the leaving stage, advances the session and opens the next
// conversational stage. It returns the opener, empty when the next stage is administrative.
func (s *Service) transition(ctx context.Context, sess *assessment.Session, reply stage.Reply) (string, error) {
	leaving := sess.ActiveStage
	expected, ok := leaving.Next()
	if !ok {
		return "", fmt.Errorf("%w: stage %q cannot transition", assessment.ErrInvariantViolation, leaving)
	}
	if reply.Next != "" && reply.Next != expected {
		return "", fmt.Errorf("%w: stage %q requested %q, table says %q",
			assessment.ErrInvariantViolation, leaving, reply.Next, expected)
	}

	if ev, ok := s.registry.Evaluator(leaving); ok {
		callCtx, cancel := s.bounded(ctx)
		evaluation := ev.Evaluate(callCtx, sess.Transcript())
		cancel()
		sess.RecordEvaluation(evaluation)
	}

	next, err := sess.Advance()
	if err != nil {
		return "", err
	}
	logger.Session(s.logger, sess.ID, string(next)).Info("stage transition",
		zap.String("from", string(leaving)),
		zap.Bool("complete", sess.IsComplete),
	)

	if !next.Conversational() {
		return "", nil
	}
	h, err := s.registry.Lookup(next)
	if err != nil {
		return "", err
	}
	opener := s.start(ctx, h, sess.ParticipantContext)
	if _, err := sess.Append(assessment.RoleSystem, opener); err != nil {
		return "", err
	}
	return opener, nil
}

// EndSession finalizes the session: it builds and stores the report, walks the
// remaining stages to complete and hands the result to the review consumer.
// Repeated calls return the stored report.
func (s *Service) EndSession(ctx context.Context, sessionID string) (Outcome, error) {
	work, err := detach(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var (
		rep     assessment.Report
		created bool
	)
	sess, err := s.sessions.Update(work, sessionID, func(sess *assessment.Session) error {
		if sess.ReportID != "" {
			existing, err := s.reports.GetReport(work, sess.ReportID)
			if err != nil {
				return err
			}
			rep = existing
			return nil
		}

		rep = s.aggregator.Build(work, sess)

		for sess.ActiveStage != assessment.StageComplete {
			if _, err := sess.Advance(); err != nil {
				return err
			}
		}

		if err := s.reports.SaveReport(work, rep); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		sess.ReportID = rep.ID
		created = true
		return nil
	})
	if err != nil {
		// The session write failed after the report was stored; drop the
		// orphan so a retry does not leave two reports for one session.
		if created {
			if derr := s.reports.DeleteReport(work, rep.ID); derr != nil {
				s.logger.Error("failed to remove orphaned report",
					zap.String(logger.FieldSessionID, sessionID),
					zap.String(logger.FieldReportID, rep.ID),
					zap.Error(derr),
				)
			}
		}
		return Outcome{}, s.surface(sessionID, err)
	}

	plan := s.planner.Plan(rep)
	log := logger.Session(s.logger, sess.ID, string(sess.ActiveStage)).With(zap.String(logger.FieldReportID, rep.ID))
	if created {
		log.Info("assessment completed",
			zap.Float64("overall_score", rep.OverallScore),
			zap.String("recommendation", string(rep.Recommendation)),
			zap.String("priority", string(plan.Priority)),
		)
		if err := s.notifier.Notify(work, handoff.Event{Report: rep, Plan: plan}); err != nil {
			log.Error("handoff notification failed", zap.Error(err))
		}
	}

	return Outcome{Report: rep, Plan: plan, ClosingMessage: s.closing(work, sess)}, nil
}

// Session returns a read-only snapshot.
func (s *Service) Session(ctx context.Context, sessionID string) (*assessment.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

func (s *Service) closing(ctx context.Context, sess *assessment.Session) string {
	if s.participants != nil {
		if p, ok := s.participants.FindByID(sess.ParticipantID); ok && p.Name != "" {
			return handoff.ClosingMessage(p.Name)
		}
	}
	h, err := s.registry.Lookup(assessment.StageHandoff)
	if err != nil {
		return handoff.ClosingMessage("")
	}
	return s.start(ctx, h, sess.ParticipantContext)
}

func (s *Service) start(ctx context.Context, h stage.Handler, participantContext string) string {
	callCtx, cancel := s.bounded(ctx)
	defer cancel()
	return h.Start(callCtx, participantContext)
}

func (s *Service) respond(ctx context.Context, h stage.Handler, turn stage.Turn) stage.Reply {
	callCtx, cancel := s.bounded(ctx)
	defer cancel()
	return h.Respond(callCtx, turn)
}

// detach lets session work outlive the request that started it, so a client
// disconnect cannot persist a half-finished turn. Each stage call is still
// bounded by StageTimeout.
func detach(ctx context.Context) (context.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return context.WithoutCancel(ctx), nil
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StageTimeout)
}

// surface logs invariant violations loudly before returning them.
func (s *Service) surface(sessionID string, err error) error {
	if errors.Is(err, assessment.ErrInvariantViolation) {
		s.logger.Error("assessment invariant violated", zap.String(logger.FieldSessionID, sessionID), zap.Error(err))
	}
	return err
}
