package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
)

// Event is the payload delivered to the human-review consumer.
type Event struct {
	Report assessment.Report      `json:"report"`
	Plan   assessment.HandoffPlan `json:"plan"`
}

// Notifier delivers finished assessments to the review surface.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	Close()
}

const streamName = "ASSESSMENT_HANDOFF"

// NATSNotifier publishes handoff events to a JetStream subject.
type NATSNotifier struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	logger  *zap.Logger
}

// NewNATSNotifier connects to url and makes sure a stream captures subject.
func NewNATSNotifier(ctx context.Context, url, subject string, log *zap.Logger) (*NATSNotifier, error) {
	log = logger.OrNop(log)

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject},
		Storage:  jetstream.FileStorage,
	}); err != nil {
		// The stream may be managed elsewhere; publishing still works if it exists.
		log.Warn("ensure handoff stream failed", zap.String("stream", streamName), zap.Error(err))
	}

	return &NATSNotifier{nc: nc, js: js, subject: subject, logger: log}, nil
}

// Notify publishes event as JSON.
func (n *NATSNotifier) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode handoff event: %w", err)
	}
	if _, err := n.js.Publish(ctx, n.subject, data); err != nil {
		return fmt.Errorf("publish handoff to %s: %w", n.subject, err)
	}
	n.logger.Info("handoff published",
		zap.String(logger.FieldReportID, event.Report.ID),
		zap.String("priority", string(event.Plan.Priority)),
	)
	return nil
}

// Close closes the NATS connection.
func (n *NATSNotifier) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}

// LogNotifier writes handoff events to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier that only logs.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.OrNop(log)}
}

func (l *LogNotifier) Notify(_ context.Context, event Event) error {
	l.logger.Info("handoff ready for review",
		zap.String(logger.FieldReportID, event.Report.ID),
		zap.String(logger.FieldSessionID, event.Report.SessionID),
		zap.String(logger.FieldParticipantID, event.Report.ParticipantID),
		zap.String("priority", string(event.Plan.Priority)),
		zap.Float64("overall_score", event.Report.OverallScore),
		zap.Strings("discussion_points", event.Plan.DiscussionPoints),
	)
	return nil
}

func (l *LogNotifier) Close() {}
