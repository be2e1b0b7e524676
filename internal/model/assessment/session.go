package assessment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound means the session is unknown; callers should restart rather than retry.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionComplete is returned for writes against a finished session. It matches ErrSessionNotFound.
	ErrSessionComplete = fmt.Errorf("%w: session already complete", ErrSessionNotFound)
	// ErrInvariantViolation marks a state machine bug rather than bad input.
	ErrInvariantViolation = errors.New("assessment invariant violated")
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleSystem      Role = "system"
)

// Message is one transcript entry. Index is monotonic within a session.
type Message struct {
	Index     int       `json:"index"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transition records control passing from one stage to its successor.
type Transition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// Session is the mutable record of one in-progress assessment.
// Fields are exported for serialization; mutate only through methods.
type Session struct {
	ID                 string               `json:"id"`
	ParticipantID      string               `json:"participantId"`
	ParticipantContext string               `json:"participantContext"`
	ActiveStage        Stage                `json:"activeStage"`
	Messages           []Message            `json:"messages"`
	Evaluations        map[Stage]Evaluation `json:"evaluations"`
	StageTurns         map[Stage]int        `json:"stageTurns"`
	Transitions        []Transition         `json:"transitions"`
	IsComplete         bool                 `json:"isComplete"`
	ReportID           string               `json:"reportId,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
	EndedAt            *time.Time           `json:"endedAt,omitempty"`
}

// NewSession starts an assessment at the profile review stage.
func NewSession(participantID, participantContext string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:                 uuid.NewString(),
		ParticipantID:      participantID,
		ParticipantContext: participantContext,
		ActiveStage:        StageProfileReview,
		Messages:           make([]Message, 0, 16),
		Evaluations:        make(map[Stage]Evaluation),
		StageTurns:         make(map[Stage]int),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Append adds a transcript entry tagged with the active stage.
func (s *Session) Append(role Role, content string) (Message, error) {
	if s.IsComplete {
		return Message{}, fmt.Errorf("%w: append to completed session %s", ErrInvariantViolation, s.ID)
	}

	msg := Message{
		Index:     len(s.Messages),
		Role:      role,
		Content:   content,
		Stage:     s.ActiveStage,
		CreatedAt: time.Now().UTC(),
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.CreatedAt
	return msg, nil
}

// Window returns a copy of the last n transcript entries.
func (s *Session) Window(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	start := len(s.Messages) - n
	if start < 0 {
		start = 0
	}
	return append([]Message(nil), s.Messages[start:]...)
}

// Transcript returns a copy of the full transcript.
func (s *Session) Transcript() []Message {
	return append([]Message(nil), s.Messages...)
}

// BeginTurn counts one more participant reply for the active stage and returns the new count.
func (s *Session) BeginTurn() int {
	if s.StageTurns == nil {
		s.StageTurns = make(map[Stage]int)
	}
	s.StageTurns[s.ActiveStage]++
	return s.StageTurns[s.ActiveStage]
}

// RecordEvaluation stores the evaluation under its stage, replacing any earlier one.
func (s *Session) RecordEvaluation(ev Evaluation) {
	if s.Evaluations == nil {
		s.Evaluations = make(map[Stage]Evaluation)
	}
	s.Evaluations[ev.Stage] = ev
	s.UpdatedAt = time.Now().UTC()
}

// Evaluation returns the recorded evaluation for stage, if any.
func (s *Session) Evaluation(stage Stage) (Evaluation, bool) {
	ev, ok := s.Evaluations[stage]
	return ev, ok
}

// Advance moves the session to the successor of the active stage.
// Leaving a conversational stage requires an open session; leaving an
// administrative stage requires a completed one. Entering the scorer completes the session.
func (s *Session) Advance() (Stage, error) {
	from := s.ActiveStage
	next, ok := from.Next()
	if !ok {
		return from, fmt.Errorf("%w: stage %q has no successor", ErrInvariantViolation, from)
	}
	if from.Conversational() && s.IsComplete {
		return from, fmt.Errorf("%w: transition out of %q on completed session %s", ErrInvariantViolation, from, s.ID)
	}
	if !from.Conversational() && !s.IsComplete {
		return from, fmt.Errorf("%w: administrative transition out of %q on open session %s", ErrInvariantViolation, from, s.ID)
	}

	now := time.Now().UTC()
	s.ActiveStage = next
	s.Transitions = append(s.Transitions, Transition{From: from, To: next, At: now})
	if next == StageScorer {
		s.IsComplete = true
	}
	if next == StageComplete {
		s.EndedAt = &now
	}
	s.UpdatedAt = now
	return next, nil
}

// Visited reports whether the stage was ever active in this session.
func (s *Session) Visited(stage Stage) bool {
	if s.ActiveStage == stage {
		return true
	}
	for _, t := range s.Transitions {
		if t.From == stage || t.To == stage {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to readers outside the store lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.Transitions = append([]Transition(nil), s.Transitions...)

	cp.Evaluations = make(map[Stage]Evaluation, len(s.Evaluations))
	for k, v := range s.Evaluations {
		cp.Evaluations[k] = v.Clone()
	}
	cp.StageTurns = make(map[Stage]int, len(s.StageTurns))
	for k, v := range s.StageTurns {
		cp.StageTurns[k] = v
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		cp.EndedAt = &ended
	}
	return &cp
}
