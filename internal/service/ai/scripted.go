package ai

import (
	"context"
	"strings"
)

// openPrefix starts every stage-opening instruction.
const openPrefix = "open the"

// Scripted is an offline Generator used when no chat model credentials are
// configured. It keys canned replies off the system prompt so a full
// assessment can be walked through locally.
type Scripted struct{}

// NewScripted returns the offline generator.
func NewScripted() *Scripted {
	return &Scripted{}
}

// Generate returns a canned reply for the stage that owns the prompt.
func (s *Scripted) Generate(_ context.Context, messages []Message, _ float32) (string, error) {
	var system, last string
	for _, msg := range messages {
		if msg.Role == RoleSystem && system == "" {
			system = strings.ToLower(msg.Content)
		}
		if msg.Role == RoleUser {
			last = strings.ToLower(msg.Content)
		}
	}

	switch {
	case strings.Contains(system, "valid json"):
		return `{"score": 75, "feedback": "Solid, consistent answers throughout this stage.", "strengths": ["Clear communication"], "improvements": ["Provide more concrete metrics"]}`, nil
	case strings.Contains(system, "executive summary"):
		return "The candidate completed every stage of the assessment and gave consistent, well-structured answers. Review the category scores for detail.", nil
	case strings.Contains(system, "profile reviewer"):
		if strings.HasPrefix(last, openPrefix) {
			return "Welcome to the engineering assessment! I've reviewed your profile. Could you briefly introduce yourself and your most recent role?", nil
		}
		return "Thank you, that's great context. Let's dive into the technical assessment now. [TRANSITION:technical]", nil
	case strings.Contains(system, "technical interviewer"):
		if strings.HasPrefix(last, openPrefix) {
			return "Let's start with system design: how would you design message persistence for a real-time chat service?", nil
		}
		if strings.Contains(last, "design") {
			return "That's a solid architectural choice. How would you verify its scalability under load?", nil
		}
		return "Understood. What trade-offs did you weigh when choosing that approach?", nil
	case strings.Contains(system, "behavioral interviewer"):
		if strings.HasPrefix(last, openPrefix) {
			return "Thanks for the technical discussion. Tell me about a time you handled a disagreement within your team.", nil
		}
		if strings.Contains(last, "conflict") {
			return "Handling conflict constructively is key. Tell me about a time you persuaded a stakeholder to change course.", nil
		}
		return "Thanks for sharing. Tell me about a time you had to adapt quickly to a change in priorities.", nil
	default:
		return "I understand. Please continue.", nil
	}
}
