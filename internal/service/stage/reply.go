package stage

import (
	"regexp"
	"strings"
)

const (
	MarkerTechnical  = "[TRANSITION:technical]"
	MarkerBehavioral = "[TRANSITION:behavioral]"
	MarkerEvaluation = "[TRANSITION:evaluation]"
)

var (
	controlToken = regexp.MustCompile(`\[(?:TRANSITION:[A-Za-z_]+|CONTINUE)\]`)
	blankRun     = regexp.MustCompile(`[ \t]{2,}`)
)

// ParseReply splits generated text into the visible reply and the hand-off
// signal. Only marker triggers a transition; every control token is removed
// from the visible text.
func ParseReply(raw, marker string) Reply {
	transition := marker != "" && strings.Contains(raw, marker)

	text := controlToken.ReplaceAllString(raw, "")
	text = blankRun.ReplaceAllString(text, " ")
	return Reply{
		Text:       strings.TrimSpace(text),
		Transition: transition,
	}
}
