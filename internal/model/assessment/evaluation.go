package assessment

import "math"

// Evaluation is one stage's self-assessment of the participant.
type Evaluation struct {
	Stage        Stage    `json:"stage"`
	Category     string   `json:"category"`
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	// Fallback is set when the evaluation is the fixed default rather than a parsed result.
	Fallback bool `json:"fallback,omitempty"`
}

// Clone copies the slices so the result can be mutated independently.
func (e Evaluation) Clone() Evaluation {
	e.Strengths = append([]string(nil), e.Strengths...)
	e.Improvements = append([]string(nil), e.Improvements...)
	return e
}

// ClampScore bounds a score to [0,100].
func ClampScore(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return 0
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
