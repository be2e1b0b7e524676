package stage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/model/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
)

// Options sets the per-stage limits.
type Options struct {
	ProfileMaxTurns    int
	TechnicalMaxTurns  int
	BehavioralMaxTurns int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{ProfileMaxTurns: 2, TechnicalMaxTurns: 4, BehavioralMaxTurns: 4}
}

// Registry maps each stage tag to its handler.
type Registry struct {
	handlers map[assessment.Stage]Handler
}

// NewRegistry indexes handlers by the stage they report. Later handlers replace earlier ones.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[assessment.Stage]Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			continue
		}
		r.handlers[h.Stage()] = h
	}
	return r
}

// Default wires the five production handlers around one generator.
func Default(gen ai.Generator, opts Options, log *zap.Logger) *Registry {
	return NewRegistry(
		NewProfileReview(gen, opts.ProfileMaxTurns, log),
		NewTechnicalProbe(gen, opts.TechnicalMaxTurns, log),
		NewBehavioralProbe(gen, opts.BehavioralMaxTurns, log),
		NewScorer(),
		NewHandoff(),
	)
}

// Lookup returns the handler for stage. A missing handler means the wiring is broken.
func (r *Registry) Lookup(stage assessment.Stage) (Handler, error) {
	h, ok := r.handlers[stage]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for stage %q", assessment.ErrInvariantViolation, stage)
	}
	return h, nil
}

// Evaluator returns the evaluator for stage, if its handler scores participants.
func (r *Registry) Evaluator(stage assessment.Stage) (Evaluator, bool) {
	h, ok := r.handlers[stage]
	if !ok {
		return nil, false
	}
	ev, ok := h.(Evaluator)
	return ev, ok
}
