package agent

// Step is one unit of a multi-step plan. An empty Tool marks a pure
// reasoning step with no external tool invocation. Parameters may carry
// placeholders referencing earlier step outputs (see resolveParameters).
type Step struct {
	StepNumber int            `json:"stepNumber"`
	Tool       string         `json:"tool,omitempty"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Plan is the planner's decision for one user request. Fallback is set
// when the planner could not produce usable output; a fallback plan is
// always routed single-step.
type Plan struct {
	IsMultiStep bool   `json:"isMultiStep"`
	Steps       []Step `json:"steps,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
}

// FallbackPlan is the safe default when planning fails.
func FallbackPlan() Plan {
	return Plan{Fallback: true}
}

// Route is the dispatcher's exhaustive two-variant routing decision.
type Route int

const (
	RouteSingleStep Route = iota
	RouteMultiStep
)

// Route downgrades any plan with fewer than 2 steps to single-step:
// multi-step processing needs at least two dependent steps to justify
// its overhead.
func (p Plan) Route() Route {
	if p.Fallback || !p.IsMultiStep || len(p.Steps) < 2 {
		return RouteSingleStep
	}
	return RouteMultiStep
}
