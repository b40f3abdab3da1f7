package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rahul/varta/internal/governance"
	"github.com/rahul/varta/internal/observability"
	"github.com/rahul/varta/internal/tools"
)

// ExecOptions configures a multi-step run. The iteration and timeout
// budgets are reused per step, not summed; PlanTimeout is the explicit
// aggregate ceiling over the whole plan (0 derives steps × StepTimeout).
type ExecOptions struct {
	StepMaxIterations int
	StepTimeout       time.Duration
	PlanTimeout       time.Duration
	LanguageHint      string // localization instruction appended to reasoning steps
}

// Executor runs a validated plan's steps strictly in order, carrying each
// step's output forward so later steps can reference it, and keeps going
// past non-fatal step failures.
type Executor struct {
	Loop     *Loop
	Registry *tools.Registry
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
}

func NewExecutor(loop *Loop, registry *tools.Registry, policy governance.PolicyEngine, logger *observability.Logger) *Executor {
	return &Executor{
		Loop:     loop,
		Registry: registry,
		Policy:   policy,
		Logger:   logger,
	}
}

// stepOutcome is the per-step record used for the aggregate summary.
type stepOutcome struct {
	step    Step
	ok      bool
	skipped bool
	detail  string
}

func (e *Executor) Execute(ctx context.Context, chatID string, plan Plan, ec *ExecutionContext, opts ExecOptions) *Result {
	if ec == nil {
		ec = NewExecutionContext(chatID)
	}
	if opts.StepMaxIterations <= 0 {
		opts.StepMaxIterations = DefaultMaxIterations
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultTimeout
	}

	// Renumber defensively: the model's stepNumber values are ordered but
	// not trusted to be contiguous.
	steps := append([]Step(nil), plan.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	for i := range steps {
		steps[i].StepNumber = i + 1
	}

	planTimeout := opts.PlanTimeout
	if planTimeout <= 0 {
		planTimeout = time.Duration(len(steps)) * opts.StepTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, planTimeout)
	defer cancel()

	outcomes := make([]stepOutcome, 0, len(steps))
	completed := 0
	fatal := ""
	timedOut := false

	for _, st := range steps {
		observability.SetStepProgress(completed, len(steps))
		if fatal != "" {
			outcomes = append(outcomes, stepOutcome{step: st, skipped: true, detail: "skipped"})
			e.logStep(chatID, st, "skipped")
			continue
		}
		if runCtx.Err() != nil {
			timedOut = true
			outcomes = append(outcomes, stepOutcome{step: st, skipped: true, detail: "skipped (plan budget exhausted)"})
			e.logStep(chatID, st, "skipped")
			continue
		}

		e.logStep(chatID, st, "in_progress")
		out, stepErr, isFatal := e.runStep(runCtx, chatID, st, ec, opts)
		if stepErr != nil {
			if isFatal {
				fatal = stepErr.Error()
			}
			outcomes = append(outcomes, stepOutcome{step: st, detail: stepErr.Error()})
			e.logStep(chatID, st, "failed")
			continue
		}

		ec.RecordStep(st.StepNumber, out)
		completed++
		outcomes = append(outcomes, stepOutcome{step: st, ok: true, detail: out})
		e.logStep(chatID, st, "completed")
	}

	res := &Result{
		MultiStep:      true,
		StepsCompleted: completed,
		TotalSteps:     len(steps),
		Success:        completed == len(steps),
		Timeout:        timedOut,
		Text:           e.summarize(outcomes, fatal),
	}
	if !res.Success {
		switch {
		case fatal != "":
			res.Error = fatal
		case timedOut:
			res.Error = fmt.Sprintf("plan exceeded its %s budget after %d of %d steps", planTimeout, completed, len(steps))
		default:
			res.Error = fmt.Sprintf("completed %d of %d steps", completed, len(steps))
		}
	}
	attachContext(res, ec)
	return res
}

// runStep executes one step. The returned fatal flag marks failures of
// the authorization class, which abort the remainder of the plan.
func (e *Executor) runStep(ctx context.Context, chatID string, st Step, ec *ExecutionContext, opts ExecOptions) (string, error, bool) {
	resolved, err := resolveParameters(st.Parameters, ec)
	if err != nil {
		return "", err, false
	}

	// A step without a tool is a pure reasoning turn: one model
	// iteration on the step's action, no tool declarations.
	if st.Tool == "" {
		return e.runReasoningStep(ctx, chatID, st, ec, opts)
	}

	tool := e.Registry.Get(st.Tool)
	if tool == nil {
		return "", fmt.Errorf("step %d references unknown tool %q", st.StepNumber, st.Tool), false
	}

	// With no resolved arguments the model still has to work out what to
	// pass, so the step routes through the agent loop; otherwise the tool
	// is invoked directly.
	if len(resolved) == 0 {
		return e.runToolStepViaLoop(ctx, chatID, st, ec, opts)
	}

	args, err := json.Marshal(resolved)
	if err != nil {
		return "", fmt.Errorf("step %d has unencodable parameters: %v", st.StepNumber, err), false
	}

	if e.Policy != nil {
		verdict, perr := e.Policy.Evaluate(ctx, governance.Request{Tool: st.Tool, Arguments: string(args), ChatID: chatID})
		if perr == nil && e.Logger != nil {
			e.Logger.LogPolicy(chatID, st.Tool, string(verdict.Effect), verdict.Reason)
		}
		if perr == nil && verdict.Denied() {
			return "", fmt.Errorf("step %d not authorized: %s", st.StepNumber, verdict.Reason), true
		}
	}

	stepCtx, cancel := context.WithTimeout(tools.WithChatID(ctx, chatID), opts.StepTimeout)
	defer cancel()

	out, err := tool.Execute(stepCtx, string(args))
	ec.RecordCall(st.Tool, string(args), errOr(out, err), err != nil)
	if err != nil {
		return "", fmt.Errorf("step %d (%s) failed: %v", st.StepNumber, st.Tool, err), false
	}
	return out, nil, false
}

func (e *Executor) runReasoningStep(ctx context.Context, chatID string, st Step, ec *ExecutionContext, opts ExecOptions) (string, error, bool) {
	prompt := st.Action
	if opts.LanguageHint != "" {
		prompt += "\n\n" + opts.LanguageHint
	}
	res := e.Loop.Run(ctx, chatID, prompt, ec, LoopOptions{
		MaxIterations: 1,
		Timeout:       opts.StepTimeout,
		DisableTools:  true,
	})
	if !res.Success {
		return "", fmt.Errorf("step %d failed: %s", st.StepNumber, res.Error), false
	}
	return res.Text, nil, false
}

func (e *Executor) runToolStepViaLoop(ctx context.Context, chatID string, st Step, ec *ExecutionContext, opts ExecOptions) (string, error, bool) {
	prompt := fmt.Sprintf("%s\n\nUse the %s tool to accomplish this.", st.Action, st.Tool)
	if opts.LanguageHint != "" {
		prompt += "\n\n" + opts.LanguageHint
	}
	res := e.Loop.Run(ctx, chatID, prompt, ec, LoopOptions{
		MaxIterations: opts.StepMaxIterations,
		Timeout:       opts.StepTimeout,
	})
	if !res.Success {
		return "", fmt.Errorf("step %d failed: %s", st.StepNumber, res.Error), false
	}
	return res.Text, nil, false
}

// resolveParameters substitutes placeholders like {{step 1}} with the
// referenced step's recorded output. A reference to a step that failed or
// does not exist fails this step without halting the plan.
func resolveParameters(params map[string]any, ec *ExecutionContext) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		s, isString := v.(string)
		if !isString {
			resolved[k] = v
			continue
		}
		var missing error
		out := stepRefRe.ReplaceAllStringFunc(s, func(m string) string {
			sub := stepRefRe.FindStringSubmatch(m)
			n, _ := strconv.Atoi(sub[1])
			prior, ok := ec.StepResult(n)
			if !ok {
				missing = fmt.Errorf("parameter %q references step %d, whose output is not available", k, n)
				return m
			}
			return prior
		})
		if missing != nil {
			return nil, missing
		}
		resolved[k] = out
	}
	return resolved, nil
}

// summarize synthesizes the final text: what each step produced, or the
// fatal error when the run aborted early.
func (e *Executor) summarize(outcomes []stepOutcome, fatal string) string {
	if fatal != "" {
		return fatal
	}
	var b strings.Builder
	for _, o := range outcomes {
		switch {
		case o.ok:
			detail := o.detail
			if len(detail) > 300 {
				detail = detail[:297] + "..."
			}
			fmt.Fprintf(&b, "Step %d (%s):\n%s\n\n", o.step.StepNumber, o.step.Action, detail)
		case o.skipped:
			fmt.Fprintf(&b, "Step %d (%s): %s\n\n", o.step.StepNumber, o.step.Action, o.detail)
		default:
			fmt.Fprintf(&b, "Step %d (%s): failed (%s)\n\n", o.step.StepNumber, o.step.Action, o.detail)
		}
	}
	return strings.TrimSpace(b.String())
}

func (e *Executor) logStep(chatID string, st Step, status string) {
	if e.Logger != nil {
		e.Logger.LogStep(chatID, st.StepNumber, st.Tool, status)
	}
}

func errOr(out string, err error) string {
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}
