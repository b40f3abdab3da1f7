package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rahul/varta/internal/governance"
	"github.com/rahul/varta/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

func newTestExecutor(model llms.Model, reg *tools.Registry, policy governance.PolicyEngine) *Executor {
	if model == nil {
		model = &scriptedModel{}
	}
	loop := NewLoop(model, reg, nil, nil, policy, nil)
	return NewExecutor(loop, reg, policy, nil)
}

func TestExecutor_PlaceholderResolution(t *testing.T) {
	fetch := &stubTool{name: "fetch", result: "SENTINEL-URL"}
	read := &stubTool{name: "read", result: "page contents"}
	reg := tools.NewRegistry()
	reg.Register(fetch)
	reg.Register(read)
	exec := newTestExecutor(nil, reg, nil)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Tool: "fetch", Action: "find the page", Parameters: map[string]any{"query": "go releases"}},
		{StepNumber: 2, Tool: "read", Action: "read it", Parameters: map[string]any{"url": "{{step 1}}"}},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{})

	if !res.Success || res.StepsCompleted != 2 || res.TotalSteps != 2 {
		t.Fatalf("expected 2/2 steps completed, got %+v", res)
	}
	inputs := read.callInputs()
	if len(inputs) != 1 || !strings.Contains(inputs[0], "SENTINEL-URL") {
		t.Errorf("step 2 must receive step 1's output in its arguments, got %v", inputs)
	}
}

func TestExecutor_PartialFailureContinues(t *testing.T) {
	first := &stubTool{name: "first", result: "one"}
	second := &stubTool{name: "second", err: errors.New("upstream down")}
	third := &stubTool{name: "third", result: "three"}
	reg := tools.NewRegistry()
	reg.Register(first)
	reg.Register(second)
	reg.Register(third)
	exec := newTestExecutor(nil, reg, nil)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Tool: "first", Action: "a", Parameters: map[string]any{"x": "1"}},
		{StepNumber: 2, Tool: "second", Action: "b", Parameters: map[string]any{"x": "2"}},
		{StepNumber: 3, Tool: "third", Action: "c", Parameters: map[string]any{"x": "3"}},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{})

	if res.Success {
		t.Fatal("a failed step must fail the aggregate result")
	}
	if res.StepsCompleted != 2 || res.TotalSteps != 3 {
		t.Errorf("expected 2/3 completed, got %d/%d", res.StepsCompleted, res.TotalSteps)
	}
	if len(third.callInputs()) != 1 {
		t.Error("execution must continue past a non-fatal step failure")
	}
	if !strings.Contains(res.Error, "2 of 3") {
		t.Errorf("aggregate error should report progress, got %q", res.Error)
	}
}

func TestExecutor_PolicyDenialStopsPlan(t *testing.T) {
	first := &stubTool{name: "first", result: "one"}
	blocked := &stubTool{name: "blocked", result: "never"}
	third := &stubTool{name: "third", result: "three"}
	reg := tools.NewRegistry()
	reg.Register(first)
	reg.Register(blocked)
	reg.Register(third)

	policy := governance.NewDefaultPolicyEngine()
	policy.DenyTool("blocked")
	exec := newTestExecutor(nil, reg, policy)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Tool: "first", Action: "a", Parameters: map[string]any{"x": "1"}},
		{StepNumber: 2, Tool: "blocked", Action: "b", Parameters: map[string]any{"x": "2"}},
		{StepNumber: 3, Tool: "third", Action: "c", Parameters: map[string]any{"x": "3"}},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{})

	if res.Success {
		t.Fatal("an authorization failure must fail the plan")
	}
	if res.StepsCompleted != 1 {
		t.Errorf("expected 1 completed step, got %d", res.StepsCompleted)
	}
	if len(blocked.callInputs()) != 0 {
		t.Error("the denied tool must never execute")
	}
	if len(third.callInputs()) != 0 {
		t.Error("steps after an authorization failure must be skipped")
	}
	if !strings.Contains(res.Error, "not authorized") {
		t.Errorf("expected an authorization error, got %q", res.Error)
	}
}

func TestExecutor_UnresolvableReferenceIsNonFatal(t *testing.T) {
	broken := &stubTool{name: "broken", err: errors.New("boom")}
	read := &stubTool{name: "read", result: "page"}
	standalone := &stubTool{name: "standalone", result: "ok"}
	reg := tools.NewRegistry()
	reg.Register(broken)
	reg.Register(read)
	reg.Register(standalone)
	exec := newTestExecutor(nil, reg, nil)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Tool: "broken", Action: "a", Parameters: map[string]any{"x": "1"}},
		{StepNumber: 2, Tool: "read", Action: "b", Parameters: map[string]any{"url": "{{step 1}}"}},
		{StepNumber: 3, Tool: "standalone", Action: "c", Parameters: map[string]any{"x": "3"}},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{})

	if res.StepsCompleted != 1 || res.TotalSteps != 3 {
		t.Errorf("expected 1/3 completed, got %d/%d", res.StepsCompleted, res.TotalSteps)
	}
	if len(read.callInputs()) != 0 {
		t.Error("a step with an unresolvable reference must not invoke its tool")
	}
	if len(standalone.callInputs()) != 1 {
		t.Error("an unresolvable reference must not halt later independent steps")
	}
}

func TestExecutor_RenumbersSparseSteps(t *testing.T) {
	fetch := &stubTool{name: "fetch", result: "FETCHED"}
	read := &stubTool{name: "read", result: "done"}
	reg := tools.NewRegistry()
	reg.Register(fetch)
	reg.Register(read)
	exec := newTestExecutor(nil, reg, nil)

	// Model produced step numbers 2 and 5; after renumbering the first
	// step is 1 and the reference {{step 1}} resolves to its output.
	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 5, Tool: "read", Action: "b", Parameters: map[string]any{"url": "{{step 1}}"}},
		{StepNumber: 2, Tool: "fetch", Action: "a", Parameters: map[string]any{"q": "x"}},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(fetch.callInputs()) != 1 {
		t.Fatal("the lower-numbered step must run first")
	}
	inputs := read.callInputs()
	if len(inputs) != 1 || !strings.Contains(inputs[0], "FETCHED") {
		t.Errorf("renumbered reference did not resolve: %v", inputs)
	}
}

func TestExecutor_ReasoningStep(t *testing.T) {
	model := &scriptedModel{script: []*llms.ContentResponse{textResponse("a concise summary")}}
	reg := tools.NewRegistry()
	exec := newTestExecutor(model, reg, nil)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Action: "summarize the findings"},
	}}

	ec := NewExecutionContext("chat1")
	res := exec.Execute(context.Background(), "chat1", plan, ec, ExecOptions{})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	out, ok := ec.StepResult(1)
	if !ok || out != "a concise summary" {
		t.Errorf("reasoning step output not recorded: %q %v", out, ok)
	}
}

func TestExecutor_ToolStepWithoutArgsRoutesThroughLoop(t *testing.T) {
	model := &scriptedModel{script: []*llms.ContentResponse{
		toolResponse("c1", "fetch", `{"query":"go releases"}`),
		textResponse("fetched it"),
	}}
	fetch := &stubTool{name: "fetch", result: "FETCHED"}
	reg := tools.NewRegistry()
	reg.Register(fetch)
	exec := newTestExecutor(model, reg, nil)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Tool: "fetch", Action: "find the latest go release"},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	// The model, not the plan, supplied the arguments.
	inputs := fetch.callInputs()
	if len(inputs) != 1 || !strings.Contains(inputs[0], "go releases") {
		t.Errorf("expected model-supplied arguments, got %v", inputs)
	}
}

func TestExecutor_PlanBudgetSkipsRemainingSteps(t *testing.T) {
	slow := &stubTool{name: "slow", result: "done", delay: 60 * time.Millisecond}
	reg := tools.NewRegistry()
	reg.Register(slow)
	exec := newTestExecutor(nil, reg, nil)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Tool: "slow", Action: "a", Parameters: map[string]any{"x": "1"}},
		{StepNumber: 2, Tool: "slow", Action: "b", Parameters: map[string]any{"x": "2"}},
		{StepNumber: 3, Tool: "slow", Action: "c", Parameters: map[string]any{"x": "3"}},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{
		StepTimeout: time.Second,
		PlanTimeout: 90 * time.Millisecond,
	})

	if res.Success {
		t.Fatal("expected failure when the plan budget is exhausted")
	}
	if !res.Timeout {
		t.Error("expected the timeout flag on a budget-exhausted run")
	}
	if res.StepsCompleted >= res.TotalSteps {
		t.Errorf("expected fewer completed steps than total, got %d/%d", res.StepsCompleted, res.TotalSteps)
	}
}

func TestResolveParameters(t *testing.T) {
	ec := NewExecutionContext("chat1")
	ec.RecordStep(1, "FIRST")
	ec.RecordStep(2, "SECOND")

	resolved, err := resolveParameters(map[string]any{
		"plain":   "no placeholder",
		"simple":  "{{step 1}}",
		"output":  "{{step2.output}}",
		"result":  "{{ step 2.result }}",
		"mixed":   "before {{step 1}} after",
		"number":  float64(7),
		"boolean": true,
	}, ec)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"plain":   "no placeholder",
		"simple":  "FIRST",
		"output":  "SECOND",
		"result":  "SECOND",
		"mixed":   "before FIRST after",
		"number":  float64(7),
		"boolean": true,
	}
	for k, v := range want {
		if resolved[k] != v {
			t.Errorf("resolved[%q] = %v, want %v", k, resolved[k], v)
		}
	}

	if _, err := resolveParameters(map[string]any{"u": "{{step 9}}"}, ec); err == nil {
		t.Error("a reference to a missing step must error")
	}
}

func TestExecutor_UnknownToolIsNonFatal(t *testing.T) {
	third := &stubTool{name: "third", result: "three"}
	reg := tools.NewRegistry()
	reg.Register(third)
	exec := newTestExecutor(nil, reg, nil)

	plan := Plan{IsMultiStep: true, Steps: []Step{
		{StepNumber: 1, Tool: "ghost", Action: "a", Parameters: map[string]any{"x": "1"}},
		{StepNumber: 2, Tool: "third", Action: "b", Parameters: map[string]any{"x": "2"}},
	}}

	res := exec.Execute(context.Background(), "chat1", plan, nil, ExecOptions{})

	if res.StepsCompleted != 1 {
		t.Errorf("expected the second step to still run, got %d completed", res.StepsCompleted)
	}
	if len(third.callInputs()) != 1 {
		t.Error("unknown tool in an earlier step must not halt the plan")
	}
}
