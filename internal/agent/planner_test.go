package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rahul/varta/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

func writePlannerPrompt(t *testing.T) *PromptManager {
	t.Helper()
	dir := t.TempDir()
	prompt := "Decide whether the request needs multiple steps. Respond with JSON only."
	if err := os.WriteFile(filepath.Join(dir, "planner.md"), []byte(prompt), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewPromptManager(dir)
}

func TestPlanner_MultiStepPlanParsed(t *testing.T) {
	raw := "```json\n" + `{
  "isMultiStep": true,
  "steps": [
    {"stepNumber": 1, "tool": "web_search", "action": "find the article", "parameters": {"query": "go 1.25"}},
    {"stepNumber": 2, "tool": "read_page", "action": "read it", "parameters": {"url": "{{step 1}}"}}
  ]
}` + "\n```"
	model := &scriptedModel{script: []*llms.ContentResponse{textResponse(raw)}}
	p := NewPlanner(model, "", tools.NewRegistry(), writePlannerPrompt(t), nil)

	plan := p.Plan(context.Background(), "chat1", "summarize the go 1.25 article")

	if plan.Fallback {
		t.Fatal("well-formed planner output must not fall back")
	}
	if plan.Route() != RouteMultiStep {
		t.Fatalf("expected multi-step route, got %v", plan.Route())
	}
	if len(plan.Steps) != 2 || plan.Steps[0].Tool != "web_search" || plan.Steps[1].Tool != "read_page" {
		t.Errorf("unexpected steps: %+v", plan.Steps)
	}
}

func TestPlanner_ModelErrorFallsBack(t *testing.T) {
	model := &scriptedModel{err: errors.New("provider unavailable")}
	p := NewPlanner(model, "", tools.NewRegistry(), writePlannerPrompt(t), nil)

	plan := p.Plan(context.Background(), "chat1", "hello")

	if !plan.Fallback {
		t.Fatal("a model error must produce the fallback plan")
	}
	if plan.Route() != RouteSingleStep {
		t.Error("fallback plans always route single-step")
	}
}

func TestPlanner_GarbageOutputFallsBack(t *testing.T) {
	model := &scriptedModel{script: []*llms.ContentResponse{textResponse("I think you should just ask me directly!")}}
	p := NewPlanner(model, "", tools.NewRegistry(), writePlannerPrompt(t), nil)

	plan := p.Plan(context.Background(), "chat1", "hello")

	if !plan.Fallback {
		t.Fatal("unrecoverable planner output must produce the fallback plan")
	}
}

func TestPlanner_MissingPromptFallsBack(t *testing.T) {
	model := &scriptedModel{script: []*llms.ContentResponse{textResponse(`{"isMultiStep": false}`)}}
	p := NewPlanner(model, "", tools.NewRegistry(), NewPromptManager(t.TempDir()), nil)

	plan := p.Plan(context.Background(), "chat1", "hello")

	if !plan.Fallback {
		t.Fatal("a missing planner template must produce the fallback plan")
	}
	if model.callCount() != 0 {
		t.Error("no model call should be made without a planner template")
	}
}

func TestPlanner_MaxStepsTruncation(t *testing.T) {
	raw := `{"isMultiStep": true, "steps": [
		{"stepNumber": 1, "action": "a"},
		{"stepNumber": 2, "action": "b"},
		{"stepNumber": 3, "action": "c"},
		{"stepNumber": 4, "action": "d"}
	]}`
	model := &scriptedModel{script: []*llms.ContentResponse{textResponse(raw)}}
	p := NewPlanner(model, "", tools.NewRegistry(), writePlannerPrompt(t), nil)
	p.MaxSteps = 2

	plan := p.Plan(context.Background(), "chat1", "do everything")

	if len(plan.Steps) != 2 {
		t.Fatalf("expected truncation to 2 steps, got %d", len(plan.Steps))
	}
	if plan.Steps[1].Action != "b" {
		t.Errorf("truncation must keep the leading steps, got %+v", plan.Steps)
	}
}

func TestPlanRoute(t *testing.T) {
	cases := []struct {
		name string
		plan Plan
		want Route
	}{
		{"fallback", FallbackPlan(), RouteSingleStep},
		{"explicit single", Plan{IsMultiStep: false}, RouteSingleStep},
		{"multi flag but one step", Plan{IsMultiStep: true, Steps: []Step{{StepNumber: 1, Action: "a"}}}, RouteSingleStep},
		{"multi flag no steps", Plan{IsMultiStep: true}, RouteSingleStep},
		{"two steps", Plan{IsMultiStep: true, Steps: []Step{{StepNumber: 1, Action: "a"}, {StepNumber: 2, Action: "b"}}}, RouteMultiStep},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.plan.Route(); got != tc.want {
				t.Errorf("Route() = %v, want %v", got, tc.want)
			}
		})
	}
}
