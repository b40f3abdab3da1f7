package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/varta/internal/observability"
	"github.com/rahul/varta/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Planner decides single-step vs multi-step for one user utterance with a
// one-shot, history-free LLM call on a fast model tier. Planning can never
// fail outward: every error path returns the fallback plan.
type Planner struct {
	Model     llms.Model
	ModelName string // fast/cheap tier; provider default when empty
	Registry  *tools.Registry
	Prompts   *PromptManager
	Logger    *observability.Logger
	MaxSteps  int // plans longer than this are truncated; 0 = no cap
}

func NewPlanner(model llms.Model, modelName string, registry *tools.Registry, prompts *PromptManager, logger *observability.Logger) *Planner {
	return &Planner{
		Model:     model,
		ModelName: modelName,
		Registry:  registry,
		Prompts:   prompts,
		Logger:    logger,
	}
}

// Plan produces a normalized plan for the cleaned user request. The call
// is stateless: no chat history is attached.
func (p *Planner) Plan(ctx context.Context, chatID, input string) Plan {
	prompt, err := p.buildPrompt(input)
	if err != nil {
		p.logPlan(chatID, FallbackPlan())
		return FallbackPlan()
	}

	var callOpts []llms.CallOption
	if p.ModelName != "" {
		callOpts = append(callOpts, llms.WithModel(p.ModelName))
	}
	raw, err := llms.GenerateFromSinglePrompt(ctx, p.Model, prompt, callOpts...)
	if err != nil {
		p.logPlan(chatID, FallbackPlan())
		return FallbackPlan()
	}

	plan, err := NormalizePlan(raw)
	if err != nil {
		if p.Logger != nil {
			p.Logger.LogPlanRepair(chatID, "unrecoverable")
		}
		p.logPlan(chatID, FallbackPlan())
		return FallbackPlan()
	}

	if p.MaxSteps > 0 && len(plan.Steps) > p.MaxSteps {
		plan.Steps = plan.Steps[:p.MaxSteps]
	}
	p.logPlan(chatID, plan)
	return plan
}

func (p *Planner) buildPrompt(input string) (string, error) {
	if p.Prompts == nil {
		return "", fmt.Errorf("no prompt manager configured")
	}
	tmpl, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		return "", err
	}

	var toolLines []string
	if p.Registry != nil {
		for _, t := range p.Registry.All() {
			toolLines = append(toolLines, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
		}
	}

	return fmt.Sprintf("%s\n\n## Available Tools:\n%s\n\n## User Request:\n%s",
		tmpl, strings.Join(toolLines, "\n"), input), nil
}

func (p *Planner) logPlan(chatID string, plan Plan) {
	if p.Logger != nil {
		p.Logger.LogPlan(chatID, plan.IsMultiStep, len(plan.Steps), plan.Fallback)
	}
}
