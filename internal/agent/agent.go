package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rahul/varta/internal/observability"
)

// LastCommand is the durable record of the most recent run for a chat,
// used by the retry-last feature.
type LastCommand struct {
	Tool        string         `json:"tool,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Normalized  string         `json:"normalized,omitempty"`
	Prompt      string         `json:"prompt"`
	Failed      bool           `json:"failed"`
	MediaURLs   []string       `json:"media_urls,omitempty"`
	IsMultiStep bool           `json:"is_multi_step,omitempty"`
	Plan        *Plan          `json:"plan,omitempty"`
}

// CommandStore persists the per-chat last-command record; payloads are
// opaque to the storage layer, last-writer-wins per chat.
type CommandStore interface {
	GetLastCommand(chatID string) ([]byte, error)
	SetLastCommand(chatID string, payload []byte) error
}

// Options are the dispatcher-level defaults, normally taken from config.
type Options struct {
	MaxIterations  int
	Timeout        time.Duration
	PlanTimeout    time.Duration
	IncludeHistory bool
	HistoryLimit   int
	LanguageHint   string
}

// Agent is the top-level dispatcher: plan the request, route it through
// the single-step loop or the multi-step executor, and persist what
// happened for the next turn.
type Agent struct {
	Planner  *Planner
	Loop     *Loop
	Executor *Executor
	Contexts *ContextManager
	Commands CommandStore
	History  HistoryStore
	Logger   *observability.Logger
	Options  Options
}

func NewAgent(planner *Planner, loop *Loop, executor *Executor, contexts *ContextManager, commands CommandStore, history HistoryStore, logger *observability.Logger, opts Options) *Agent {
	return &Agent{
		Planner:  planner,
		Loop:     loop,
		Executor: executor,
		Contexts: contexts,
		Commands: commands,
		History:  history,
		Logger:   logger,
		Options:  opts,
	}
}

// ExecuteQuery runs one user utterance end to end. It never panics
// outward: every failure mode resolves to a well-formed Result.
func (a *Agent) ExecuteQuery(ctx context.Context, chatID, input string) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("agent panic recovered: %v", r)
			res = &Result{
				Success: false,
				Error:   fmt.Sprintf("internal error: %v", r),
				Text:    "Something went wrong on my side. Please try again.",
			}
		}
	}()

	ec := a.Contexts.CreateInitial(chatID)
	a.Contexts.LoadPrevious(ec)

	observability.SetStatus(observability.RolePlanner, input)
	plan := a.Planner.Plan(ctx, chatID, input)

	switch plan.Route() {
	case RouteMultiStep:
		observability.SetStatus(observability.RoleExecutor, input)
		res = a.Executor.Execute(ctx, chatID, plan, ec, ExecOptions{
			StepMaxIterations: a.Options.MaxIterations,
			StepTimeout:       a.Options.Timeout,
			PlanTimeout:       a.Options.PlanTimeout,
			LanguageHint:      a.Options.LanguageHint,
		})
	case RouteSingleStep:
		observability.SetStatus(observability.RoleAgent, input)
		res = a.Loop.Run(ctx, chatID, input, ec, LoopOptions{
			MaxIterations:  a.Options.MaxIterations,
			Timeout:        a.Options.Timeout,
			IncludeHistory: a.Options.IncludeHistory,
			HistoryLimit:   a.Options.HistoryLimit,
		})
	}
	observability.SetStatus(observability.RoleIdle, "")

	a.saveLastCommand(chatID, input, plan, res, ec)
	a.Contexts.Save(ec)
	a.recordHistory(chatID, input, res)
	return res
}

// RetryLast replays the most recently recorded command for the chat.
func (a *Agent) RetryLast(ctx context.Context, chatID string) *Result {
	cmd, err := a.loadLastCommand(chatID)
	if err != nil || cmd == nil {
		return &Result{
			Success: false,
			Error:   "no previous command to retry",
			Text:    "I don't have anything to retry for this chat yet.",
		}
	}
	if cmd.IsMultiStep && cmd.Plan != nil {
		ec := a.Contexts.CreateInitial(chatID)
		a.Contexts.LoadPrevious(ec)
		res := a.Executor.Execute(ctx, chatID, *cmd.Plan, ec, ExecOptions{
			StepMaxIterations: a.Options.MaxIterations,
			StepTimeout:       a.Options.Timeout,
			PlanTimeout:       a.Options.PlanTimeout,
			LanguageHint:      a.Options.LanguageHint,
		})
		a.Contexts.Save(ec)
		return res
	}
	return a.ExecuteQuery(ctx, chatID, cmd.Prompt)
}

// Respond implements the gateway-facing surface: always a natural-language
// message, never a raw error payload.
func (a *Agent) Respond(ctx context.Context, chatID, input string) (string, error) {
	res := a.ExecuteQuery(ctx, chatID, input)
	if res.Text != "" {
		return res.Text, nil
	}
	if res.Success {
		return "Done.", nil
	}
	if res.Timeout {
		return "That took too long and I had to stop partway. Please try again with a simpler request.", nil
	}
	return "I couldn't complete that request. Please try rephrasing it.", nil
}

// RetryText wraps RetryLast for the gateway's /retry command.
func (a *Agent) RetryText(ctx context.Context, chatID string) string {
	res := a.RetryLast(ctx, chatID)
	if res.Text != "" {
		return res.Text
	}
	if res.Success {
		return "Done."
	}
	return "I couldn't retry that."
}

func (a *Agent) saveLastCommand(chatID, input string, plan Plan, res *Result, ec *ExecutionContext) {
	if a.Commands == nil {
		return
	}
	cmd := LastCommand{
		Prompt:      input,
		Normalized:  input,
		Failed:      !res.Success,
		IsMultiStep: res.MultiStep,
	}
	if res.MultiStep {
		p := plan
		cmd.Plan = &p
	} else if len(res.ToolCalls) > 0 {
		last := res.ToolCalls[len(res.ToolCalls)-1]
		cmd.Tool = last.Tool
		var args map[string]any
		if json.Unmarshal([]byte(last.Args), &args) == nil {
			cmd.Args = args
		}
	}
	assets := ec.AssetsSnapshot()
	cmd.MediaURLs = append(cmd.MediaURLs, assets.Images...)
	cmd.MediaURLs = append(cmd.MediaURLs, assets.Videos...)
	cmd.MediaURLs = append(cmd.MediaURLs, assets.Audio...)

	payload, err := json.Marshal(cmd)
	if err == nil {
		err = a.Commands.SetLastCommand(chatID, payload)
	}
	if err != nil {
		log.Printf("failed to save last command for chat %s: %v", chatID, err)
	}
}

func (a *Agent) loadLastCommand(chatID string) (*LastCommand, error) {
	if a.Commands == nil {
		return nil, nil
	}
	payload, err := a.Commands.GetLastCommand(chatID)
	if err != nil || payload == nil {
		return nil, err
	}
	var cmd LastCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (a *Agent) recordHistory(chatID, input string, res *Result) {
	if a.History == nil || !res.Success || res.Text == "" {
		return
	}
	if err := a.History.AddMessage(chatID, "human", input); err != nil {
		log.Printf("failed to record history for chat %s: %v", chatID, err)
		return
	}
	if err := a.History.AddMessage(chatID, "ai", res.Text); err != nil {
		log.Printf("failed to record history for chat %s: %v", chatID, err)
	}
}
