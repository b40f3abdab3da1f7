package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rahul/varta/internal/governance"
	"github.com/rahul/varta/internal/observability"
	"github.com/rahul/varta/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

const (
	DefaultMaxIterations = 8
	DefaultTimeout       = 240 * time.Second
)

// HistoryStore supplies recent chat history for seeding the loop.
type HistoryStore interface {
	AddMessage(chatID string, role string, content string) error
	GetHistory(chatID string, limit int) ([]llms.MessageContent, error)
}

// LoopOptions configures one loop run. Zero values fall back to the
// package defaults.
type LoopOptions struct {
	MaxIterations  int
	Timeout        time.Duration
	IncludeHistory bool
	HistoryLimit   int
	SystemPrompt   string // overrides the prompt manager assembly when set
	DisableTools   bool   // pure reasoning turn: no tool declarations
}

// Loop drives one bounded function-calling conversation: the model either
// answers with final text or requests tools, whose results are fed back
// until an answer, iteration exhaustion, or the wall-clock timeout.
type Loop struct {
	Model    llms.Model
	Registry *tools.Registry
	History  HistoryStore
	Prompts  *PromptManager
	Policy   governance.PolicyEngine
	Logger   *observability.Logger
}

func NewLoop(model llms.Model, registry *tools.Registry, history HistoryStore, prompts *PromptManager, policy governance.PolicyEngine, logger *observability.Logger) *Loop {
	return &Loop{
		Model:    model,
		Registry: registry,
		History:  history,
		Prompts:  prompts,
		Policy:   policy,
		Logger:   logger,
	}
}

// Run races the conversation loop against the wall-clock budget. On
// timeout the in-flight model or tool call is abandoned and whatever the
// context accumulated so far is still returned.
func (l *Loop) Run(ctx context.Context, chatID, prompt string, ec *ExecutionContext, opts LoopOptions) *Result {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if ec == nil {
		ec = NewExecutionContext(chatID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- failed(fmt.Sprintf("internal error: %v", r), "", ec)
			}
		}()
		done <- l.converse(runCtx, chatID, prompt, ec, opts)
	}()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
		cancel()
		res := failed(fmt.Sprintf("timed out after %s", opts.Timeout), "", ec)
		res.Timeout = true
		return res
	case <-ctx.Done():
		res := failed(fmt.Sprintf("cancelled: %v", ctx.Err()), "", ec)
		res.Timeout = true
		return res
	}
}

func (l *Loop) converse(ctx context.Context, chatID, prompt string, ec *ExecutionContext, opts LoopOptions) *Result {
	ctx = tools.WithChatID(ctx, chatID)

	messages, err := l.seedMessages(chatID, prompt, opts)
	if err != nil {
		return failed(fmt.Sprintf("failed to prepare conversation: %v", err), "", ec)
	}

	var llmTools []llms.Tool
	if !opts.DisableTools {
		for _, t := range l.Registry.All() {
			llmTools = append(llmTools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Name(),
					Description: t.Description(),
					Parameters:  t.Parameters(),
				},
			})
		}
	}

	for i := 0; i < opts.MaxIterations; i++ {
		var callOpts []llms.CallOption
		if len(llmTools) > 0 {
			callOpts = append(callOpts, llms.WithTools(llmTools))
		}

		resp, err := l.Model.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			return failed(fmt.Sprintf("model error: %v", err), "", ec)
		}
		if len(resp.Choices) == 0 {
			return failed("model returned no choices", "", ec)
		}
		choice := resp.Choices[0]

		if l.Logger != nil {
			l.Logger.LogLLM(chatID, prompt, choice.Content, choice.ToolCalls)
		}

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		// No tool requests means this is the final answer.
		if len(choice.ToolCalls) == 0 {
			res := &Result{Success: true, Text: choice.Content}
			attachContext(res, ec)
			return res
		}

		// Execute requested tools in request order; every result, success
		// or error, goes back to the model as a tool-response turn.
		for _, tc := range choice.ToolCalls {
			result, isErr := l.executeToolCall(ctx, chatID, tc)
			ec.RecordCall(tc.FunctionCall.Name, tc.FunctionCall.Arguments, result, isErr)

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    result,
					},
				},
			})
		}
	}

	res := failed(
		fmt.Sprintf("reached the maximum of %d reasoning iterations without a final answer", opts.MaxIterations),
		"I couldn't finish working on that within my reasoning budget. Please try a simpler request.",
		ec,
	)
	return res
}

func (l *Loop) seedMessages(chatID, prompt string, opts LoopOptions) ([]llms.MessageContent, error) {
	var messages []llms.MessageContent

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" && l.Prompts != nil {
		sp, err := l.Prompts.GetSystemPrompt()
		if err != nil {
			log.Printf("Warning: failed to load system prompt: %v", err)
		} else {
			systemPrompt = sp
		}
	}
	if systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		})
	}

	if opts.IncludeHistory && l.History != nil {
		limit := opts.HistoryLimit
		if limit <= 0 {
			limit = 10
		}
		history, err := l.History.GetHistory(chatID, limit)
		if err != nil {
			return nil, err
		}
		messages = append(messages, history...)
	}

	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(prompt)},
	})
	return messages, nil
}

// executeToolCall resolves and runs one requested tool. Unknown tools and
// execution errors are reported back to the model as tool-error text, not
// as fatal loop errors, so the model can self-correct.
func (l *Loop) executeToolCall(ctx context.Context, chatID string, tc llms.ToolCall) (string, bool) {
	name := tc.FunctionCall.Name
	args := tc.FunctionCall.Arguments

	tool := l.Registry.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: tool %q is not available", name), true
	}

	if l.Policy != nil {
		verdict, err := l.Policy.Evaluate(ctx, governance.Request{Tool: name, Arguments: args, ChatID: chatID})
		if err == nil && l.Logger != nil {
			l.Logger.LogPolicy(chatID, name, string(verdict.Effect), verdict.Reason)
		}
		if err == nil && verdict.Denied() {
			return "Error: " + verdict.Reason, true
		}
	}

	if l.Logger != nil {
		l.Logger.LogToolCall(chatID, name, args)
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		result = fmt.Sprintf("Error: %v", err)
	}
	if l.Logger != nil {
		l.Logger.LogToolResult(chatID, name, result, err != nil)
	}
	return result, err != nil
}
