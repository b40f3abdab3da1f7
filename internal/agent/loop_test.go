package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rahul/varta/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replays a fixed sequence of responses; the last entry
// repeats once the script runs out.
type scriptedModel struct {
	mu     sync.Mutex
	calls  int
	script []*llms.ContentResponse
	err    error
	delay  time.Duration
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) == 0 {
		return textResponse("ok"), nil
	}
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	return m.script[idx], nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(prompt)}},
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func toolResponse(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           id,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

// stubTool records its invocations and returns a fixed result.
type stubTool struct {
	mu     sync.Mutex
	name   string
	result string
	err    error
	delay  time.Duration
	inputs []string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (s *stubTool) Execute(ctx context.Context, input string) (string, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubTool) callInputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

func newTestLoop(model llms.Model, reg *tools.Registry) *Loop {
	return NewLoop(model, reg, nil, nil, nil, nil)
}

func TestLoop_FinalAnswerFirstTurn(t *testing.T) {
	model := &scriptedModel{script: []*llms.ContentResponse{textResponse("Paris is the capital of France.")}}
	loop := newTestLoop(model, tools.NewRegistry())

	res := loop.Run(context.Background(), "chat1", "capital of France?", nil, LoopOptions{})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.Text != "Paris is the capital of France." {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if len(res.ToolsUsed) != 0 {
		t.Errorf("expected no tools used, got %v", res.ToolsUsed)
	}
	if model.callCount() != 1 {
		t.Errorf("expected exactly 1 model turn, got %d", model.callCount())
	}
}

func TestLoop_IterationExhaustion(t *testing.T) {
	// Model that always asks for a tool and never answers.
	model := &scriptedModel{script: []*llms.ContentResponse{toolResponse("c1", "echo", `{}`)}}
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "echo", result: "echoed"})
	loop := newTestLoop(model, reg)

	res := loop.Run(context.Background(), "chat1", "loop forever", nil, LoopOptions{MaxIterations: 3})

	if res.Success {
		t.Fatal("expected failure on iteration exhaustion")
	}
	if res.Error == "" {
		t.Error("failure must carry a non-empty error")
	}
	if res.Timeout {
		t.Error("exhaustion is not a timeout")
	}
	if len(res.ToolCalls) != 3 {
		t.Errorf("expected 3 tool calls (one per iteration), got %d", len(res.ToolCalls))
	}
	if model.callCount() != 3 {
		t.Errorf("expected 3 model turns, got %d", model.callCount())
	}
}

func TestLoop_Timeout(t *testing.T) {
	model := &scriptedModel{
		script: []*llms.ContentResponse{toolResponse("c1", "echo", `{}`)},
		delay:  40 * time.Millisecond,
	}
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "echo", result: "echoed"})
	loop := newTestLoop(model, reg)

	start := time.Now()
	res := loop.Run(context.Background(), "chat1", "slow", nil, LoopOptions{Timeout: 150 * time.Millisecond})
	elapsed := time.Since(start)

	if res.Success {
		t.Fatal("expected failure on timeout")
	}
	if !res.Timeout {
		t.Fatal("expected timeout flag")
	}
	if res.Error == "" {
		t.Error("timeout must carry a non-empty error")
	}
	if elapsed > 2*time.Second {
		t.Errorf("loop did not stop near the configured timeout: %s", elapsed)
	}
	// Partial work accumulated before the deadline must be preserved.
	if len(res.ToolCalls) == 0 {
		t.Error("expected accumulated tool calls in the timeout result")
	}
}

func TestLoop_UnknownToolFedBack(t *testing.T) {
	model := &scriptedModel{script: []*llms.ContentResponse{
		toolResponse("c1", "no_such_tool", `{}`),
		textResponse("recovered"),
	}}
	loop := newTestLoop(model, tools.NewRegistry())

	ec := NewExecutionContext("chat1")
	res := loop.Run(context.Background(), "chat1", "do something", ec, LoopOptions{})

	if !res.Success || res.Text != "recovered" {
		t.Fatalf("expected the model to recover after the tool error, got %+v", res)
	}
	calls := ec.CallsSnapshot()
	if len(calls) != 1 || !calls[0].IsError {
		t.Errorf("unknown tool should be recorded as a tool-level error: %+v", calls)
	}
}

func TestLoop_ToolErrorFedBack(t *testing.T) {
	model := &scriptedModel{script: []*llms.ContentResponse{
		toolResponse("c1", "flaky", `{"q":"x"}`),
		textResponse("handled the failure"),
	}}
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "flaky", err: errors.New("upstream unavailable")})
	loop := newTestLoop(model, reg)

	res := loop.Run(context.Background(), "chat1", "try it", nil, LoopOptions{})

	if !res.Success {
		t.Fatalf("tool failure must not be fatal to the loop: %+v", res)
	}
	if res.Text != "handled the failure" {
		t.Errorf("unexpected text: %q", res.Text)
	}
}

func TestLoop_ModelErrorContained(t *testing.T) {
	model := &scriptedModel{err: errors.New("rate limited")}
	loop := newTestLoop(model, tools.NewRegistry())

	res := loop.Run(context.Background(), "chat1", "hello", nil, LoopOptions{})

	if res.Success || res.Error == "" {
		t.Fatalf("model errors must resolve to a failure result, got %+v", res)
	}
}

func TestLoop_MultipleToolsOrdered(t *testing.T) {
	multi := &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{
			{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "first", Arguments: `{}`}},
			{ID: "c2", Type: "function", FunctionCall: &llms.FunctionCall{Name: "second", Arguments: `{}`}},
		},
	}}}
	model := &scriptedModel{script: []*llms.ContentResponse{multi, textResponse("done")}}
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "first", result: "r1"})
	reg.Register(&stubTool{name: "second", result: "r2"})
	loop := newTestLoop(model, reg)

	ec := NewExecutionContext("chat1")
	res := loop.Run(context.Background(), "chat1", "both", ec, LoopOptions{})

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	calls := ec.CallsSnapshot()
	if len(calls) != 2 || calls[0].Tool != "first" || calls[1].Tool != "second" {
		t.Errorf("tool results must match request ordering: %+v", calls)
	}
}
