package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rahul/varta/internal/observability"
	"github.com/rahul/varta/internal/tools"
)

// GeneratedAssets accumulates media references produced during a run.
type GeneratedAssets struct {
	Images []string `json:"images,omitempty"`
	Videos []string `json:"videos,omitempty"`
	Audio  []string `json:"audio,omitempty"`
}

// ExecutionContext is the per-chat state of one agent invocation: an
// append-only log of tool calls, prior results keyed by tool name or step
// id for cross-step resolution, and generated media. It is shared between
// the loop goroutine and the timeout path, hence the mutex.
type ExecutionContext struct {
	ChatID string `json:"chat_id"`

	mu          sync.Mutex
	Calls       []ToolCallRecord  `json:"tool_calls,omitempty"`
	PrevResults map[string]string `json:"previous_tool_results,omitempty"`
	Assets      GeneratedAssets   `json:"generated_assets,omitempty"`
}

func NewExecutionContext(chatID string) *ExecutionContext {
	return &ExecutionContext{
		ChatID:      chatID,
		PrevResults: make(map[string]string),
	}
}

// RecordCall appends a tool invocation and indexes its result under the
// tool name; media outputs are also collected as assets.
func (c *ExecutionContext) RecordCall(tool, args, result string, isError bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, ToolCallRecord{Tool: tool, Args: args, Result: result, IsError: isError})
	if !isError {
		c.PrevResults[tool] = result
		c.recordAsset(tool, result)
	}
}

// RecordStep indexes a step's output under its step id so later steps can
// reference it.
func (c *ExecutionContext) RecordStep(stepNumber int, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PrevResults[stepKey(stepNumber)] = result
}

func (c *ExecutionContext) recordAsset(tool, result string) {
	switch tools.AssetKind(tool) {
	case "image":
		c.Assets.Images = append(c.Assets.Images, result)
	case "video":
		c.Assets.Videos = append(c.Assets.Videos, result)
	case "audio":
		c.Assets.Audio = append(c.Assets.Audio, result)
	}
}

// StepResult returns the recorded output of a step, if any.
func (c *ExecutionContext) StepResult(stepNumber int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.PrevResults[stepKey(stepNumber)]
	return r, ok
}

// ToolsUsed returns the distinct tool names in first-call order.
func (c *ExecutionContext) ToolsUsed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool, len(c.Calls))
	var used []string
	for _, call := range c.Calls {
		if !seen[call.Tool] {
			seen[call.Tool] = true
			used = append(used, call.Tool)
		}
	}
	return used
}

func (c *ExecutionContext) CallsSnapshot() []ToolCallRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolCallRecord, len(c.Calls))
	copy(out, c.Calls)
	return out
}

func (c *ExecutionContext) ResultsSnapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.PrevResults))
	for k, v := range c.PrevResults {
		out[k] = v
	}
	return out
}

// AssetsSnapshot returns a copy of the accumulated media references.
func (c *ExecutionContext) AssetsSnapshot() GeneratedAssets {
	c.mu.Lock()
	defer c.mu.Unlock()
	return GeneratedAssets{
		Images: append([]string(nil), c.Assets.Images...),
		Videos: append([]string(nil), c.Assets.Videos...),
		Audio:  append([]string(nil), c.Assets.Audio...),
	}
}

func (c *ExecutionContext) marshal() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(struct {
		ChatID      string            `json:"chat_id"`
		Calls       []ToolCallRecord  `json:"tool_calls,omitempty"`
		PrevResults map[string]string `json:"previous_tool_results,omitempty"`
		Assets      GeneratedAssets   `json:"generated_assets,omitempty"`
	}{c.ChatID, c.Calls, c.PrevResults, c.Assets})
}

func stepKey(n int) string {
	return fmt.Sprintf("step_%d", n)
}

// ContextStore is the durable home of agent contexts; payloads are opaque
// to the storage layer.
type ContextStore interface {
	GetAgentContext(chatID string) ([]byte, error)
	SetAgentContext(chatID string, payload []byte) error
}

// ContextManager creates the per-call ExecutionContext and, when the
// context-memory flag is on, hydrates it from and persists it to the
// durable store.
type ContextManager struct {
	Store   ContextStore
	Enabled bool
	Logger  *observability.Logger
}

func NewContextManager(store ContextStore, enabled bool, logger *observability.Logger) *ContextManager {
	return &ContextManager{Store: store, Enabled: enabled, Logger: logger}
}

// CreateInitial is pure construction, no I/O.
func (m *ContextManager) CreateInitial(chatID string) *ExecutionContext {
	return NewExecutionContext(chatID)
}

// LoadPrevious merges any durably stored context into ec, with ec's own
// entries taking precedence on conflict. A disabled manager or any load
// error leaves ec unchanged.
func (m *ContextManager) LoadPrevious(ec *ExecutionContext) *ExecutionContext {
	if !m.Enabled || m.Store == nil {
		return ec
	}
	payload, err := m.Store.GetAgentContext(ec.ChatID)
	if err != nil || payload == nil {
		if err != nil && m.Logger != nil {
			m.Logger.LogContext(ec.ChatID, "load", err)
		}
		return ec
	}

	var stored struct {
		Calls       []ToolCallRecord  `json:"tool_calls"`
		PrevResults map[string]string `json:"previous_tool_results"`
		Assets      GeneratedAssets   `json:"generated_assets"`
	}
	if err := json.Unmarshal(payload, &stored); err != nil {
		if m.Logger != nil {
			m.Logger.LogContext(ec.ChatID, "load", err)
		}
		return ec
	}

	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Calls = append(append([]ToolCallRecord(nil), stored.Calls...), ec.Calls...)
	for k, v := range stored.PrevResults {
		if _, exists := ec.PrevResults[k]; !exists {
			ec.PrevResults[k] = v
		}
	}
	ec.Assets.Images = append(stored.Assets.Images, ec.Assets.Images...)
	ec.Assets.Videos = append(stored.Assets.Videos, ec.Assets.Videos...)
	ec.Assets.Audio = append(stored.Assets.Audio, ec.Assets.Audio...)
	return ec
}

// Save persists ec asynchronously. Persistence failure never fails the
// run; it is logged and swallowed.
func (m *ContextManager) Save(ec *ExecutionContext) {
	if !m.Enabled || m.Store == nil {
		return
	}
	go func() {
		payload, err := ec.marshal()
		if err == nil {
			err = m.Store.SetAgentContext(ec.ChatID, payload)
		}
		if m.Logger != nil {
			m.Logger.LogContext(ec.ChatID, "save", err)
		}
	}()
}
