package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type ctxKey string

// ChatIDKey carries the owning chat id through tool executions that need
// it, such as reminder scheduling.
const ChatIDKey ctxKey = "chatID"

// WithChatID returns a context carrying the chat id for tool execution.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ChatIDKey, chatID)
}

// ChatIDFrom extracts the chat id set by WithChatID.
func ChatIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ChatIDKey).(string)
	return id, ok
}

type ReminderStore interface {
	AddReminder(chatID string, description string, intervalSeconds int) error
	ClearReminders(chatID string) error
}

type ReminderTool struct {
	Store ReminderStore
}

func NewReminderTool(store ReminderStore) *ReminderTool {
	return &ReminderTool{Store: store}
}

func (c *ReminderTool) Name() string {
	return NameReminder
}

func (c *ReminderTool) Description() string {
	return "Manage reminders: 'schedule' a recurring or one-time reminder, or 'clear' all current ones."
}

func (c *ReminderTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"schedule", "clear"},
				"description": "The action to perform: 'schedule' a new reminder or 'clear' all of them.",
			},
			"description": map[string]any{
				"type":        "string",
				"description": "What to remind the user about (only for 'schedule')",
			},
			"interval_seconds": map[string]any{
				"type":        "integer",
				"description": "Repeat interval in seconds, minimum 60; use 0 for a one-time reminder (only for 'schedule')",
			},
		},
		"required": []string{"action"},
	}
}

func (c *ReminderTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action   string `json:"action"`
		Desc     string `json:"description"`
		Interval int    `json:"interval_seconds"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	chatID, ok := ChatIDFrom(ctx)
	if !ok {
		return "", fmt.Errorf("missing chatID in context")
	}

	switch args.Action {
	case "clear":
		if err := c.Store.ClearReminders(chatID); err != nil {
			return "", fmt.Errorf("failed to clear reminders: %v", err)
		}
		return "Successfully cleared all your reminders.", nil

	case "schedule":
		if args.Interval != 0 && args.Interval < 60 {
			return "Error: Minimum repeat interval is 60 seconds.", nil
		}
		if err := c.Store.AddReminder(chatID, args.Desc, args.Interval); err != nil {
			return "", fmt.Errorf("failed to schedule reminder: %v", err)
		}
		if args.Interval == 0 {
			return fmt.Sprintf("Scheduled one-time reminder: '%s'.", args.Desc), nil
		}
		return fmt.Sprintf("Scheduled reminder: '%s' every %d seconds.", args.Desc, args.Interval), nil

	default:
		return "Invalid action. Use 'schedule' or 'clear'.", nil
	}
}
