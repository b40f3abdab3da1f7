package agent

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Messenger is the outbound side of the chat gateway.
type Messenger interface {
	Send(chatID string, text string) error
}

// ReminderSource is the store surface the scheduler polls.
type ReminderSource interface {
	GetDueReminders() ([]map[string]any, error)
	UpdateReminderLastRun(id int) error
	DeleteReminder(chatID string, id int) error
}

// Responder runs one user-facing request; implemented by Agent.
type Responder interface {
	Respond(ctx context.Context, chatID string, input string) (string, error)
}

// Scheduler polls due reminders and executes them through the agent,
// pushing the output to the chat.
type Scheduler struct {
	Agent   Responder
	Store   ReminderSource
	Gateway Messenger
}

func NewScheduler(agent Responder, store ReminderSource, gateway Messenger) *Scheduler {
	return &Scheduler{
		Agent:   agent,
		Store:   store,
		Gateway: gateway,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log.Println("Reminder scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndExecute(ctx)
		}
	}
}

func (s *Scheduler) pollAndExecute(ctx context.Context) {
	due, err := s.Store.GetDueReminders()
	if err != nil {
		log.Printf("Error polling reminders: %v", err)
		return
	}

	for _, r := range due {
		id := r["id"].(int)
		chatID := r["chat_id"].(string)
		desc := r["description"].(string)

		log.Printf("Executing reminder %d for chat %s: %s", id, chatID, desc)

		response, err := s.Agent.Respond(ctx, chatID, fmt.Sprintf("[SYSTEM: This is the execution of a previously scheduled reminder: %q. Provide the output for the user. DO NOT schedule it again.]", desc))
		if err != nil {
			log.Printf("Error executing reminder %d: %v", id, err)
			continue
		}

		if err := s.Store.UpdateReminderLastRun(id); err != nil {
			log.Printf("Error updating last run for reminder %d: %v", id, err)
		}

		// One-time reminders (interval 0) are removed after firing.
		if r["interval_seconds"].(int) == 0 {
			if err := s.Store.DeleteReminder(chatID, id); err != nil {
				log.Printf("Error deleting one-time reminder %d: %v", id, err)
			}
		}

		if s.Gateway != nil {
			if err := s.Gateway.Send(chatID, "⏰ Reminder\n\n"+response); err != nil {
				log.Printf("Error delivering reminder %d: %v", id, err)
			}
		}
	}
}
