package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway is the bundled transport. Inbound messages go to the
// agent; "/retry" re-runs the chat's last command when the agent supports
// it.
type TelegramGateway struct {
	Bot   *tgbotapi.BotAPI
	Agent Responder
}

// Retrier is optionally implemented by the agent to support /retry.
type Retrier interface {
	RetryText(ctx context.Context, chatID string) string
}

func NewTelegramGateway(token string, agent Responder) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:   bot,
		Agent: agent,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		chatID := fmt.Sprintf("%d", update.Message.Chat.ID)
		text := update.Message.Text

		// One in-flight agent call per chat is enforced here by handling
		// updates serially; the core relies on that.
		ctx := context.Background()
		var response string
		var err error
		if strings.TrimSpace(text) == "/retry" {
			if r, ok := tg.Agent.(Retrier); ok {
				response = r.RetryText(ctx, chatID)
			} else {
				response = "Retry is not available."
			}
		} else {
			response, err = tg.Agent.Respond(ctx, chatID, text)
			if err != nil {
				log.Printf("Error responding: %v", err)
				response = "I'm having trouble thinking right now..."
			}
		}

		msg := tgbotapi.NewMessage(update.Message.Chat.ID, response)
		if _, err := tg.Bot.Send(msg); err != nil {
			log.Printf("Error sending reply: %v", err)
		}
	}
	return nil
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := 0
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(int64(id), text)
	msg.ParseMode = "Markdown"
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
