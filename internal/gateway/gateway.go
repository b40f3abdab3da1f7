package gateway

import "context"

// Responder is the agent-side surface a gateway talks to.
type Responder interface {
	Respond(ctx context.Context, chatID string, input string) (string, error)
}

// Messenger defines the interface for communication gateways.
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}
