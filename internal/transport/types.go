// Package transport defines the types shared between the Telegram adapter
// and its consumers.
package transport

import "context"

// Message is one inbound text message, commands included.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
}

// Update wraps whatever the adapter receives. Only text messages today, but
// the envelope keeps the channel type stable if callbacks are added later.
type Update struct {
	Message *Message
}

// Chat is the outbound Telegram surface. The bot replies through it and the
// dispatcher delivers reminders through it.
type Chat interface {
	Send(ctx context.Context, chatID int64, html string) error
}
