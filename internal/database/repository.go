package database

import (
	"context"

	"github.com/npezzotti/go-supportchat/internal/types"
)

// MessageStore is the durable, append-only log of chat messages keyed by
// conversation (customer id).
type MessageStore interface {
	AppendMessage(ctx context.Context, conversationId int, sender types.Role, content string) (Message, error)
	GetMessages(ctx context.Context, conversationId int) ([]Message, error)
	CountMessages(ctx context.Context) (int, error)
}

type SupportRepository interface {
	MessageStore
	Ping() error
	GetAccountById(accountId int) (Account, error)
	ListUsers() ([]Account, error)
}
