package chat

import (
	"context"
	"errors"
	"time"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidSender        = errors.New("sender must be user or bot")
)

type Conversation struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

type Message struct {
	ID             int64     `json:"id"`
	Content        string    `json:"content"`
	Sender         Sender    `json:"sender"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id"`
	IsQuestion     bool      `json:"is_question"`
}

// Repo — persistence. Implementations wrap ErrConversationNotFound when the
// conversation id is unknown.
type Repo interface {
	CreateConversation(ctx context.Context) (string, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	AppendMessage(ctx context.Context, conversationID, content string, sender Sender, isQuestion bool) error
	TouchConversation(ctx context.Context, conversationID string) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// Responder — picks the bot reply, knows nothing about storage.
type Responder interface {
	Respond(text string) string
}

type ChatInput struct {
	Message        string
	ConversationID string
}

type ChatOutput struct {
	Response  string
	Processed Processed
}

// Service — orchestration
type Service interface {
	CreateConversation(ctx context.Context) (string, error)
	Conversation(ctx context.Context, conversationID string) (Conversation, error)
	Chat(ctx context.Context, in ChatInput) (ChatOutput, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}
