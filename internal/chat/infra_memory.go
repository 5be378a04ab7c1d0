package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var newConversationID = func() string {
	return uuid.NewString()
}

type memoryRepo struct {
	mu            sync.Mutex
	nextID        int64
	conversations map[string]*Conversation
	messages      map[string][]Message
}

// NewMemoryRepo returns a Repo that keeps everything in process memory.
func NewMemoryRepo() Repo {
	return &memoryRepo{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
	}
}

func (r *memoryRepo) CreateConversation(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newConversationID()
	if _, ok := r.conversations[id]; ok {
		return "", fmt.Errorf("chat: create conversation: duplicate id %q", id)
	}
	ts := now().UTC()
	r.conversations[id] = &Conversation{ID: id, CreatedAt: ts, LastActivity: ts}
	return id, nil
}

func (r *memoryRepo) GetConversation(_ context.Context, conversationID string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return Conversation{}, fmt.Errorf("chat: get conversation %q: %w", conversationID, ErrConversationNotFound)
	}
	return *c, nil
}

func (r *memoryRepo) AppendMessage(_ context.Context, conversationID, content string, sender Sender, isQuestion bool) error {
	if !sender.Valid() {
		return fmt.Errorf("chat: append message: %w", ErrInvalidSender)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return fmt.Errorf("chat: append message to %q: %w", conversationID, ErrConversationNotFound)
	}
	r.nextID++
	r.messages[conversationID] = append(r.messages[conversationID], Message{
		ID:             r.nextID,
		Content:        content,
		Sender:         sender,
		Timestamp:      now().UTC(),
		ConversationID: conversationID,
		IsQuestion:     isQuestion,
	})
	return nil
}

func (r *memoryRepo) TouchConversation(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok {
		return fmt.Errorf("chat: touch conversation %q: %w", conversationID, ErrConversationNotFound)
	}
	c.LastActivity = now().UTC()
	return nil
}

func (r *memoryRepo) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]Message{}, r.messages[conversationID]...)
	sortMessages(out)
	return out, nil
}

// sortMessages orders by timestamp, then id for equal timestamps.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
