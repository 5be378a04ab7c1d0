package chat

import (
	"context"
	"errors"
	"log"
	"strings"
)

// Stage is a step of one chat exchange. Stages run in declaration order;
// a storage failure stops the exchange at the stage that failed.
type Stage string

const (
	StageReceived            Stage = "received"
	StageNormalized          Stage = "normalized"
	StageUserMessageStored   Stage = "user_message_stored"
	StageResponseGenerated   Stage = "response_generated"
	StageBotMessageStored    Stage = "bot_message_stored"
	StageConversationTouched Stage = "conversation_touched"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

type service struct {
	repo      Repo
	responder Responder
}

func NewService(repo Repo, responder Responder) (Service, error) {
	if repo == nil {
		return nil, errors.New("chat: repo must not be nil")
	}
	if responder == nil {
		return nil, errors.New("chat: responder must not be nil")
	}
	return &service{repo: repo, responder: responder}, nil
}

func (s *service) CreateConversation(ctx context.Context) (string, error) {
	id, err := s.repo.CreateConversation(ctx)
	if err != nil {
		log.Printf("[svc] create conversation failed: %v", err)
		return "", storageError("create_conversation", err)
	}
	log.Printf("[svc] conversation created id=%s", id)
	return id, nil
}

func (s *service) Conversation(ctx context.Context, conversationID string) (Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Conversation{}, newError(ErrorValidation, "missing_conversation_id", nil)
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, storageError("get_conversation", err)
	}
	return conv, nil
}

// Chat runs one exchange: normalize, store the user message, pick a reply,
// store it and touch the conversation. Writes that completed before a
// failure are kept.
func (s *service) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		return ChatOutput{}, newError(ErrorValidation, "missing_conversation_id", nil)
	}
	log.Printf("[svc] %s conv=%s text=%q", StageReceived, convID, short(in.Message))

	processed := Normalize(in.Message)
	log.Printf("[svc] %s question=%t", StageNormalized, processed.IsQuestion)

	if err := s.repo.AppendMessage(ctx, convID, in.Message, SenderUser, processed.IsQuestion); err != nil {
		return ChatOutput{}, s.fail(StageNormalized, "save_user_message", err)
	}
	log.Printf("[svc] %s", StageUserMessageStored)

	response := s.responder.Respond(processed.Processed)
	log.Printf("[svc] %s reply=%q", StageResponseGenerated, short(response))

	if err := s.repo.AppendMessage(ctx, convID, response, SenderBot, false); err != nil {
		return ChatOutput{}, s.fail(StageResponseGenerated, "save_bot_message", err)
	}
	log.Printf("[svc] %s", StageBotMessageStored)

	if err := s.repo.TouchConversation(ctx, convID); err != nil {
		return ChatOutput{}, s.fail(StageBotMessageStored, "touch_conversation", err)
	}
	log.Printf("[svc] %s", StageConversationTouched)
	log.Printf("[svc] %s conv=%s", StageCompleted, convID)

	return ChatOutput{Response: response, Processed: processed}, nil
}

func (s *service) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, newError(ErrorValidation, "missing_conversation_id", nil)
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		log.Printf("[svc] list messages conv=%s failed: %v", conversationID, err)
		return nil, storageError("list_messages", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

func (s *service) fail(after Stage, reason string, err error) error {
	log.Printf("[svc] %s after %s (%s): %v", StageFailed, after, reason, err)
	return storageError(reason, err)
}

func short(s string) string {
	if len(s) > 180 {
		return s[:180] + "..."
	}
	return s
}
