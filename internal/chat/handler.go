package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("chat: service must not be nil")
	}
	return &Handler{svc: svc}, nil
}

type createConversationResponse struct {
	ConversationID string `json:"conversationId"`
}

type chatRequest struct {
	Message        *string `json:"message"`
	ConversationID string  `json:"conversationId"`
}

type chatResponse struct {
	Response  string    `json:"response"`
	Processed Processed `json:"processed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateConversation — POST /api/conversations
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.CreateConversation(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createConversationResponse{ConversationID: id})
}

// Chat — POST /api/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if req.Message == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing message"})
		return
	}

	out, err := h.svc.Chat(r.Context(), ChatInput{
		Message:        *req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: out.Response, Processed: out.Processed})
}

// Conversation — GET /api/conversations/{id}
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Conversation(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrConversationNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "conversation not found"})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Messages — GET /api/conversations/{id}/messages
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var chatErr *Error
	if errors.As(err, &chatErr) && chatErr.Code == ErrorValidation {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: chatErr.Reason})
		return
	}
	if chatErr != nil {
		log.Printf("[http] %s: %v", chatErr.Reason, err)
	} else {
		log.Printf("[http] unexpected error: %v", err)
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}
