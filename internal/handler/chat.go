// Package handler contains the HTTP handlers for the Quill API.
//
// This file implements the chat endpoints.
//
// Routes:
//   - POST /api/chat             -> PersonalChat
//   - POST /api/people/{id}/chat -> PersonChat
package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/ai"
	"github.com/quill-app/quill/internal/auth"
	"github.com/quill-app/quill/internal/service"
)

// ChatHandler handles diary chat requests.
type ChatHandler struct {
	chat   service.ChatService
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chat service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (req chatRequest) toMessages() []ai.Message {
	messages := make([]ai.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = ai.Message{Role: ai.Role(m.Role), Content: m.Content}
	}
	return messages
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// PersonalChat handles POST /api/chat.
func (h *ChatHandler) PersonalChat(w http.ResponseWriter, r *http.Request) {
	const op = "handler.personal_chat"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.chat.PersonalReply(r.Context(), user.ID, req.toMessages())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: result.Reply})
}

// PersonChat handles POST /api/people/{id}/chat.
func (h *ChatHandler) PersonChat(w http.ResponseWriter, r *http.Request) {
	const op = "handler.person_chat"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	personID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.chat.PersonReply(r.Context(), user.ID, personID, req.toMessages())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: result.Reply})
}
