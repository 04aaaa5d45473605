// Package service contains the business logic layer.
//
// This file implements the diary chat service: the personal companion
// conversation and per-person conversations, both metered.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/ai"
	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/repository"
)

// MaxChatMessageLength bounds a single chat message.
const MaxChatMessageLength = 4000

const personalSystemPrompt = `You are a warm, attentive diary companion. The user writes to you about
their day, their feelings, and the people in their life. Listen closely,
reflect back what matters, and ask gentle follow-up questions. Never
lecture. Keep replies short and conversational.`

// ChatService generates AI replies for diary conversations.
//
// Both reply kinds follow the same protocol: check the entitlement,
// call the provider, and record usage only after the provider call
// succeeds. A failed AI call therefore never consumes quota.
type ChatService interface {
	// PersonalReply generates the companion's next reply in the user's
	// personal conversation.
	PersonalReply(ctx context.Context, userID uuid.UUID, messages []ai.Message) (*ai.ChatResult, error)

	// PersonReply generates a reply in the conversation about a managed
	// person. Returns ENOTFOUND if the person does not belong to the
	// user; ownership is decided before quota so a typo'd id never
	// reads the ledger.
	PersonReply(ctx context.Context, userID, personID uuid.UUID, messages []ai.Message) (*ai.ChatResult, error)
}

type chatService struct {
	provider    ai.Provider
	entitlement EntitlementService
	usage       UsageService
	repo        repository.PersonStore
	logger      *slog.Logger
}

// NewChatService creates a new ChatService.
func NewChatService(provider ai.Provider, entitlement EntitlementService, usage UsageService, repo repository.PersonStore, logger *slog.Logger) ChatService {
	return &chatService{
		provider:    provider,
		entitlement: entitlement,
		usage:       usage,
		repo:        repo,
		logger:      logger,
	}
}

func (s *chatService) PersonalReply(ctx context.Context, userID uuid.UUID, messages []ai.Message) (*ai.ChatResult, error) {
	const op = "chat.personal_reply"

	if err := validateMessages(op, messages); err != nil {
		return nil, err
	}
	if err := s.gate(ctx, op, userID, domain.CounterPersonalChatMessages, "Personal chat"); err != nil {
		return nil, err
	}

	result, err := s.provider.ChatReply(ctx, ai.ChatParams{
		System:   personalSystemPrompt,
		Messages: messages,
	})
	if err != nil {
		return nil, translateAIError(err, op)
	}

	if err := s.usage.Record(ctx, userID, domain.CounterPersonalChatMessages); err != nil {
		// The reply was already generated; losing the increment is
		// better than losing the reply.
		s.logger.Error("failed to record chat usage", "error", err, "user_id", userID)
	}
	return result, nil
}

func (s *chatService) PersonReply(ctx context.Context, userID, personID uuid.UUID, messages []ai.Message) (*ai.ChatResult, error) {
	const op = "chat.person_reply"

	if err := validateMessages(op, messages); err != nil {
		return nil, err
	}

	person, err := s.repo.GetPerson(ctx, userID, personID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "person", personID.String())
		}
		return nil, domain.Unavailable(err, op)
	}

	if err := s.gate(ctx, op, userID, domain.CounterPersonChatMessages, "Chat about your people"); err != nil {
		return nil, err
	}

	result, err := s.provider.ChatReply(ctx, ai.ChatParams{
		System:   personSystemPrompt(person),
		Messages: messages,
	})
	if err != nil {
		return nil, translateAIError(err, op)
	}

	if err := s.usage.Record(ctx, userID, domain.CounterPersonChatMessages); err != nil {
		s.logger.Error("failed to record chat usage", "error", err, "user_id", userID)
	}
	return result, nil
}

// gate runs the entitlement check and converts a denial into the
// matching domain error.
func (s *chatService) gate(ctx context.Context, op string, userID uuid.UUID, counter domain.Counter, what string) error {
	decision, err := s.entitlement.Check(ctx, userID, counter)
	if err != nil {
		return err
	}
	return denialError(op, what, decision)
}

func validateMessages(op string, messages []ai.Message) error {
	if len(messages) == 0 {
		return domain.Invalid(op, "At least one message is required")
	}
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			return domain.Invalid(op, "Messages cannot be empty")
		}
		if len(m.Content) > MaxChatMessageLength {
			return domain.Invalid(op, fmt.Sprintf("Messages are limited to %d characters", MaxChatMessageLength))
		}
		if m.Role != ai.RoleUser && m.Role != ai.RoleAssistant {
			return domain.Invalid(op, "Message roles must be user or assistant")
		}
	}
	return nil
}

func personSystemPrompt(p *domain.Person) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a thoughtful diary companion helping the user reflect on their relationship with %s", p.Name)
	if p.Relation != "" {
		fmt.Fprintf(&b, " (their %s)", p.Relation)
	}
	b.WriteString(".")
	if p.Notes != "" {
		fmt.Fprintf(&b, " What the user has noted about them: %s", p.Notes)
	}
	b.WriteString(" Keep replies short, warm, and grounded in what the user shares.")
	return b.String()
}

// denialError maps a denied decision onto the error the transport layer
// knows how to render. Allowed decisions produce nil.
func denialError(op, what string, d domain.Decision) error {
	if d.Allowed {
		return nil
	}
	if d.Reason == domain.DenyPlanNotIncluded {
		return domain.PlanRequired(op, what)
	}
	return domain.QuotaExceeded(op, d.Counter, d.Used, d.Limit)
}

// translateAIError maps provider errors onto domain errors.
func translateAIError(err error, op string) error {
	switch {
	case errors.Is(err, ai.ErrRateLimit):
		return domain.RateLimit(op)
	case errors.Is(err, ai.ErrInvalidAudio):
		return domain.Invalid(op, "The audio file could not be processed")
	case errors.Is(err, ai.ErrTimeout), errors.Is(err, ai.ErrUnavailable):
		return domain.Unavailable(err, op)
	default:
		return domain.Internal(err, op, "AI provider request failed")
	}
}
