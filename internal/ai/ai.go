// Package ai defines the provider-agnostic interface for AI-backed
// diary features: conversational replies and audio transcription.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Provider is implemented by each AI backend (OpenAI, mock).
type Provider interface {
	// ChatReply generates the assistant's next reply for a conversation.
	ChatReply(ctx context.Context, params ChatParams) (*ChatResult, error)

	// Transcribe converts recorded audio into text.
	Transcribe(ctx context.Context, params TranscribeParams) (*TranscriptionResult, error)
}

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// ChatParams contains the conversation context for a reply.
type ChatParams struct {
	// System sets the assistant's persona and grounding (diary
	// companion, or a specific managed person's voice).
	System string
	// Messages is the conversation so far, oldest first.
	Messages []Message
}

// ChatResult is a generated assistant reply.
type ChatResult struct {
	Reply string
	Usage UsageInfo
}

// TranscribeParams contains the audio to transcribe.
type TranscribeParams struct {
	Audio    io.Reader
	Filename string // used by the API to sniff the container format
	Language string // optional ISO-639-1 hint
}

// TranscriptionResult is the text extracted from audio.
type TranscriptionResult struct {
	Text     string
	Language string
	Usage    UsageInfo
}

// UsageInfo tracks API usage for monitoring.
type UsageInfo struct {
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Error sentinels for provider operations.
var (
	// ErrRateLimit indicates the API rate limit has been exceeded.
	ErrRateLimit = errors.New("ai provider rate limit exceeded")

	// ErrTimeout indicates the request timed out.
	ErrTimeout = errors.New("ai request timed out")

	// ErrUnavailable indicates the AI service is temporarily unavailable.
	ErrUnavailable = errors.New("ai service temporarily unavailable")

	// ErrUnauthorized indicates invalid API credentials.
	ErrUnauthorized = errors.New("ai provider authentication failed")

	// ErrInvalidAudio indicates the audio format or content is invalid.
	ErrInvalidAudio = errors.New("invalid audio format or content")
)

// IsRetryable returns true for transient errors worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable)
}

// WrapError wraps an error with context about the AI operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
