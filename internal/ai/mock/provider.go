// Package mock implements ai.Provider with canned responses for tests
// and local development.
package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/quill-app/quill/internal/ai"
)

// Provider is a mock AI provider.
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	ChatReplyResponse  *ai.ChatResult
	ChatReplyError     error
	TranscribeResponse *ai.TranscriptionResult
	TranscribeError    error

	// Call tracking for testing
	ChatReplyCalls  int
	TranscribeCalls int
}

// New creates a new mock AI provider.
func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger}
}

// ChatReply echoes a canned assistant reply.
func (p *Provider) ChatReply(ctx context.Context, params ai.ChatParams) (*ai.ChatResult, error) {
	p.ChatReplyCalls++

	if p.ChatReplyError != nil {
		return nil, p.ChatReplyError
	}
	if p.ChatReplyResponse != nil {
		return p.ChatReplyResponse, nil
	}

	reply := "That sounds like a meaningful moment. What was going through your mind when it happened?"
	if len(params.Messages) == 0 {
		reply = "Hello! I'm here whenever you'd like to talk through your day."
	}
	return &ai.ChatResult{
		Reply: reply,
		Usage: ai.UsageInfo{
			Model:        "mock-chat-v1",
			InputTokens:  120,
			OutputTokens: 40,
			Duration:     50 * time.Millisecond,
		},
	}, nil
}

// Transcribe returns a canned transcription.
func (p *Provider) Transcribe(ctx context.Context, params ai.TranscribeParams) (*ai.TranscriptionResult, error) {
	p.TranscribeCalls++

	if p.TranscribeError != nil {
		return nil, p.TranscribeError
	}
	if p.TranscribeResponse != nil {
		return p.TranscribeResponse, nil
	}

	return &ai.TranscriptionResult{
		Text:     "Today was a good day. I went for a long walk and finally called my sister.",
		Language: "en",
		Usage: ai.UsageInfo{
			Model:    "mock-whisper-v1",
			Duration: 80 * time.Millisecond,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing.
func (p *Provider) Reset() {
	p.ChatReplyCalls = 0
	p.TranscribeCalls = 0
	p.ChatReplyResponse = nil
	p.ChatReplyError = nil
	p.TranscribeResponse = nil
	p.TranscribeError = nil
}
