// Package openai implements the ai.Provider interface on the OpenAI
// API: chat completions for conversation and Whisper for transcription.
package openai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/quill-app/quill/internal/ai"
	"github.com/quill-app/quill/internal/metrics"
)

// Config for the OpenAI provider.
type Config struct {
	APIKey     string
	ChatModel  string // e.g. "gpt-4o-mini"
	AudioModel string // e.g. "whisper-1"
	Timeout    time.Duration
}

// Provider calls the OpenAI API.
type Provider struct {
	client     *goopenai.Client
	chatModel  string
	audioModel string
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a new OpenAI provider.
func New(cfg Config, logger *slog.Logger) *Provider {
	return &Provider{
		client:     goopenai.NewClient(cfg.APIKey),
		chatModel:  cfg.ChatModel,
		audioModel: cfg.AudioModel,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

func (p *Provider) ChatReply(ctx context.Context, params ai.ChatParams) (*ai.ChatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]goopenai.ChatCompletionMessage, 0, len(params.Messages)+1)
	if params.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: params.System,
		})
	}
	for _, m := range params.Messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == ai.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: messages,
	})
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("chat", "error").Inc()
		return nil, ai.WrapError("chat", translateError(err))
	}
	if len(resp.Choices) == 0 {
		metrics.AIAPICalls.WithLabelValues("chat", "error").Inc()
		return nil, ai.WrapError("chat", ai.ErrUnavailable)
	}

	metrics.AIAPICalls.WithLabelValues("chat", "success").Inc()
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(resp.Usage.PromptTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(resp.Usage.CompletionTokens))

	return &ai.ChatResult{
		Reply: resp.Choices[0].Message.Content,
		Usage: ai.UsageInfo{
			Model:        p.chatModel,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Duration:     time.Since(start),
		},
	}, nil
}

func (p *Provider) Transcribe(ctx context.Context, params ai.TranscribeParams) (*ai.TranscriptionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    p.audioModel,
		Reader:   params.Audio,
		FilePath: params.Filename,
		Language: params.Language,
	})
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("transcription", "error").Inc()
		return nil, ai.WrapError("transcribe", translateError(err))
	}

	metrics.AIAPICalls.WithLabelValues("transcription", "success").Inc()

	return &ai.TranscriptionResult{
		Text:     resp.Text,
		Language: resp.Language,
		Usage: ai.UsageInfo{
			Model:    p.audioModel,
			Duration: time.Since(start),
		},
	}, nil
}

// translateError maps OpenAI API errors onto the package sentinels.
func translateError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.ErrTimeout
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return ai.ErrUnauthorized
		case http.StatusTooManyRequests:
			return ai.ErrRateLimit
		case http.StatusBadRequest, http.StatusUnsupportedMediaType:
			return ai.ErrInvalidAudio
		default:
			if apiErr.HTTPStatusCode >= 500 {
				return ai.ErrUnavailable
			}
		}
	}
	return err
}
