// Package service contains the business logic layer.
//
// This file implements voice note transcription: the recording is kept
// in object storage and run through the speech-to-text provider.
package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/ai"
	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/metrics"
	"github.com/quill-app/quill/internal/storage"
)

// MaxAudioSize bounds an uploaded voice recording (25 MB, the provider's
// own per-file limit).
const MaxAudioSize = 25 << 20

// TranscribeParams describes one uploaded recording.
type TranscribeParams struct {
	Filename    string
	ContentType string
	Audio       io.Reader
	Language    string // optional hint
}

// Transcription is a completed voice note transcription.
type Transcription struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// TranscriptionService turns voice recordings into diary text.
type TranscriptionService interface {
	// Transcribe checks the user's transcription allowance, stores the
	// recording, and transcribes it. Usage is recorded only after the
	// transcription succeeds.
	Transcribe(ctx context.Context, userID uuid.UUID, params TranscribeParams) (*Transcription, error)
}

type transcriptionService struct {
	provider    ai.Provider
	store       storage.Storage
	entitlement EntitlementService
	usage       UsageService
	logger      *slog.Logger
}

// NewTranscriptionService creates a new TranscriptionService.
func NewTranscriptionService(provider ai.Provider, store storage.Storage, entitlement EntitlementService, usage UsageService, logger *slog.Logger) TranscriptionService {
	return &transcriptionService{
		provider:    provider,
		store:       store,
		entitlement: entitlement,
		usage:       usage,
		logger:      logger,
	}
}

func (s *transcriptionService) Transcribe(ctx context.Context, userID uuid.UUID, params TranscribeParams) (*Transcription, error) {
	const op = "transcription.transcribe"

	contentType := storage.DetectContentType(params.ContentType, params.Filename, nil)
	if !storage.IsAllowedAudioType(contentType) {
		return nil, domain.Invalid(op, "Unsupported audio format")
	}

	decision, err := s.entitlement.Check(ctx, userID, domain.CounterTranscriptions)
	if err != nil {
		return nil, err
	}
	if err := denialError(op, "Voice transcription", decision); err != nil {
		return nil, err
	}

	// Buffer the upload so it can be both stored and sent to the
	// provider. MaxAudioSize keeps this bounded.
	data, err := io.ReadAll(io.LimitReader(params.Audio, MaxAudioSize+1))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read audio upload")
	}
	if len(data) == 0 {
		return nil, domain.Invalid(op, "Audio file is empty")
	}
	if len(data) > MaxAudioSize {
		return nil, domain.Errorf(domain.ETOOLARGE, op, "Audio files are limited to %d MB", MaxAudioSize>>20)
	}

	key := storage.AudioKey(userID, params.Filename)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     MaxAudioSize,
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to store audio")
	}

	result, err := s.provider.Transcribe(ctx, ai.TranscribeParams{
		Audio:    bytes.NewReader(data),
		Filename: params.Filename,
		Language: params.Language,
	})
	if err != nil {
		// Keep storage consistent with the ledger: no transcription, no
		// stored recording.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error("failed to clean up audio after transcription failure",
				"error", delErr, "key", key)
		}
		return nil, translateAIError(err, op)
	}

	if err := s.usage.Record(ctx, userID, domain.CounterTranscriptions); err != nil {
		s.logger.Error("failed to record transcription usage", "error", err, "user_id", userID)
	}
	metrics.TranscriptionsCompleted.Inc()

	url, err := s.store.URL(ctx, key, 24*time.Hour)
	if err != nil {
		s.logger.Warn("failed to generate audio URL", "error", err, "key", key)
		url = ""
	}

	s.logger.Info("transcription completed",
		"user_id", userID,
		"key", key,
		"chars", len(result.Text),
	)
	return &Transcription{
		Text:     result.Text,
		Language: result.Language,
		AudioURL: url,
	}, nil
}
