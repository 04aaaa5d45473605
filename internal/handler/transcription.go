// Package handler contains the HTTP handlers for the Quill API.
//
// This file implements voice note transcription uploads.
//
// Routes:
//   - POST /api/transcriptions -> Create (multipart/form-data, field "audio")
package handler

import (
	"log/slog"
	"net/http"

	"github.com/quill-app/quill/internal/auth"
	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/service"
)

// TranscriptionHandler handles audio upload and transcription.
type TranscriptionHandler struct {
	transcription service.TranscriptionService
	logger        *slog.Logger
}

// NewTranscriptionHandler creates a new TranscriptionHandler.
func NewTranscriptionHandler(transcription service.TranscriptionService, logger *slog.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{transcription: transcription, logger: logger}
}

// Create handles POST /api/transcriptions.
func (h *TranscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.transcription_create"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAudioSize+4096)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Expected multipart form data with an audio file"))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "An audio file is required"))
		return
	}
	defer file.Close()

	result, err := h.transcription.Transcribe(r.Context(), user.ID, service.TranscribeParams{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Audio:       file,
		Language:    r.FormValue("language"),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
