// Package handler contains the HTTP handlers for the Quill API.
//
// This file implements managed-person endpoints.
//
// Routes:
//   - POST /api/people      -> Create
//   - GET  /api/people      -> List
//   - GET  /api/people/{id} -> Get
package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/auth"
	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/service"
)

// PeopleHandler handles managed-person requests.
type PeopleHandler struct {
	people service.PersonService
	logger *slog.Logger
}

// NewPeopleHandler creates a new PeopleHandler.
func NewPeopleHandler(people service.PersonService, logger *slog.Logger) *PeopleHandler {
	return &PeopleHandler{people: people, logger: logger}
}

// Create handles POST /api/people.
func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.person_create"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Relation string `json:"relation"`
		Notes    string `json:"notes"`
	}
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	person, err := h.people.Create(r.Context(), user.ID, domain.CreatePersonParams{
		Name:     req.Name,
		Relation: req.Relation,
		Notes:    req.Notes,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

// List handles GET /api/people.
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	people, err := h.people.List(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"people": people})
}

// Get handles GET /api/people/{id}.
func (h *PeopleHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	person, err := h.people.Get(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}
