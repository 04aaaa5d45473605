// Package handler contains the HTTP handlers for the Quill API.
//
// Routes:
//   - GET /api/stats -> Summary
package handler

import (
	"log/slog"
	"net/http"

	"github.com/quill-app/quill/internal/auth"
	"github.com/quill-app/quill/internal/service"
)

// StatsHandler serves diary activity statistics.
type StatsHandler struct {
	stats  service.StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(stats service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// Summary handles GET /api/stats.
func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	stats, err := h.stats.Summary(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
