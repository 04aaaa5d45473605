// Package handler contains the HTTP handlers for the Quill API.
//
// This file exposes the user's plan, limits, and usage.
//
// Routes:
//   - GET /api/me/plan -> Plan
package handler

import (
	"log/slog"
	"net/http"

	"github.com/quill-app/quill/internal/auth"
	"github.com/quill-app/quill/internal/service"
)

// EntitlementHandler serves plan and usage state.
type EntitlementHandler struct {
	entitlement service.EntitlementService
	logger      *slog.Logger
}

// NewEntitlementHandler creates a new EntitlementHandler.
func NewEntitlementHandler(entitlement service.EntitlementService, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{entitlement: entitlement, logger: logger}
}

// Plan handles GET /api/me/plan: the effective plan, the raw stored
// subscription, the plan's limits, and this month's usage.
func (h *EntitlementHandler) Plan(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	overview, err := h.entitlement.Overview(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
