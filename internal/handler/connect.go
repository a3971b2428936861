// Package handler contains HTTP handlers for the Tradevine API.
//
// This file implements connected-account endpoints:
//
//   - GET  /api/connect/account -> GetAccount
//   - POST /api/connect/link    -> CreateLink
package handler

import (
	"log/slog"
	"net/http"

	"github.com/harlowfield/tradevine/internal/auth"
	"github.com/harlowfield/tradevine/internal/service"
)

// ConnectHandler handles payee connected-account requests.
type ConnectHandler struct {
	connect service.ConnectService
	logger  *slog.Logger
}

// NewConnectHandler creates a new ConnectHandler.
func NewConnectHandler(connect service.ConnectService, logger *slog.Logger) *ConnectHandler {
	return &ConnectHandler{connect: connect, logger: logger}
}

// RegisterRoutes registers connect routes.
func (h *ConnectHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/connect/account", requireUser(http.HandlerFunc(h.GetAccount)))
	mux.Handle("POST /api/connect/link", requireUser(http.HandlerFunc(h.CreateLink)))
}

type accountResponse struct {
	AccountID          string `json:"account_id"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	ChargesEnabled     bool   `json:"charges_enabled"`
}

func (h *ConnectHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	acct, err := h.connect.EnsureAccount(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		AccountID:          acct.ExternalAccountID,
		OnboardingComplete: acct.OnboardingComplete,
		ChargesEnabled:     acct.ChargesEnabled,
	})
}

type linkResponse struct {
	URL string `json:"url"`
}

func (h *ConnectHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	url, err := h.connect.OnboardingLink(r.Context(), user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, linkResponse{URL: url})
}
