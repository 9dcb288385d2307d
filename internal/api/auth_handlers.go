// HTTP handlers for token issuance and refresh. Crew members are provisioned
// through the directory; there is no self-service registration.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/auth"
)

// TokenRequest represents the request body for POST /v1/auth/token.
type TokenRequest struct {
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id"`
	Key      string `json:"key"`
}

// RefreshRequest represents the request body for POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries an issued token pair. Refresh is empty on refresh
// responses, which issue a new access token only.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// AuthHandlers holds dependencies for authentication HTTP handlers.
type AuthHandlers struct {
	jwtService *auth.JWTService
	directory  auth.Directory
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(jwtService *auth.JWTService, directory auth.Directory) *AuthHandlers {
	return &AuthHandlers{
		jwtService: jwtService,
		directory:  directory,
	}
}

// Token handles POST /v1/auth/token - authenticates a provisioned actor by
// shared key and issues an access/refresh token pair.
func (h *AuthHandlers) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.TenantID == "" || req.ActorID == "" || req.Key == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "tenant_id, actor_id, and key are required")
		return
	}

	actor, err := h.directory.Authenticate(req.TenantID, req.ActorID, req.Key)
	if err != nil {
		// Unknown actor and bad key are indistinguishable to the caller.
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid credentials")
		return
	}

	access, err := h.jwtService.GenerateAccessToken(actor.ID, actor.TenantID, actor.Name, actor.Roles)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate access token", "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to issue token")
		return
	}
	refresh, err := h.jwtService.GenerateRefreshToken(actor.ID, actor.TenantID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate refresh token", "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to issue token")
		return
	}

	slog.InfoContext(ctx, "token issued",
		"tenant_id", actor.TenantID,
		"actor_id", actor.ID,
	)

	writeJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	})
}

// Refresh handles POST /v1/auth/refresh - exchanges a valid refresh token for
// a new access token. Roles are re-resolved from the directory so revoked or
// changed role assignments take effect on the next refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.RefreshToken == "" {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "refresh_token is required")
		return
	}

	claims, err := h.jwtService.ValidateToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Refresh token has expired")
			return
		}
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid refresh token")
		return
	}
	if claims.Type != auth.TokenTypeRefresh {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Token is not a refresh token")
		return
	}

	actor, err := h.directory.Lookup(claims.TenantID, claims.Subject)
	if err != nil {
		// The actor was deprovisioned since the token was issued.
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Actor is no longer provisioned")
		return
	}

	access, err := h.jwtService.GenerateAccessToken(actor.ID, actor.TenantID, actor.Name, actor.Roles)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate access token", "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to issue token")
		return
	}

	writeJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
	})
}
