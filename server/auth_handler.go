package server

import (
	"net/http"
	"time"

	"beatvault/core/auth"
	"beatvault/logger"
)

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenHandler exchanges the admin password for a signed JWT.
func (h *APIHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AdminPasswordHash == "" || h.cfg.JWTSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "Admin login is not configured")
		return
	}

	var req tokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return
	}

	if !auth.CheckPasswordHash(req.Password, h.cfg.AdminPasswordHash) {
		logger.Warn("[Auth] admin login failed", logger.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, exp, err := auth.GenerateToken([]byte(h.cfg.JWTSecret), h.cfg.JWTTTL)
	if err != nil {
		logger.Error("[Auth] failed to generate token", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	logger.Info("[Auth] admin token issued", logger.Time("expiresAt", exp))
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp})
}
