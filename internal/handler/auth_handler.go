package handler

import (
	"context"
	"net/http"

	"zhsystem/internal/middleware"
	"zhsystem/internal/model"
)

const (
	msgEmailVerified    = "Email verified successfully"
	msgResetLinkSent    = "If email exists, reset link sent"
	msgPasswordReset    = "Password reset successfully"
	msgVerificationSent = "If the email exists and is not verified, a verification email has been sent."
)

type authService interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.RegisterResult, error)
	Login(ctx context.Context, req model.LoginRequest) (model.TokenPair, error)
	Refresh(ctx context.Context, req model.RefreshRequest) (model.TokenPair, error)
	Revoke(ctx context.Context, userID string, refreshToken string) error
	Logout(ctx context.Context, userID string, refreshToken string) error
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, req model.EmailRequest) error
	ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error
	ResendVerificationEmail(ctx context.Context, req model.EmailRequest) error
	GoogleLogin(ctx context.Context, req model.GoogleLoginRequest) (model.TokenPair, error)
	Me(ctx context.Context, userID string) (model.AuthUser, error)
}

type auditLogger interface {
	Log(ctx context.Context, action string, actor model.AuditActor, cause error)
}

type AuthHandler struct {
	service authService
	audit   auditLogger
}

func NewAuthHandler(service authService, audit auditLogger) *AuthHandler {
	return &AuthHandler{service: service, audit: audit}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.Register(r.Context(), payload)
	h.record(r, "auth.register", payload.Email, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, result, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	tokens, err := h.service.Login(r.Context(), payload)
	h.record(r, "auth.login", payload.Email, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), payload)
	h.record(r, "auth.refresh", "", err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.service.Revoke(r.Context(), middleware.UserIDFromContext(r.Context()), payload.RefreshToken)
	h.record(r, "auth.revoke", "", err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.service.Logout(r.Context(), middleware.UserIDFromContext(r.Context()), payload.RefreshToken)
	h.record(r, "auth.logout", "", err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
	h.record(r, "auth.verify_email", "", err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeMessage(w, msgEmailVerified)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.service.ForgotPassword(r.Context(), payload)
	h.record(r, "auth.forgot_password", payload.Email, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeMessage(w, msgResetLinkSent)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.service.ResetPassword(r.Context(), payload)
	h.record(r, "auth.reset_password", "", err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeMessage(w, msgPasswordReset)
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.service.ResendVerificationEmail(r.Context(), payload)
	h.record(r, "auth.resend_verification", payload.Email, err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeMessage(w, msgVerificationSent)
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var payload model.GoogleLoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	tokens, err := h.service.GoogleLogin(r.Context(), payload)
	h.record(r, "auth.google_login", "", err)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *AuthHandler) record(r *http.Request, action string, email string, err error) {
	if h.audit == nil {
		return
	}
	h.audit.Log(r.Context(), action, actorFromRequest(r, email), err)
}
