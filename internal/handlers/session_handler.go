package handlers

import (
	"net/http"

	"fp-innova/internal/middleware"
	"fp-innova/internal/service"
)

// SessionHandler handles session management requests
type SessionHandler struct {
	errorResponder
	authService *service.AuthService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(authService *service.AuthService, exposeErrors bool) *SessionHandler {
	return &SessionHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		authService:    authService,
	}
}

func currentJTI(r *http.Request) string {
	if session, ok := middleware.GetSession(r); ok {
		return session.JTI
	}
	return ""
}

// ListSessions gets the current user's active sessions
// @Summary List my sessions
// @Description All active sessions of the signed-in user; the one making the request is flagged current
// @Tags Sessions
// @Produce json
// @Success 200 {array} models.Session
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /auth/sessions [get]
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessions, err := h.authService.ListSessions(r.Context(), user.ID, currentJTI(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, sessions)
}

// RevokeSession deletes one of the current user's sessions
// @Summary Revoke a session
// @Tags Sessions
// @Produce json
// @Param id path int true "Session ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /auth/sessions/{id} [delete]
func (h *SessionHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.authService.RevokeSession(r.Context(), user.ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Session revoked")
}

// RevokeOtherSessions signs out everywhere except the current session
// @Summary Revoke all other sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /auth/sessions [delete]
func (h *SessionHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.authService.RevokeOtherSessions(r.Context(), user.ID, currentJTI(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"message": "Other sessions revoked", "revoked": n})
}
