package handlers

import (
	"net/http"

	"fp-innova/internal/models"
	"fp-innova/internal/service"
)

// NotificationHandler handles the in-app notification inbox
type NotificationHandler struct {
	errorResponder
	svc *service.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(svc *service.NotificationService, exposeErrors bool) *NotificationHandler {
	return &NotificationHandler{errorResponder: errorResponder{exposeErrors: exposeErrors}, svc: svc}
}

// ListNotifications lists the current user's notifications, newest first
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {array} models.Notification
// @Router /notifications [get]
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r, 20, 100)
	unread := queryBool(r, "unread")
	items, err := h.svc.List(r.Context(), user.ID, unread != nil && *unread, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

// UnreadCount returns the number of unread notifications
// @Summary Unread notification count
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]int
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"count": n})
}

// MarkRead marks one notification as read
// @Summary Mark notification read
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkRead(r.Context(), user.ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Notification marked as read")
}

// MarkAllRead marks every notification as read
// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.svc.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"message": "All notifications marked as read", "updated": n})
}

// DeleteNotification removes one notification
// @Summary Delete notification
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), user.ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Notification deleted")
}

// GetPreferences returns the delivery preference of every notification type
// @Summary Get notification preferences
// @Tags Notifications
// @Produce json
// @Success 200 {array} models.NotificationPreference
// @Router /notifications/preferences [get]
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	prefs, err := h.svc.Preferences(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences stores delivery preferences
// @Summary Update notification preferences
// @Tags Notifications
// @Accept json
// @Produce json
// @Param request body []models.NotificationPreference true "Preferences"
// @Success 200 {array} models.NotificationPreference
// @Router /notifications/preferences [put]
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req []models.NotificationPreference
	if !decodeJSON(w, r, &req) {
		return
	}
	prefs, err := h.svc.UpdatePreferences(r.Context(), user.ID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, prefs)
}
