package handlers

import (
	"encoding/json"
	"net/http"

	"fp-innova/internal/service"
)

// SettingsHandler serves the versioned settings documents
type SettingsHandler struct {
	errorResponder
	svc *service.SettingsService
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(svc *service.SettingsService, exposeErrors bool) *SettingsHandler {
	return &SettingsHandler{errorResponder: errorResponder{exposeErrors: exposeErrors}, svc: svc}
}

// UpdateSettingsRequest replaces a settings document. Version must be the
// version last read; a stale version is rejected with 409.
type UpdateSettingsRequest struct {
	Version int             `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// GetAllSettings returns every settings document keyed by name
// @Summary Get all settings
// @Tags Settings
// @Produce json
// @Success 200 {object} map[string]service.SettingsDocument
// @Router /settings [get]
func (h *SettingsHandler) GetAllSettings(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.GetAll(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, docs)
}

// GetSettings returns one settings document
// @Summary Get settings
// @Tags Settings
// @Produce json
// @Param key path string true "system, rbac, messaging or notifications"
// @Success 200 {object} service.SettingsDocument
// @Failure 404 {object} map[string]string "Unknown key"
// @Router /settings/{key} [get]
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, doc)
}

// UpdateSettings replaces one settings document
// @Summary Update settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param key path string true "Settings key"
// @Param request body UpdateSettingsRequest true "Version and value"
// @Success 200 {object} service.SettingsDocument
// @Failure 400 {object} map[string]interface{} "Invalid value"
// @Failure 409 {object} map[string]string "Version conflict"
// @Router /settings/{key} [put]
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req UpdateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Value) == 0 {
		respondWithError(w, http.StatusBadRequest, ErrMsgEmptyBody)
		return
	}
	doc, err := h.svc.Update(r.Context(), actor, r.PathValue("key"), req.Version, req.Value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, doc)
}
