package handlers

import (
	"net/http"

	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/service"
)

// ConvocatoriaHandler handles grant calls and their categories
type ConvocatoriaHandler struct {
	errorResponder
	svc    *service.ConvocatoriaService
	policy service.PermissionChecker
}

// NewConvocatoriaHandler creates a new convocatoria handler
func NewConvocatoriaHandler(svc *service.ConvocatoriaService, policy service.PermissionChecker, exposeErrors bool) *ConvocatoriaHandler {
	return &ConvocatoriaHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		svc:            svc,
		policy:         policy,
	}
}

// ConvocatoriaStatusRequest changes the status of a convocatoria
type ConvocatoriaStatusRequest struct {
	Status string `json:"status"`
}

// List lists convocatorias. Drafts are only listed for users who may edit them.
// @Summary List convocatorias
// @Tags Convocatorias
// @Produce json
// @Param status query string false "draft, active, closed or archived"
// @Success 200 {array} models.Convocatoria
// @Router /convocatorias [get]
func (h *ConvocatoriaHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	includeDrafts := h.policy.HasPermission(user.Role, rbac.ActionEdit, rbac.ResourceConvocatorias)
	items, err := h.svc.List(r.Context(), r.URL.Query().Get("status"), includeDrafts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

// Get returns a convocatoria with its categories
// @Summary Get convocatoria
// @Tags Convocatorias
// @Produce json
// @Param id path int true "Convocatoria ID"
// @Success 200 {object} models.Convocatoria
// @Failure 404 {object} map[string]string
// @Router /convocatorias/{id} [get]
func (h *ConvocatoriaHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if c.Status == models.ConvocatoriaDraft && !h.policy.HasPermission(user.Role, rbac.ActionEdit, rbac.ResourceConvocatorias) {
		respondWithError(w, http.StatusNotFound, "Resource not found")
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// Create creates a convocatoria in draft
// @Summary Create convocatoria
// @Tags Convocatorias
// @Accept json
// @Produce json
// @Param request body models.Convocatoria true "Convocatoria with categories"
// @Success 201 {object} models.Convocatoria
// @Failure 400 {object} map[string]interface{}
// @Router /convocatorias [post]
func (h *ConvocatoriaHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req models.Convocatoria
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.Create(r.Context(), actor, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, c)
}

// Update updates a convocatoria
// @Summary Update convocatoria
// @Tags Convocatorias
// @Accept json
// @Produce json
// @Param id path int true "Convocatoria ID"
// @Param request body models.Convocatoria true "Convocatoria"
// @Success 200 {object} models.Convocatoria
// @Router /convocatorias/{id} [put]
func (h *ConvocatoriaHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.Convocatoria
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.Update(r.Context(), actor, id, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// ChangeStatus moves a convocatoria through draft, active, closed and archived
// @Summary Change convocatoria status
// @Tags Convocatorias
// @Accept json
// @Produce json
// @Param id path int true "Convocatoria ID"
// @Param request body ConvocatoriaStatusRequest true "New status"
// @Success 200 {object} models.Convocatoria
// @Failure 409 {object} map[string]string "Transition not allowed"
// @Router /convocatorias/{id}/status [patch]
func (h *ConvocatoriaHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ConvocatoriaStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.ChangeStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, c)
}

// Delete deletes a convocatoria without projects
// @Summary Delete convocatoria
// @Tags Convocatorias
// @Produce json
// @Param id path int true "Convocatoria ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string "Still has projects"
// @Router /convocatorias/{id} [delete]
func (h *ConvocatoriaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Convocatoria deleted")
}

// ListCategories lists the categories of a convocatoria in order
// @Summary List categories
// @Tags Convocatorias
// @Produce json
// @Param id path int true "Convocatoria ID"
// @Success 200 {array} models.Category
// @Router /convocatorias/{id}/categories [get]
func (h *ConvocatoriaHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	categories, err := h.svc.ListCategories(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}

// ReplaceCategories replaces the ordered category list with its rubrics
// @Summary Replace categories
// @Tags Convocatorias
// @Accept json
// @Produce json
// @Param id path int true "Convocatoria ID"
// @Param request body []models.Category true "Categories"
// @Success 200 {array} models.Category
// @Failure 400 {object} map[string]interface{} "Invalid rubric"
// @Router /convocatorias/{id}/categories [put]
func (h *ConvocatoriaHandler) ReplaceCategories(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req []models.Category
	if !decodeJSON(w, r, &req) {
		return
	}
	categories, err := h.svc.ReplaceCategories(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}
