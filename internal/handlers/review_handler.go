package handlers

import (
	"net/http"

	"fp-innova/internal/service"
)

// ReviewHandler handles project reviews and document amendments
type ReviewHandler struct {
	errorResponder
	reviews       *service.ReviewService
	amendments    *service.AmendmentService
	maxUploadSize int64
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviews *service.ReviewService, amendments *service.AmendmentService, maxUploadSize int64, exposeErrors bool) *ReviewHandler {
	return &ReviewHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		reviews:        reviews,
		amendments:     amendments,
		maxUploadSize:  maxUploadSize,
	}
}

// ListProjectReviews lists the reviews of a project
// @Summary List project reviews
// @Tags Reviews
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} models.Review
// @Router /projects/{id}/reviews [get]
func (h *ReviewHandler) ListProjectReviews(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reviews, err := h.reviews.ListByProject(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reviews)
}

// SaveReview creates or updates the current reviewer's review. A review saved
// with isDraft=false is final and can no longer be changed.
// @Summary Save review
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body service.SaveReviewRequest true "Scores and comments"
// @Success 200 {object} models.Review
// @Failure 400 {object} map[string]interface{} "Score out of range"
// @Failure 409 {object} map[string]string "Review already final"
// @Router /projects/{id}/reviews [post]
func (h *ReviewHandler) SaveReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req service.SaveReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	review, err := h.reviews.SaveReview(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, review)
}

// GetReviewStatus reports how many reviews a project has and still needs
// @Summary Get review completion
// @Tags Reviews
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} models.ReviewCompletion
// @Router /projects/{id}/review-status [get]
func (h *ReviewHandler) GetReviewStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	status, err := h.reviews.GetCompletionStatus(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// GetReview returns one review
// @Summary Get review
// @Tags Reviews
// @Produce json
// @Param id path int true "Review ID"
// @Success 200 {object} models.Review
// @Router /reviews/{id} [get]
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	review, err := h.reviews.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, review)
}

// DeleteReview deletes a review and recomputes the project score
// @Summary Delete review
// @Tags Reviews
// @Produce json
// @Param id path int true "Review ID"
// @Success 200 {object} map[string]string
// @Router /reviews/{id} [delete]
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.reviews.DeleteReview(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Review deleted")
}

// ListMyReviews lists the reviews written by the current user
// @Summary List my reviews
// @Tags Reviews
// @Produce json
// @Success 200 {array} models.Review
// @Router /reviews/mine [get]
func (h *ReviewHandler) ListMyReviews(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	reviews, err := h.reviews.ListMine(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, reviews)
}

// RequestAmendments asks the presenters to correct documents
// @Summary Request amendments
// @Tags Amendments
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body service.RequestAmendmentsRequest true "Documents to correct"
// @Success 201 {object} models.ProjectAmendment
// @Router /projects/{id}/amendments [post]
func (h *ReviewHandler) RequestAmendments(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req service.RequestAmendmentsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amendment, err := h.amendments.RequestAmendments(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, amendment)
}

// ListProjectAmendments lists the amendment requests of a project
// @Summary List project amendments
// @Tags Amendments
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} models.ProjectAmendment
// @Router /projects/{id}/amendments [get]
func (h *ReviewHandler) ListProjectAmendments(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	amendments, err := h.amendments.ListByProject(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, amendments)
}

// ListMyAmendments lists the amendment requests on the current user's projects
// @Summary List my amendments
// @Tags Amendments
// @Produce json
// @Success 200 {array} models.ProjectAmendment
// @Router /amendments/mine [get]
func (h *ReviewHandler) ListMyAmendments(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	amendments, err := h.amendments.ListMine(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, amendments)
}

// GetAmendment returns one amendment request with its documents
// @Summary Get amendment
// @Tags Amendments
// @Produce json
// @Param id path int true "Amendment ID"
// @Success 200 {object} models.ProjectAmendment
// @Router /amendments/{id} [get]
func (h *ReviewHandler) GetAmendment(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	amendment, err := h.amendments.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, amendment)
}

// UploadAmendment uploads the corrected file for one requested document
// @Summary Upload amended document
// @Tags Amendments
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Amendment ID"
// @Param docId path int true "Amendment document ID"
// @Param file formData file true "Corrected document"
// @Success 200 {object} models.ProjectAmendment
// @Failure 409 {object} map[string]string "Deadline passed or already completed"
// @Router /amendments/{id}/documents/{docId} [post]
func (h *ReviewHandler) UploadAmendment(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entryID, ok := pathID(w, r, "docId")
	if !ok {
		return
	}
	file, header, ok := formFile(w, r, h.maxUploadSize)
	if !ok {
		return
	}
	defer file.Close()
	amendment, err := h.amendments.UploadAmendment(r.Context(), actor, id, entryID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, amendment)
}
