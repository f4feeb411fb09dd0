package handlers

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"fp-innova/internal/models"
	"fp-innova/internal/service"
	"fp-innova/internal/workflow"
)

// ProjectHandler handles project applications, their documents and reviewer assignment
type ProjectHandler struct {
	errorResponder
	projects      *service.ProjectService
	assignments   *service.AssignmentService
	maxUploadSize int64
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projects *service.ProjectService, assignments *service.AssignmentService, maxUploadSize int64, exposeErrors bool) *ProjectHandler {
	return &ProjectHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		projects:       projects,
		assignments:    assignments,
		maxUploadSize:  maxUploadSize,
	}
}

// DocumentStatusRequest approves or rejects a project document
type DocumentStatusRequest struct {
	Status string `json:"status"`
}

// AssignReviewersRequest replaces the reviewer list of a project
type AssignReviewersRequest struct {
	ReviewerIDs []uint `json:"reviewerIds"`
}

// ListProjects lists the projects visible to the current user
// @Summary List projects
// @Tags Projects
// @Produce json
// @Param convocatoriaId query int false "Convocatoria"
// @Param categoryId query int false "Category"
// @Param centerId query int false "Center"
// @Param status query string false "Status"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Success 200 {array} models.Project
// @Router /projects [get]
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r, 50, 200)
	projects, err := h.projects.List(r.Context(), actor, models.ProjectFilter{
		ConvocatoriaID: queryUint(r, "convocatoriaId"),
		CategoryID:     queryUint(r, "categoryId"),
		CenterID:       queryUint(r, "centerId"),
		Status:         models.ProjectStatus(r.URL.Query().Get("status")),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, projects)
}

// GetProject returns a project with documents, reviewers and review progress
// @Summary Get project
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} service.ProjectDetail
// @Failure 404 {object} map[string]string
// @Router /projects/{id} [get]
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.projects.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

// CreateProject creates a draft project
// @Summary Create project
// @Tags Projects
// @Accept json
// @Produce json
// @Param request body service.CreateProjectRequest true "Project"
// @Success 201 {object} models.Project
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "Convocatoria closed or quota exceeded"
// @Router /projects [post]
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.CreateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.projects.Create(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}

// UpdateProject updates a draft or needs_changes project
// @Summary Update project
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body service.UpdateProjectRequest true "Project"
// @Success 200 {object} models.Project
// @Router /projects/{id} [put]
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req service.UpdateProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.projects.Update(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// SubmitProject submits a draft project
// @Summary Submit project
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} models.Project
// @Failure 409 {object} map[string]string "Not a draft or convocatoria closed"
// @Router /projects/{id}/submit [post]
func (h *ProjectHandler) SubmitProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.projects.Submit(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) decide(event workflow.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		p, err := h.projects.Decide(r.Context(), actor, id, event)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, p)
	}
}

// ApproveProject approves a reviewed project
// @Summary Approve project
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} models.Project
// @Router /projects/{id}/approve [post]
func (h *ProjectHandler) ApproveProject(w http.ResponseWriter, r *http.Request) {
	h.decide(workflow.EventApprove)(w, r)
}

// RejectProject rejects a reviewed project
// @Summary Reject project
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} models.Project
// @Router /projects/{id}/reject [post]
func (h *ProjectHandler) RejectProject(w http.ResponseWriter, r *http.Request) {
	h.decide(workflow.EventReject)(w, r)
}

// ReopenProject sends an approved or rejected project back to reviewed
// @Summary Reopen project
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} models.Project
// @Router /projects/{id}/reopen [post]
func (h *ProjectHandler) ReopenProject(w http.ResponseWriter, r *http.Request) {
	h.decide(workflow.EventReopen)(w, r)
}

// DeleteProject deletes a draft project
// @Summary Delete project
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} map[string]string
// @Router /projects/{id} [delete]
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.projects.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Project deleted")
}

// ListDocuments lists the documents of a project
// @Summary List project documents
// @Tags Documents
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} models.ProjectDocument
// @Router /projects/{id}/documents [get]
func (h *ProjectHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	docs, err := h.projects.ListDocuments(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, docs)
}

// UploadDocument attaches a file to a project
// @Summary Upload project document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Project ID"
// @Param file formData file true "Document"
// @Success 201 {object} models.ProjectDocument
// @Failure 413 {object} map[string]string "File too large"
// @Router /projects/{id}/documents [post]
func (h *ProjectHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	file, header, ok := formFile(w, r, h.maxUploadSize)
	if !ok {
		return
	}
	defer file.Close()
	doc, err := h.projects.AddDocument(r.Context(), actor, id, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, doc)
}

// DownloadDocument streams a project document
// @Summary Download project document
// @Tags Documents
// @Produce octet-stream
// @Param id path int true "Project ID"
// @Param docId path int true "Document ID"
// @Success 200 {file} file
// @Router /projects/{id}/documents/{docId} [get]
func (h *ProjectHandler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := pathID(w, r, "docId")
	if !ok {
		return
	}
	content, err := h.projects.OpenDocument(r.Context(), actor, id, docID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer content.Body.Close()
	streamFile(w, content.Body, content.Document.Name, content.Document.Type, content.Document.Size)
}

// SetDocumentStatus approves or rejects a document
// @Summary Set document status
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param docId path int true "Document ID"
// @Param request body DocumentStatusRequest true "pending, approved or rejected"
// @Success 200 {object} models.ProjectDocument
// @Router /projects/{id}/documents/{docId}/status [patch]
func (h *ProjectHandler) SetDocumentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := pathID(w, r, "docId")
	if !ok {
		return
	}
	var req DocumentStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	doc, err := h.projects.SetDocumentStatus(r.Context(), actor, id, docID, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, doc)
}

// DeleteDocument removes a document from an editable project
// @Summary Delete project document
// @Tags Documents
// @Produce json
// @Param id path int true "Project ID"
// @Param docId path int true "Document ID"
// @Success 200 {object} map[string]string
// @Router /projects/{id}/documents/{docId} [delete]
func (h *ProjectHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := pathID(w, r, "docId")
	if !ok {
		return
	}
	if err := h.projects.DeleteDocument(r.Context(), actor, id, docID); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Document deleted")
}

// ListReviewerCandidates lists users who may review a project
// @Summary List reviewer candidates
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} service.ReviewerCandidates
// @Router /projects/{id}/reviewer-candidates [get]
func (h *ProjectHandler) ListReviewerCandidates(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	candidates, err := h.assignments.ListCandidates(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, candidates)
}

// AssignReviewers replaces the reviewers of a project
// @Summary Assign reviewers
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body AssignReviewersRequest true "Reviewer IDs"
// @Success 200 {object} models.Project
// @Router /projects/{id}/reviewers [put]
func (h *ProjectHandler) AssignReviewers(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AssignReviewersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.assignments.AssignReviewers(r.Context(), actor, id, req.ReviewerIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// streamFile writes body as a download named name
func streamFile(w http.ResponseWriter, body io.Reader, name, contentType string, size int64) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("File download interrupted", "name", name, "error", err)
	}
}
