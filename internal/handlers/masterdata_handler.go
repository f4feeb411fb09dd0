package handlers

import (
	"net/http"
	"strings"

	"fp-innova/internal/models"
	"fp-innova/internal/service"
)

// masterEndpoints are the handlers of one master data type
type masterEndpoints struct {
	list, get, create, update, remove, setActive, importCSV http.HandlerFunc
}

// MasterDataHandler serves every master data type under /api/master-data/{type}
type MasterDataHandler struct {
	errorResponder
	types         map[string]masterEndpoints
	maxUploadSize int64
}

// NewMasterDataHandler creates a new master data handler
func NewMasterDataHandler(svc *service.MasterDataService, maxUploadSize int64, exposeErrors bool) *MasterDataHandler {
	h := &MasterDataHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		maxUploadSize:  maxUploadSize,
	}
	h.types = map[string]masterEndpoints{
		models.MasterCenters:     endpointsFor(h, svc.Centers),
		models.MasterFamilies:    endpointsFor(h, svc.Families),
		models.MasterCycles:      endpointsFor(h, svc.Cycles),
		models.MasterCourses:     endpointsFor(h, svc.Courses),
		models.MasterDepartments: endpointsFor(h, svc.Departments),
	}
	return h
}

// MasterStatusRequest activates or deactivates an entry
type MasterStatusRequest struct {
	Active bool `json:"active"`
}

func endpointsFor[T any](h *MasterDataHandler, entity *service.MasterEntity[T]) masterEndpoints {
	return masterEndpoints{
		list: func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			items, err := entity.List(r.Context(), models.MasterDataFilter{
				ActiveOnly: q.Get("active") == "true",
				Search:     strings.TrimSpace(q.Get("search")),
				ParentID:   queryUint(r, "parentId"),
				CenterID:   queryUint(r, "centerId"),
			})
			if err != nil {
				h.fail(w, r, err)
				return
			}
			respondWithJSON(w, http.StatusOK, items)
		},
		get: func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r, "id")
			if !ok {
				return
			}
			item, err := entity.Get(r.Context(), id)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			respondWithJSON(w, http.StatusOK, item)
		},
		create: func(w http.ResponseWriter, r *http.Request) {
			actor, ok := currentUser(w, r)
			if !ok {
				return
			}
			item := new(T)
			if !decodeJSON(w, r, item) {
				return
			}
			created, err := entity.Create(r.Context(), actor, item)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			respondWithJSON(w, http.StatusCreated, created)
		},
		update: func(w http.ResponseWriter, r *http.Request) {
			actor, ok := currentUser(w, r)
			if !ok {
				return
			}
			id, ok := pathID(w, r, "id")
			if !ok {
				return
			}
			item := new(T)
			if !decodeJSON(w, r, item) {
				return
			}
			updated, err := entity.Update(r.Context(), actor, id, item)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			respondWithJSON(w, http.StatusOK, updated)
		},
		remove: func(w http.ResponseWriter, r *http.Request) {
			actor, ok := currentUser(w, r)
			if !ok {
				return
			}
			id, ok := pathID(w, r, "id")
			if !ok {
				return
			}
			soft, err := entity.Delete(r.Context(), actor, id)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			msg := "Deleted"
			if soft {
				msg = "Still referenced, deactivated instead"
			}
			respondWithJSON(w, http.StatusOK, map[string]any{"message": msg, "deactivated": soft})
		},
		setActive: func(w http.ResponseWriter, r *http.Request) {
			actor, ok := currentUser(w, r)
			if !ok {
				return
			}
			id, ok := pathID(w, r, "id")
			if !ok {
				return
			}
			var req MasterStatusRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if err := entity.SetActive(r.Context(), actor, id, req.Active); err != nil {
				h.fail(w, r, err)
				return
			}
			respondWithMessage(w, "Status updated")
		},
		importCSV: func(w http.ResponseWriter, r *http.Request) {
			actor, ok := currentUser(w, r)
			if !ok {
				return
			}
			file, _, ok := formFile(w, r, h.maxUploadSize)
			if !ok {
				return
			}
			defer file.Close()
			result, err := entity.Import(r.Context(), actor, file)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			respondWithJSON(w, http.StatusOK, result)
		},
	}
}

func (h *MasterDataHandler) dispatch(pick func(masterEndpoints) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoints, ok := h.types[r.PathValue("type")]
		if !ok {
			respondWithError(w, http.StatusNotFound, ErrMsgUnknownMasterType)
			return
		}
		pick(endpoints)(w, r)
	}
}

// List lists entries of a master data type
// @Summary List master data
// @Tags Master data
// @Produce json
// @Param type path string true "centers, families, cycles, courses or departments"
// @Param active query bool false "Only active entries"
// @Param search query string false "Code or name contains"
// @Param parentId query int false "Family (cycles, departments) or cycle (courses)"
// @Param centerId query int false "Center (departments)"
// @Success 200 {array} object
// @Router /master-data/{type} [get]
func (h *MasterDataHandler) List(w http.ResponseWriter, r *http.Request) {
	h.dispatch(func(e masterEndpoints) http.HandlerFunc { return e.list })(w, r)
}

// Get returns one master data entry
// @Summary Get master data entry
// @Tags Master data
// @Produce json
// @Param type path string true "Type"
// @Param id path int true "ID"
// @Success 200 {object} object
// @Failure 404 {object} map[string]string
// @Router /master-data/{type}/{id} [get]
func (h *MasterDataHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.dispatch(func(e masterEndpoints) http.HandlerFunc { return e.get })(w, r)
}

// Create creates a master data entry
// @Summary Create master data entry
// @Tags Master data
// @Accept json
// @Produce json
// @Param type path string true "Type"
// @Success 201 {object} object
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "Duplicate code"
// @Router /master-data/{type} [post]
func (h *MasterDataHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.dispatch(func(e masterEndpoints) http.HandlerFunc { return e.create })(w, r)
}

// Update updates a master data entry
// @Summary Update master data entry
// @Tags Master data
// @Accept json
// @Produce json
// @Param type path string true "Type"
// @Param id path int true "ID"
// @Success 200 {object} object
// @Router /master-data/{type}/{id} [put]
func (h *MasterDataHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.dispatch(func(e masterEndpoints) http.HandlerFunc { return e.update })(w, r)
}

// Delete removes an entry, or deactivates it while still referenced
// @Summary Delete master data entry
// @Tags Master data
// @Produce json
// @Param type path string true "Type"
// @Param id path int true "ID"
// @Success 200 {object} map[string]interface{}
// @Router /master-data/{type}/{id} [delete]
func (h *MasterDataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.dispatch(func(e masterEndpoints) http.HandlerFunc { return e.remove })(w, r)
}

// SetActive activates or deactivates an entry
// @Summary Activate or deactivate master data entry
// @Tags Master data
// @Accept json
// @Produce json
// @Param type path string true "Type"
// @Param id path int true "ID"
// @Param request body MasterStatusRequest true "Status"
// @Success 200 {object} map[string]string
// @Router /master-data/{type}/{id}/status [patch]
func (h *MasterDataHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	h.dispatch(func(e masterEndpoints) http.HandlerFunc { return e.setActive })(w, r)
}

// Import loads entries from a CSV file whose header row names the fields
// @Summary Import master data from CSV
// @Tags Master data
// @Accept multipart/form-data
// @Produce json
// @Param type path string true "Type"
// @Param file formData file true "CSV file"
// @Success 200 {object} models.ImportResult
// @Router /master-data/{type}/import [post]
func (h *MasterDataHandler) Import(w http.ResponseWriter, r *http.Request) {
	h.dispatch(func(e masterEndpoints) http.HandlerFunc { return e.importCSV })(w, r)
}
