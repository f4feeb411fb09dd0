package handlers

import (
	"net/http"
	"strings"

	"fp-innova/internal/models"
	"fp-innova/internal/service"
)

// UserHandler handles user administration, the profile of the current user
// and registration codes
type UserHandler struct {
	errorResponder
	userService *service.UserService
	authService *service.AuthService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, authService *service.AuthService, exposeErrors bool) *UserHandler {
	return &UserHandler{
		errorResponder: errorResponder{exposeErrors: exposeErrors},
		userService:    userService,
		authService:    authService,
	}
}

// UserStatusRequest activates or deactivates a user
type UserStatusRequest struct {
	Active bool `json:"active"`
}

// ListUsers lists users
// @Summary List users
// @Tags Users
// @Produce json
// @Param role query string false "Role"
// @Param centerId query int false "Center ID"
// @Param active query bool false "Active flag"
// @Param search query string false "Name or email contains"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Success 200 {array} models.User
// @Failure 403 {object} map[string]string
// @Router /users [get]
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r, 50, 200)
	users, err := h.userService.List(r.Context(), models.UserFilter{
		Role:     q.Get("role"),
		CenterID: queryUint(r, "centerId"),
		Active:   queryBool(r, "active"),
		Search:   strings.TrimSpace(q.Get("search")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, users)
}

// GetUser returns one user
// @Summary Get user
// @Tags Users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} map[string]string
// @Router /users/{id} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.userService.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// CreateUser creates a user
// @Summary Create user
// @Description Only administrators may create administrators
// @Tags Users
// @Accept json
// @Produce json
// @Param request body service.CreateUserRequest true "User"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.userService.Create(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, user)
}

// UpdateUser updates the administrative fields of a user
// @Summary Update user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body service.UpdateUserRequest true "User"
// @Success 200 {object} models.User
// @Router /users/{id} [put]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.userService.Update(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// SetUserStatus activates or deactivates a user. Users are never hard deleted.
// @Summary Activate or deactivate user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UserStatusRequest true "Status"
// @Success 200 {object} map[string]string
// @Router /users/{id}/status [patch]
func (h *UserHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UserStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.userService.SetActive(r.Context(), actor, id, req.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Active {
		respondWithMessage(w, "User activated")
		return
	}
	respondWithMessage(w, "User deactivated")
}

// UpdateProfile updates the signed-in user's own profile
// @Summary Update my profile
// @Tags Users
// @Accept json
// @Produce json
// @Param request body service.UpdateProfileRequest true "Profile"
// @Success 200 {object} models.User
// @Router /auth/me [put]
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.userService.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// ListVerificationCodes lists registration codes
// @Summary List verification codes
// @Tags Verification codes
// @Produce json
// @Param status query string false "active, used, expired or revoked"
// @Success 200 {array} models.VerificationCode
// @Router /verification-codes [get]
func (h *UserHandler) ListVerificationCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.authService.ListVerificationCodes(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, codes)
}

// CreateVerificationCode issues a registration code for a role
// @Summary Create verification code
// @Tags Verification codes
// @Accept json
// @Produce json
// @Param request body service.CreateCodeRequest true "Code"
// @Success 201 {object} models.VerificationCode
// @Router /verification-codes [post]
func (h *UserHandler) CreateVerificationCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.CreateCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	code, err := h.authService.CreateVerificationCode(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, code)
}

// RevokeVerificationCode revokes an unused code
// @Summary Revoke verification code
// @Tags Verification codes
// @Produce json
// @Param id path int true "Code ID"
// @Success 200 {object} map[string]string
// @Router /verification-codes/{id} [delete]
func (h *UserHandler) RevokeVerificationCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.authService.RevokeVerificationCode(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	respondWithMessage(w, "Verification code revoked")
}
