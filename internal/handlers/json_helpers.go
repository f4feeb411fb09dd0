package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"fp-innova/internal/middleware"
	"fp-innova/internal/models"
	"fp-innova/internal/repository"
	"fp-innova/internal/service"
	"fp-innova/internal/storage"
	"fp-innova/pkg/validator"
)

// maxJSONBody caps JSON request bodies; uploads use multipart with their own limit
const maxJSONBody = 1 << 20

var timeType = reflect.TypeOf(time.Time{})

// JSONResponse encodes data as JSON. Nil slices anywhere in data are encoded
// as [] because the frontend iterates over them without null checks.
func JSONResponse(w http.ResponseWriter, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		_, err := w.Write([]byte("null\n"))
		return err
	}
	return json.NewEncoder(w).Encode(emptySlices(reflect.ValueOf(data)).Interface())
}

// emptySlices returns a copy of v in which every nil slice reachable through
// exported struct fields, pointers, slices and map values is empty
func emptySlices(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		if v.IsNil() {
			return reflect.MakeSlice(v.Type(), 0, 0)
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(emptySlices(v.Index(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() || v.Elem().Type() == timeType {
			return v
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(emptySlices(v.Elem()))
		return out
	case reflect.Struct:
		if v.Type() == timeType {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			out.Field(i).Set(emptySlices(v.Field(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), emptySlices(iter.Value()))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		inner := emptySlices(v.Elem())
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out
	}
	return v
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := JSONResponse(w, payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"message": message})
}

func respondWithMessage(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": message})
}

// errorResponder maps service errors to HTTP responses. Internal error text
// is only exposed in development.
type errorResponder struct {
	exposeErrors bool
}

type statusError struct {
	status  int
	message string
}

var statusErrors = []struct {
	err error
	statusError
}{
	{service.ErrInvalidCredentials, statusError{http.StatusUnauthorized, "Invalid email or password"}},
	{service.ErrSessionInvalid, statusError{http.StatusUnauthorized, "Session is invalid or expired"}},
	{service.ErrUserInactive, statusError{http.StatusUnauthorized, "Account is inactive"}},
	{service.ErrInvalidTwoFactorCode, statusError{http.StatusUnauthorized, "Invalid two-factor code"}},
	{service.ErrForbidden, statusError{http.StatusForbidden, "Insufficient permissions"}},
	{service.ErrMessagingNotAllowed, statusError{http.StatusForbidden, "Messaging between these roles is not allowed"}},
	{repository.ErrNotFound, statusError{http.StatusNotFound, "Resource not found"}},
	{storage.ErrNotFound, statusError{http.StatusNotFound, "File not found"}},
	{storage.ErrTooLarge, statusError{http.StatusRequestEntityTooLarge, "File too large"}},
	{service.ErrInvalidVerificationCode, statusError{http.StatusBadRequest, "Verification code is invalid, expired or exhausted"}},
	{service.ErrTwoFactorLocked, statusError{http.StatusTooManyRequests, "Too many failed attempts. Try again later."}},
	{service.ErrEmailTaken, statusError{http.StatusConflict, "Email already registered"}},
	{service.ErrDuplicateCode, statusError{http.StatusConflict, "Code already in use"}},
	{repository.ErrDuplicate, statusError{http.StatusConflict, "Record already exists"}},
	{service.ErrInUse, statusError{http.StatusConflict, "Record is still referenced"}},
	{repository.ErrReferenced, statusError{http.StatusConflict, "Record is still referenced"}},
	{service.ErrConvocatoriaNotOpen, statusError{http.StatusConflict, "Convocatoria is not accepting submissions"}},
	{service.ErrQuotaExceeded, statusError{http.StatusConflict, "Center project quota exceeded"}},
	{service.ErrNotEditable, statusError{http.StatusConflict, "Project cannot be modified in its current status"}},
	{service.ErrReviewFinalized, statusError{http.StatusConflict, "Review is already finalized"}},
	{service.ErrAmendmentExpired, statusError{http.StatusConflict, "Amendment deadline has passed"}},
	{service.ErrAmendmentClosed, statusError{http.StatusConflict, "Amendment entry is already completed"}},
	{service.ErrVersionConflict, statusError{http.StatusConflict, "Settings were modified by someone else"}},
	{service.ErrTwoFactorState, statusError{http.StatusConflict, "Operation not allowed in the current two-factor state"}},
	{service.ErrInvalidTransition, statusError{http.StatusConflict, "Status change not allowed"}},
	{service.ErrPreconditionFailed, statusError{http.StatusConflict, "Status change preconditions not met"}},
}

// fail writes the response for err
func (e errorResponder) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr validator.Errors
	if errors.As(err, &verr) {
		respondWithJSON(w, http.StatusBadRequest, map[string]any{
			"message": "Validation failed",
			"errors":  verr,
		})
		return
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			msg := se.message
			// transition errors carry the from/event detail
			if se.status == http.StatusConflict && (errors.Is(err, service.ErrInvalidTransition) || errors.Is(err, service.ErrPreconditionFailed)) {
				msg = err.Error()
			}
			respondWithError(w, se.status, msg)
			return
		}
	}

	slog.Error("Request failed",
		"request_id", middleware.RequestIDFrom(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	body := map[string]string{"message": "Internal Server Error"}
	if e.exposeErrors {
		body["error"] = err.Error()
	}
	respondWithJSON(w, http.StatusInternalServerError, body)
}

// decodeJSON reads a JSON body into v, answering 400 itself on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		if errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, ErrMsgEmptyBody)
			return false
		}
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return false
	}
	return true
}

// pathID parses the numeric path value name, answering 400 itself on failure
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil || id == 0 {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

// currentUser returns the authenticated user. Routes using it are wrapped in
// AuthMiddleware.Authenticate.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.GetUser(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return nil, false
	}
	return user, true
}

func queryUint(r *http.Request, name string) *uint {
	v, err := strconv.ParseUint(r.URL.Query().Get(name), 10, 32)
	if err != nil || v == 0 {
		return nil
	}
	id := uint(v)
	return &id
}

func queryBool(r *http.Request, name string) *bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	if err != nil {
		return nil
	}
	return &v
}

// pagination reads page and limit with limit capped at maxLimit
func pagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, maxLimit)
	}
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	return limit, (page - 1) * limit
}

// formFile opens the uploaded "file" field of a multipart request. The body
// may exceed maxSize by the multipart envelope; the store enforces the exact
// limit on the file itself.
func formFile(w http.ResponseWriter, r *http.Request, maxSize int64) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "File too large")
			return nil, nil, false
		}
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, nil, false
	}
	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgMissingFile)
		return nil, nil, false
	}
	return file, header, true
}
