package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// SessionCookieName is the cookie name used by test servers
const SessionCookieName = "fpinnova_session"

// AuthHelper logs users in against a handler and replays their session cookie
type AuthHelper struct {
	Handler http.Handler
}

// NewAuthHelper creates a new auth helper for handler
func NewAuthHelper(handler http.Handler) *AuthHelper {
	return &AuthHelper{Handler: handler}
}

// Login signs in with email and password and returns the session cookie
func (h *AuthHelper) Login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()

	resp := h.Do(t, http.MethodPost, "/api/auth/login", nil, map[string]string{
		"email":    email,
		"password": password,
	})
	resp.AssertStatusOK(t)
	for _, c := range resp.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("Login for %s returned no session cookie", email)
	return nil
}

// Do sends a JSON request carrying cookie (which may be nil)
func (h *AuthHelper) Do(t *testing.T, method, path string, cookie *http.Cookie, body any) *TestResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp := NewTestResponse()
	h.Handler.ServeHTTP(resp, req)
	return resp
}

// TestResponse holds response data for assertions
type TestResponse struct {
	*httptest.ResponseRecorder
}

// NewTestResponse creates a new test response recorder
func NewTestResponse() *TestResponse {
	return &TestResponse{ResponseRecorder: httptest.NewRecorder()}
}

// AssertStatus asserts the HTTP status code
func (r *TestResponse) AssertStatus(t *testing.T, expected int) {
	t.Helper()

	if r.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, r.Code, r.Body.String())
	}
}

// AssertStatusOK asserts 200 OK
func (r *TestResponse) AssertStatusOK(t *testing.T) {
	t.Helper()
	r.AssertStatus(t, http.StatusOK)
}

// AssertStatusCreated asserts 201 Created
func (r *TestResponse) AssertStatusCreated(t *testing.T) {
	t.Helper()
	r.AssertStatus(t, http.StatusCreated)
}

// AssertStatusForbidden asserts 403 Forbidden
func (r *TestResponse) AssertStatusForbidden(t *testing.T) {
	t.Helper()
	r.AssertStatus(t, http.StatusForbidden)
}

// Decode unmarshals the JSON body into v
func (r *TestResponse) Decode(t *testing.T, v any) {
	t.Helper()

	if err := json.Unmarshal(r.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", r.Body.String(), err)
	}
}
