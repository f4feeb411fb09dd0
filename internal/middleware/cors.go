package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"fp-innova/internal/config"
)

// CORSMiddleware handles CORS
type CORSMiddleware struct {
	config *config.CORSConfig
}

// NewCORSMiddleware creates a new CORS middleware
func NewCORSMiddleware(cfg *config.CORSConfig) *CORSMiddleware {
	return &CORSMiddleware{config: cfg}
}

func (m *CORSMiddleware) allowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if slices.Contains(m.config.AllowedOrigins, origin) {
		return origin
	}
	// credentials cannot be combined with a literal "*"
	if slices.Contains(m.config.AllowedOrigins, "*") {
		if m.config.AllowCredentials {
			return origin
		}
		return "*"
	}
	return ""
}

// Handler sets CORS headers for allowed origins and answers preflight requests
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	methods := strings.Join(m.config.AllowedMethods, ", ")
	headers := strings.Join(m.config.AllowedHeaders, ", ")
	exposed := strings.Join(m.config.ExposedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := m.allowedOrigin(r.Header.Get("Origin"))
		if allowed == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowed)
		h.Add("Vary", "Origin")
		if m.config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if exposed != "" {
			h.Set("Access-Control-Expose-Headers", exposed)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if m.config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(m.config.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
