package router

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-activity-go/internal/activity"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/audit"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/category"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-activity-go/internal/user"
)

// Config holds HTTP surface settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// ConfigFromEnv reads HTTP_ADDR and CORS_ALLOWED_ORIGINS (comma separated, default "*").
func ConfigFromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	origins := []string{"*"}
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		origins = origins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return Config{Addr: addr, AllowedOrigins: origins}
}

// Handlers groups the endpoint handlers mounted by RegisterRoutes.
// Throttle, when set, wraps the credential endpoints.
type Handlers struct {
	Throttle   func(http.Handler) http.Handler
	Auth       *auth.Handler
	Users      *user.Handler
	Categories *category.Handler
	Activities *activity.Handler
	Audit      *audit.Handler
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// RequestIDHeader carries the id LoggingMiddleware tags each request with.
const RequestIDHeader = "X-Request-ID"

// LoggingMiddleware logs every request; server errors at warn level, the rest at debug.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" || len(reqID) > 64 {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers for a JSON API.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware answers preflight requests and tags responses for the allowed
// origins. Credentials are only allowed for explicitly listed origins; "*"
// answers with a literal wildcard.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	wildcard := false
	allowed := map[string]struct{}{}
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := allowed[origin]; ok && origin != "*" {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Add("Vary", "Origin")
				} else if wildcard {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
// Every route except health, register and login runs behind authn.
func RegisterRoutes(cfg Config, logger *zap.SugaredLogger, h Handlers, authn func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(fn))
	}

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	throttle := h.Throttle
	if throttle == nil {
		throttle = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /api/auth/register", throttle(http.HandlerFunc(h.Users.Register)))
	mux.Handle("POST /api/auth/login", throttle(http.HandlerFunc(h.Auth.Login)))
	protected("GET /api/auth/me", h.Auth.Me)

	protected("GET /api/users", h.Users.List)
	protected("POST /api/users", h.Users.Create)
	protected("GET /api/users/{id}", h.Users.Get)
	protected("PATCH /api/users/{id}", h.Users.Update)
	protected("DELETE /api/users/{id}", h.Users.Delete)
	protected("PUT /api/users/{id}/password", h.Users.ChangePassword)

	protected("GET /api/categories", h.Categories.List)
	protected("POST /api/categories", h.Categories.Create)
	protected("GET /api/categories/{id}", h.Categories.Get)
	protected("PATCH /api/categories/{id}", h.Categories.Update)
	protected("DELETE /api/categories/{id}", h.Categories.Delete)

	protected("GET /api/activities", h.Activities.List)
	protected("POST /api/activities", h.Activities.Create)
	protected("GET /api/activities/{id}", h.Activities.Get)
	protected("PATCH /api/activities/{id}", h.Activities.Update)
	protected("PATCH /api/activities/{id}/status", h.Activities.ChangeStatus)
	protected("DELETE /api/activities/{id}", h.Activities.Delete)

	protected("GET /api/audit", h.Audit.List)

	// security headers, then CORS, then logging outermost
	return LoggingMiddleware(logger)(CORSMiddleware(cfg.AllowedOrigins)(SecurityHeadersMiddleware()(mux)))
}
