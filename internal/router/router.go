package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/auth"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/observability"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/task"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/internal/user/entity"
	"github.com/darkEye-2021831014/ProfileBasedTaskManager/pkg/utilities"
)

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

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestIDFrom(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			// responses carry tokens; never let intermediaries keep them
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestIDMiddleware tags each request with a ksuid, echoed in the response
// header. A well-formed incoming id is kept.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := ksuid.Parse(id); err != nil {
				id = utilities.NewKSUID()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		})
	}
}

// RequestIDFrom returns the request id set by RequestIDMiddleware, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Deps are the handlers and collaborators mounted by New.
type Deps struct {
	Logger        *zap.SugaredLogger
	Metrics       *observability.Metrics
	Authenticator *auth.Authenticator
	Users         *user.Handler
	Tasks         *task.Handler
}

// New mounts every route on a gorilla/mux router and wraps it with the
// request id, logging and security header middlewares.
func New(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(observability.HTTPMetricsMiddleware(d.Metrics))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utilities.WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utilities.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", d.Users.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", d.Users.Login).Methods(http.MethodPost)
	authRouter.HandleFunc("/forgot-password", d.Users.ForgotPassword).Methods(http.MethodPost)
	authRouter.HandleFunc("/reset-password", d.Users.ResetPassword).Methods(http.MethodPost)
	authRouter.Handle("/me", d.Authenticator.Middleware(http.HandlerFunc(d.Users.Me))).Methods(http.MethodGet)

	tasks := r.PathPrefix("/tasks").Subrouter()
	tasks.Use(d.Authenticator.Middleware, auth.RequireRoleMiddleware(entity.RoleUser, entity.RoleAdmin))
	tasks.HandleFunc("", d.Tasks.List).Methods(http.MethodGet)
	tasks.HandleFunc("", d.Tasks.Create).Methods(http.MethodPost)
	tasks.HandleFunc("/{id}", d.Tasks.Get).Methods(http.MethodGet)
	tasks.HandleFunc("/{id}", d.Tasks.Update).Methods(http.MethodPut)
	tasks.HandleFunc("/{id}", d.Tasks.Delete).Methods(http.MethodDelete)

	return RequestIDMiddleware()(LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(r)))
}
