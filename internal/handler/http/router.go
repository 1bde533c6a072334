package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shortCodePattern = "{shortCode:[A-Za-z0-9_-]+}"

// RouterOptions configures the optional parts of the router.
type RouterOptions struct {
	CreateLimiter  RateLimiter // Nil disables limiting on POST /api/urls
	VerifyLimiter  RateLimiter // Nil disables limiting on POST /api/verify-password; reset on a correct password when it is a LimitResetter
	EnableMetrics  bool
	RequestTimeout time.Duration // Zero disables the per-request deadline
}

// NewRouter wires the handler's routes and the middleware chain.
func NewRouter(h *Handler, logger *slog.Logger, opts RouterOptions) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, msgNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	if opts.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/health/live", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", h.ReadinessCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/urls", limited(opts.CreateLimiter, logger, h.CreateLink, false)).Methods(http.MethodPost)
	api.HandleFunc("/urls/"+shortCodePattern, h.UpdateLink).Methods(http.MethodPatch)
	api.HandleFunc("/urls/"+shortCodePattern+"/stats", h.GetStats).Methods(http.MethodGet)
	api.Handle("/verify-password", limited(opts.VerifyLimiter, logger, h.VerifyPassword, true)).Methods(http.MethodPost)

	r.HandleFunc("/"+shortCodePattern+"/password", h.PasswordPage).Methods(http.MethodGet)
	r.HandleFunc("/"+shortCodePattern, h.Redirect).Methods(http.MethodGet)

	chain := []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		CORSMiddleware,
	}
	if opts.EnableMetrics {
		chain = append(chain, MetricsMiddleware)
	}
	if opts.RequestTimeout > 0 {
		chain = append(chain, TimeoutMiddleware(opts.RequestTimeout))
	}

	return Chain(chain...)(r)
}

func limited(limiter RateLimiter, logger *slog.Logger, fn http.HandlerFunc, resetOnSuccess bool) http.Handler {
	if limiter == nil {
		return fn
	}
	var next http.Handler = fn
	if resetter, ok := limiter.(LimitResetter); ok && resetOnSuccess {
		next = ResetLimitOnSuccess(resetter, logger)(next)
	}
	return RateLimitMiddleware(limiter, logger)(next)
}
