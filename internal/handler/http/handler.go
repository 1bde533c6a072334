package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shortlink/internal/access"
	"shortlink/internal/domain"
	"shortlink/internal/service"
	"shortlink/internal/visit"
	"shortlink/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const (
	msgNotFound            = "URL not found"
	msgInvalidPassword     = "Invalid password"
	msgAllocationExhausted = "Could not allocate a short code, please retry"
	msgInvalidJSON         = "Invalid JSON body"
)

// LinkService defines the service methods needed by the handler
type LinkService interface {
	CreateLink(ctx context.Context, in service.CreateLinkInput) (*domain.Link, error)
	Resolve(ctx context.Context, shortCode string, req visit.Request) (access.Outcome, error)
	VerifyPassword(ctx context.Context, shortCode, password string, req visit.Request) (access.Outcome, error)
	SetActive(ctx context.Context, shortCode string, active bool) (*domain.Link, error)
	GetStats(ctx context.Context, shortCode string) (*service.Stats, error)
}

// HealthChecker reports whether the link store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	links   LinkService
	health  HealthChecker
	logger  *slog.Logger
	baseURL string // Prefix for short URLs, e.g. "http://localhost:8080"
}

// NewHandler creates a new HTTP handler
func NewHandler(links LinkService, health HealthChecker, logger *slog.Logger, baseURL string) *Handler {
	return &Handler{
		links:   links,
		health:  health,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type CreateLinkRequest struct {
	OriginalURL string     `json:"originalUrl"`
	Password    string     `json:"password,omitempty"`
	ClickLimit  *int64     `json:"clickLimit,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

type UpdateLinkRequest struct {
	IsActive *bool `json:"isActive"`
}

type VerifyPasswordRequest struct {
	ShortCode string `json:"shortCode"`
	Password  string `json:"password"`
}

type VerifyPasswordResponse struct {
	OriginalURL string `json:"originalUrl"`
}

// LinkResponse is the owner-facing view of a link. The password itself is
// never included.
type LinkResponse struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"shortCode"`
	ShortURL    string     `json:"shortUrl"`
	OriginalURL string     `json:"originalUrl"`
	IsActive    bool       `json:"isActive"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	ClickLimit  *int64     `json:"clickLimit"`
	HasPassword bool       `json:"hasPassword"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type ClickInfo struct {
	ClickedAt time.Time `json:"clickedAt"`
	Referer   string    `json:"referer,omitempty"`
	Device    string    `json:"device,omitempty"`
	Browser   string    `json:"browser,omitempty"`
	OS        string    `json:"os,omitempty"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
}

type StatsResponse struct {
	Link         LinkResponse   `json:"link"`
	TotalClicks  int64          `json:"totalClicks"`
	RecentClicks []ClickInfo    `json:"recentClicks"`
	Devices      map[string]int `json:"devices"`
	Browsers     map[string]int `json:"browsers"`
	OS           map[string]int `json:"os"`
	Countries    map[string]int `json:"countries"`
}

func (h *Handler) toLinkResponse(link *domain.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/" + link.ShortCode,
		OriginalURL: link.OriginalURL,
		IsActive:    link.IsActive,
		ExpiresAt:   link.ExpiresAt,
		ClickLimit:  link.ClickLimit,
		HasPassword: link.HasPassword(),
		CreatedAt:   link.CreatedAt,
	}
}

// visitRequest captures the visitor attributes recorded with a click.
func visitRequest(r *http.Request) visit.Request {
	return visit.Request{
		IPAddress: extractIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	}
}

// CreateLink handles POST /api/urls
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	link, err := h.links.CreateLink(r.Context(), service.CreateLinkInput{
		OriginalURL: req.OriginalURL,
		Password:    req.Password,
		ClickLimit:  req.ClickLimit,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrAllocationExhausted):
			h.logger.Error("Short code allocation exhausted", "error", err)
			respondError(w, http.StatusServiceUnavailable, msgAllocationExhausted)
		default:
			h.logger.Error("Failed to create link", "error", err)
			respondError(w, http.StatusInternalServerError, msgInternalError)
		}
		return
	}

	respondSuccess(w, http.StatusCreated, h.toLinkResponse(link), "")
}

// Redirect handles GET /{shortCode}
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	outcome, err := h.links.Resolve(r.Context(), shortCode, visitRequest(r))
	if err != nil {
		h.logger.Error("Failed to resolve link", "short_code", shortCode, "error", err)
		respondError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	switch outcome.Decision {
	case access.Allow:
		http.Redirect(w, r, outcome.Target, http.StatusFound)
	case access.DenyPasswordRequired:
		http.Redirect(w, r, "/"+shortCode+"/password", http.StatusFound)
	default:
		h.respondDenied(w, outcome)
	}
}

// VerifyPassword handles POST /api/verify-password
func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req VerifyPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if req.ShortCode == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "shortCode and password are required")
		return
	}
	if err := validator.ValidateShortCode(req.ShortCode); err != nil {
		respondError(w, http.StatusNotFound, msgNotFound)
		return
	}

	outcome, err := h.links.VerifyPassword(r.Context(), req.ShortCode, req.Password, visitRequest(r))
	if err != nil {
		h.logger.Error("Failed to verify password", "short_code", req.ShortCode, "error", err)
		respondError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	if outcome.Allowed() {
		respondJSON(w, http.StatusOK, VerifyPasswordResponse{OriginalURL: outcome.Target})
		return
	}
	h.respondDenied(w, outcome)
}

// respondDenied maps an evaluator denial to its status code.
func (h *Handler) respondDenied(w http.ResponseWriter, outcome access.Outcome) {
	switch outcome.Decision {
	case access.DenyNotFound:
		respondError(w, http.StatusNotFound, msgNotFound)
	case access.DenyInactive, access.DenyExpired, access.DenyClickLimitReached:
		respondError(w, http.StatusGone, outcome.Err().Error())
	case access.DenyPasswordIncorrect:
		respondError(w, http.StatusUnauthorized, msgInvalidPassword)
	case access.DenyPasswordRequired:
		respondError(w, http.StatusUnauthorized, outcome.Err().Error())
	default:
		h.logger.Error("Unhandled access decision", "decision", outcome.Decision.String())
		respondError(w, http.StatusInternalServerError, msgInternalError)
	}
}

// UpdateLink handles PATCH /api/urls/{shortCode}
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	shortCode := mux.Vars(r)["shortCode"]

	var req UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if req.IsActive == nil {
		respondError(w, http.StatusBadRequest, "isActive is required")
		return
	}

	link, err := h.links.SetActive(r.Context(), shortCode, *req.IsActive)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, msgNotFound)
			return
		}
		h.logger.Error("Failed to update link", "short_code", shortCode, "error", err)
		respondError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	respondSuccess(w, http.StatusOK, h.toLinkResponse(link), "")
}

// GetStats handles GET /api/urls/{shortCode}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	shortCode := mux.Vars(r)["shortCode"]

	stats, err := h.links.GetStats(r.Context(), shortCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, msgNotFound)
			return
		}
		h.logger.Error("Failed to get stats", "short_code", shortCode, "error", err)
		respondError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	respondSuccess(w, http.StatusOK, StatsResponse{
		Link:        h.toLinkResponse(stats.Link),
		TotalClicks: stats.TotalClicks,
		RecentClicks: lo.Map(stats.RecentClicks, func(c *domain.Click, _ int) ClickInfo {
			return ClickInfo{
				ClickedAt: c.ClickedAt,
				Referer:   c.Referer,
				Device:    c.Device,
				Browser:   c.Browser,
				OS:        c.OS,
				Country:   c.Country,
				City:      c.City,
			}
		}),
		Devices:   stats.Devices,
		Browsers:  stats.Browsers,
		OS:        stats.OS,
		Countries: stats.Countries,
	}, "")
}

// HealthCheck handles GET /health/live
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /health/ready
func (h *Handler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
