package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/admin"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/storefront-service/internal/session"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type CreateAdminRequest struct {
	FirstName string `json:"first_name" validate:"required,min=2"`
	LastName  string `json:"last_name" validate:"required,min=2"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

type AdminResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Admin     AdminResponse `json:"admin"`
}

type AdminHandler struct {
	admins    admin.Service
	analytics analytics.Service
	sessions  *session.Manager
	ttl       time.Duration
	now       func() time.Time
	validate  *validator.Validate
}

func NewAdminHandler(admins admin.Service, stats analytics.Service, sessions *session.Manager, ttl time.Duration, now func() time.Time) *AdminHandler {
	return &AdminHandler{
		admins:    admins,
		analytics: stats,
		sessions:  sessions,
		ttl:       ttl,
		now:       now,
		validate:  validator.New(),
	}
}

// RegisterRoutes mounts the /admin routes that do not need a session yet.
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Post("/login", h.handleLogin)
}

func (h *AdminHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/stats", h.handleStats)
	router.Post("/admins", h.handleCreateAdmin)
}

func toAdminResponse(a *admin.Admin) AdminResponse {
	return AdminResponse{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
	}
}

func (h *AdminHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	a, err := h.admins.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, err, "Failed to log in")
		return
	}

	issuedAt := h.now()
	token, err := h.sessions.Issue(a.ID, issuedAt)
	if err != nil {
		log.Error().Err(err).Stringer("admin_id", a.ID).Msg("Failed to issue admin session")
		respondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	respondWithJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: issuedAt.Add(h.ttl).UTC(),
		Admin:     toAdminResponse(a),
	})
}

func (h *AdminHandler) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, err := h.admins.CreateAdmin(r.Context(), &admin.Admin{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}, req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create admin via service")
		respondWithServiceError(w, err, "Failed to create admin")
		return
	}

	respondWithJSON(w, http.StatusCreated, toAdminResponse(created))
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.DashboardStats(r.Context(), session.FromContext(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("Failed to load dashboard stats via service")
		respondWithServiceError(w, err, "Failed to load dashboard stats")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
