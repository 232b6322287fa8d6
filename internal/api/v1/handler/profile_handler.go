package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/VmalRaj-Dev/limetto/internal/api/v1/dto"
	"github.com/VmalRaj-Dev/limetto/internal/middleware"
	"github.com/VmalRaj-Dev/limetto/internal/model"
	"github.com/VmalRaj-Dev/limetto/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type ProfileHandler struct {
	profileSvc service.ProfileService
	validate   *validator.Validate
	logger     zerolog.Logger
}

func NewProfileHandler(profileSvc service.ProfileService, validate *validator.Validate, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{profileSvc: profileSvc, validate: validate, logger: logger}
}

// RegisterRoutes mounts v1 profile routes
func (h *ProfileHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/profiles/me", authMw(http.HandlerFunc(h.handleProfile)))
}

func (h *ProfileHandler) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createProfile(w, r)
	case http.MethodGet:
		h.getProfile(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// createProfile godoc
// @Summary Create the current user's profile
// @Tags profiles
// @Accept json
// @Produce json
// @Param profile body dto.ProfileCreateDTO true "Profile details"
// @Success 201 {object} dto.ProfileResponseDTO
// @Failure 400 {string} string "invalid request payload"
// @Failure 409 {string} string "profile already exists"
// @Router /profiles/me [post]
func (h *ProfileHandler) createProfile(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.ProfileCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.profileSvc.Create(r.Context(), &model.Profile{
		ID:               session.UserID,
		Name:             req.Name,
		Email:            req.Email,
		ChosenCategoryID: req.ChosenCategoryID,
	})
	if err != nil {
		if errors.Is(err, service.ErrProfileExists) {
			http.Error(w, "Profile already exists", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Str("user_id", session.UserID).Msg("failed to create profile")
		http.Error(w, "Failed to create profile", http.StatusInternalServerError)
		return
	}

	view, err := h.profileSvc.Get(r.Context(), created.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", session.UserID).Msg("failed to load created profile")
		http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toProfileResponse(view))
}

// getProfile godoc
// @Summary Get the current user's profile and subscription state
// @Tags profiles
// @Produce json
// @Success 200 {object} dto.ProfileResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "profile not found"
// @Router /profiles/me [get]
func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	view, err := h.profileSvc.Get(r.Context(), session.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProfileNotFound):
			http.Error(w, "Profile not found", http.StatusNotFound)
		default:
			h.logger.Error().Err(err).Str("user_id", session.UserID).Msg("failed to load profile")
			http.Error(w, "Failed to load profile", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toProfileResponse(view))
}

func toProfileResponse(view *service.ProfileView) dto.ProfileResponseDTO {
	p := view.Profile
	resp := dto.ProfileResponseDTO{
		ID:                 p.ID,
		Name:               p.Name,
		Email:              p.Email,
		SubscriptionStatus: string(p.SubscriptionStatus),
		IsTrialing:         p.IsTrialing,
		TrialEndsAt:        p.TrialEndsAt,
		HasEverTrialed:     p.HasEverTrialed,
		SubscribedAt:       p.SubscribedAt,
		NextBillingAt:      p.NextBillingAt,
		LastPaymentAt:      p.LastPaymentAt,
		ChosenCategoryID:   p.ChosenCategoryID,
		HasCustomer:        p.DodoCustomerID != nil && *p.DodoCustomerID != "",
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		Subscription:       view.Details,
	}
	if p.PaymentStatus != nil {
		ps := string(*p.PaymentStatus)
		resp.PaymentStatus = &ps
	}
	return resp
}
