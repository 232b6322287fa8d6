package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/VmalRaj-Dev/limetto/internal/api/v1/dto"
	"github.com/VmalRaj-Dev/limetto/internal/dodo"
	"github.com/VmalRaj-Dev/limetto/internal/middleware"
	"github.com/VmalRaj-Dev/limetto/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BillingHandler handles checkout and billing portal endpoints.
type BillingHandler struct {
	billingSvc service.BillingService
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billingSvc service.BillingService, validate *validator.Validate, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{billingSvc: billingSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the billing endpoints. Checkout runs during signup
// so it only needs an optional session; the portal requires one.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, sessionMw, authMw func(http.Handler) http.Handler) {
	mux.Handle("/checkout/subscription", sessionMw(http.HandlerFunc(h.Checkout)))
	mux.Handle("/billing/portal", authMw(http.HandlerFunc(h.Portal)))
}

// Checkout godoc
// @Summary Start a subscription checkout
// @Description Resolves or creates the user's Dodo Payments customer and returns a hosted payment link.
// @Tags billing
// @Accept json
// @Produce json
// @Param checkout body dto.CheckoutRequestDTO true "Signup and billing details"
// @Success 200 {object} dto.CheckoutResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO "missing fields or invalid country"
// @Failure 403 {object} dto.ErrorResponseDTO "checkout for another user"
// @Failure 500 {object} dto.ErrorResponseDTO "failed to create subscription"
// @Router /checkout/subscription [post]
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.logger.Debug().Err(err).Msg("checkout validation failed")
		writeError(w, h.logger, http.StatusBadRequest, "Missing required signup or billing fields")
		return
	}

	in := service.CheckoutInput{
		UserID:     req.SupabaseUserID,
		CategoryID: req.SupabaseCategoryID,
		Email:      req.Email,
		Name:       req.Name,
		Billing: dodo.BillingAddress{
			Street:  req.Billing.Street,
			City:    req.Billing.City,
			State:   req.Billing.State,
			Country: req.Billing.Country,
			Zipcode: req.Billing.Zipcode,
		},
	}
	if s := middleware.SessionFromContext(r.Context()); s != nil {
		in.SessionUserID = s.UserID
	}

	link, err := h.billingSvc.CreateSubscription(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCountry):
			writeError(w, h.logger, http.StatusBadRequest, "Invalid country: "+req.Billing.Country)
		case errors.Is(err, service.ErrForbidden):
			writeError(w, h.logger, http.StatusForbidden, "Forbidden")
		case errors.Is(err, service.ErrProfileNotFound):
			writeError(w, h.logger, http.StatusNotFound, "Profile not found")
		case errors.Is(err, service.ErrNotConfigured):
			h.logger.Error().Err(err).Msg("checkout is not configured")
			writeError(w, h.logger, http.StatusInternalServerError, "Subscription product is not configured")
		default:
			h.logger.Error().Err(err).Str("user_id", in.UserID).Msg("failed to create subscription")
			writeJSON(w, h.logger, http.StatusInternalServerError, dto.ErrorResponseDTO{
				Error:   "Failed to create subscription",
				Details: err.Error(),
			})
		}
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dto.CheckoutResponseDTO{PaymentLink: link})
}

// Portal godoc
// @Summary Create a customer portal session
// @Description Returns a Dodo Payments customer portal URL for managing the payment method.
// @Tags billing
// @Produce json
// @Success 200 {object} dto.PortalSessionResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO "no customer on file"
// @Failure 401 {string} string "unauthorized"
// @Failure 502 {object} dto.ErrorResponseDTO "provider unavailable"
// @Router /billing/portal [post]
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	url, err := h.billingSvc.CreatePortalSession(r.Context(), session.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCustomerNotFound):
			writeError(w, h.logger, http.StatusBadRequest, "Customer ID not found for this user.")
		case errors.Is(err, service.ErrProviderUnavailable):
			h.logger.Error().Err(err).Str("user_id", session.UserID).Msg("failed to create portal session")
			writeError(w, h.logger, http.StatusBadGateway, "Failed to create customer portal session")
		default:
			h.logger.Error().Err(err).Str("user_id", session.UserID).Msg("failed to create portal session")
			writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dto.PortalSessionResponseDTO{SessionURL: url})
}
