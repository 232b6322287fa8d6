package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/api/v1/dto"
	"github.com/VmalRaj-Dev/limetto/internal/metrics"
	"github.com/VmalRaj-Dev/limetto/internal/service"

	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookSvc service.WebhookService
	logger     zerolog.Logger
}

func NewWebhookHandler(webhookSvc service.WebhookService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc, logger: logger}
}

// RegisterRoutes mounts the provider callback. It is authenticated by its
// signature, not by a session.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/dodo", h.HandleDodoWebhook)
}

// HandleDodoWebhook godoc
// @Summary Receive a Dodo Payments webhook
// @Description Verifies the Standard Webhooks signature, re-fetches the referenced subscription or payment and updates the user's profile.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.MessageResponseDTO
// @Failure 400 {object} dto.ErrorResponseDTO "invalid signature, payload or metadata"
// @Failure 404 {object} dto.ErrorResponseDTO "profile not found"
// @Failure 502 {object} dto.ErrorResponseDTO "provider unavailable"
// @Router /webhooks/dodo [post]
func (h *WebhookHandler) HandleDodoWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.observe("unknown", http.StatusBadRequest, start)
		writeError(w, h.logger, http.StatusBadRequest, "Failed to read request body")
		return
	}

	result, err := h.webhookSvc.HandleWebhook(r.Context(), r.Header, body)
	eventType := "unknown"
	if result != nil && result.EventType != "" {
		eventType = result.EventType
	}

	status, resp := webhookResponse(result, err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("event_type", eventType).Msg("Webhook processing failed")
	} else if err != nil && !errors.Is(err, service.ErrUnsupportedEvent) {
		h.logger.Warn().Err(err).Str("event_type", eventType).Msg("Webhook rejected")
	}
	h.observe(eventType, status, start)
	writeJSON(w, h.logger, status, resp)
}

func (h *WebhookHandler) observe(eventType string, status int, start time.Time) {
	metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
	metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
}

func webhookResponse(result *service.WebhookResult, err error) (int, any) {
	switch {
	case err == nil && result != nil && !result.Applied:
		return http.StatusOK, dto.MessageResponseDTO{Message: "Already processed"}
	case err == nil:
		return http.StatusOK, dto.MessageResponseDTO{Message: "Webhook processed successfully"}
	case errors.Is(err, service.ErrUnsupportedEvent):
		return http.StatusOK, dto.MessageResponseDTO{Message: "event ignored"}
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusInternalServerError, dto.ErrorResponseDTO{Error: "webhook not configured"}
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest, dto.ErrorResponseDTO{Error: "Webhook verification failed"}
	case errors.Is(err, service.ErrInvalidPayload), errors.Is(err, service.ErrInvalidMetadata):
		return http.StatusBadRequest, dto.ErrorResponseDTO{Error: "Invalid webhook payload", Details: err.Error()}
	case errors.Is(err, service.ErrProfileNotFound):
		return http.StatusNotFound, dto.ErrorResponseDTO{Error: "Profile not found"}
	case errors.Is(err, service.ErrProviderUnavailable):
		return http.StatusBadGateway, dto.ErrorResponseDTO{Error: "Failed to fetch event details from Dodo Payments"}
	default:
		return http.StatusInternalServerError, dto.ErrorResponseDTO{Error: "Internal server error"}
	}
}
