package handler

import (
	"net/http"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/api/v1/dto"
	"github.com/VmalRaj-Dev/limetto/internal/service"

	"github.com/rs/zerolog"
)

// JobHandler exposes the scheduled jobs to Cloud Scheduler.
type JobHandler struct {
	trialSvc service.TrialService
	now      func() time.Time
	logger   zerolog.Logger
}

func NewJobHandler(trialSvc service.TrialService, logger zerolog.Logger) *JobHandler {
	return &JobHandler{trialSvc: trialSvc, now: time.Now, logger: logger}
}

// RegisterRoutes mounts the job endpoints behind the scheduler middleware.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux, schedulerMw func(http.Handler) http.Handler) {
	mux.Handle("/cron/update-trials", schedulerMw(http.HandlerFunc(h.UpdateTrials)))
	mux.Handle("/email/payment-reminders", schedulerMw(http.HandlerFunc(h.PaymentReminders)))
}

// UpdateTrials godoc
// @Summary Expire ended trials
// @Description Moves every profile whose trial has ended to trial_ended.
// @Tags jobs
// @Produce json
// @Success 200 {object} dto.JobResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {object} dto.JobResponseDTO
// @Router /cron/update-trials [get]
func (h *JobHandler) UpdateTrials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := h.trialSvc.ExpireTrials(r.Context(), h.now().UTC())
	if err != nil {
		writeJSON(w, h.logger, http.StatusInternalServerError, dto.JobResponseDTO{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dto.JobResponseDTO{Success: true, Updated: &n})
}

// PaymentReminders godoc
// @Summary Send payment reminders
// @Description Publishes a payment reminder for every active subscriber billed tomorrow (UTC).
// @Tags jobs
// @Produce json
// @Success 200 {object} dto.JobResponseDTO
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {object} dto.JobResponseDTO
// @Router /email/payment-reminders [post]
func (h *JobHandler) PaymentReminders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.logger, http.StatusOK, dto.JobResponseDTO{
			Success: true,
			Message: "Payment reminders endpoint is active. Send a POST request to run the job.",
		})
	case http.MethodPost:
		sent, err := h.trialSvc.SendPaymentReminders(r.Context(), h.now().UTC())
		if err != nil {
			h.logger.Error().Err(err).Msg("payment reminder job failed")
			writeJSON(w, h.logger, http.StatusInternalServerError, dto.JobResponseDTO{Success: false, Error: err.Error()})
			return
		}
		writeJSON(w, h.logger, http.StatusOK, dto.JobResponseDTO{
			Success: true,
			Sent:    &sent,
			Message: "Payment reminders processed successfully",
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
