package handler

import (
	"encoding/json"
	"net/http"

	"github.com/VmalRaj-Dev/limetto/internal/api/v1/dto"

	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, status int, msg string) {
	writeJSON(w, logger, status, dto.ErrorResponseDTO{Error: msg})
}
