package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/technosupport/roomview/internal/live"
)

type TelemetryHandler struct {
	Telemetry *live.TelemetryService
}

func NewTelemetryHandler(tel *live.TelemetryService) *TelemetryHandler {
	return &TelemetryHandler{Telemetry: tel}
}

// POST /api/v1/telemetry
func (h *TelemetryHandler) Record(w http.ResponseWriter, r *http.Request) {
	var evt live.TelemetryEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&evt); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	err := h.Telemetry.RecordEvent(r.Context(), &evt)
	switch {
	case errors.Is(err, live.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}
