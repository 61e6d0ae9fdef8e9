// internal/handler/dashboard_handler.go
package handler

import (
	"net/http"
	"strconv"
	"time"
)

func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Dashboard(r.Context(), h.RatePerSecond)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// History returns recent send outcomes, newest first. Default 50,
// capped at the store's retention window.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.Service.History(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  entries,
		"count": len(entries),
	})
}

// Realtime is the lightweight polling endpoint for live queue numbers.
func (h *Handler) Realtime(w http.ResponseWriter, r *http.Request) {
	stats := h.Service.QueueStats()

	var drainSeconds float64
	if h.RatePerSecond > 0 {
		drainSeconds = float64(stats.Waiting) / float64(h.RatePerSecond)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue":                   stats,
		"estimated_drain_seconds": drainSeconds,
		"time":                    time.Now().UTC().Format(time.RFC3339),
	})
}
