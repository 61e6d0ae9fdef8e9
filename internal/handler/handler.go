// internal/handler/handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	appErrors "github.com/zapblast/zapblast-backend/internal/errors"
	"github.com/zapblast/zapblast-backend/internal/provider"
	"github.com/zapblast/zapblast-backend/internal/service"
	"github.com/zapblast/zapblast-backend/internal/store"
)

// Handler wires the HTTP surface to the campaign service.
type Handler struct {
	Service *service.CampaignService
	Store   store.Store
	Sender  provider.Sender
	// RatePerSecond is reported on the dashboard and used for drain
	// estimates; it mirrors the dispatch queue's configured rate.
	RatePerSecond int
	Log           zerolog.Logger
}

// Router builds the chi router with all API routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", h.CreateCampaign)
		r.Get("/", h.ListCampaigns)
		r.Get("/{id}", h.GetCampaign)
		r.Put("/{id}/toggle", h.ToggleCampaign)
	})

	r.Route("/contacts", func(r chi.Router) {
		r.Post("/validate", h.ValidateContact)
		r.Post("/validate-batch", h.ValidateContactBatch)
		r.Post("/test", h.TestMessage)
		r.Get("/csv-template", h.CSVTemplate)
	})

	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/stats", h.DashboardStats)
		r.Get("/history", h.History)
		r.Get("/realtime", h.Realtime)
	})

	r.Get("/providers/status", h.ProviderStatus)
	r.Get("/health", h.Health)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps domain errors to HTTP statuses; anything unknown is
// a 500 with the error text.
func respondError(w http.ResponseWriter, err error) {
	var nf *appErrors.ErrCampaignNotFound
	var ve *appErrors.ErrValidation
	switch {
	case errors.As(err, &nf):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// instanceStatuser is implemented by providers that can report the
// connection state of their backing instance.
type instanceStatuser interface {
	InstanceStatus(ctx context.Context) (*provider.StatusInfo, error)
}

// ProviderStatus reports which provider is configured and, when the
// provider exposes one, the connection state of its instance.
func (h *Handler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"provider": h.Sender.Name()}

	sr, ok := h.Sender.(instanceStatuser)
	if !ok {
		resp["state"] = "ready"
		respondJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	info, err := sr.InstanceStatus(ctx)
	if err != nil {
		resp["state"] = "unreachable"
		resp["error"] = err.Error()
		respondJSON(w, http.StatusBadGateway, resp)
		return
	}
	resp["state"] = info.State
	resp["instance"] = info.Instance
	respondJSON(w, http.StatusOK, resp)
}

// Health reports liveness of the process and its store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	storeStatus := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(ctx); err != nil {
		status = "degraded"
		storeStatus = err.Error()
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"store":  storeStatus,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
