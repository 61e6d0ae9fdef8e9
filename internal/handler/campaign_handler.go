// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/zapblast/zapblast-backend/internal/errors"
	"github.com/zapblast/zapblast-backend/internal/model"
)

// CreateCampaign accepts either a JSON body with an inline contact list
// or a multipart form with a CSV file field named "file".
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		h.createFromCSV(w, r)
		return
	}

	var payload struct {
		Name         string          `json:"name"`
		Message      string          `json:"message"`
		Contacts     []model.Contact `json:"contacts"`
		ScheduleDate *string         `json:"schedule_date,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, appErrors.NewValidation("invalid request body: %v", err))
		return
	}

	schedule, err := parseScheduleDate(payload.ScheduleDate)
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := h.Service.Create(r.Context(), payload.Name, payload.Message, payload.Contacts, schedule)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) createFromCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, appErrors.NewValidation("invalid multipart form: %v", err))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, appErrors.NewValidation("missing csv file field \"file\""))
		return
	}
	defer file.Close()

	contacts, err := ParseContactsCSV(file)
	if err != nil {
		respondError(w, err)
		return
	}

	schedule, err := parseScheduleDate(optionalFormValue(r, "schedule_date"))
	if err != nil {
		respondError(w, err)
		return
	}

	result, err := h.Service.Create(r.Context(),
		r.FormValue("name"), r.FormValue("message"), contacts, schedule)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Service.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  campaigns,
		"total": len(campaigns),
	})
}

func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Service.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) ToggleCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.Service.Toggle(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": status,
	})
}

func parseScheduleDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, appErrors.NewValidation("invalid schedule_date, want RFC3339: %v", err)
	}
	return &t, nil
}

func optionalFormValue(r *http.Request, key string) *string {
	v := r.FormValue(key)
	if v == "" {
		return nil
	}
	return &v
}
