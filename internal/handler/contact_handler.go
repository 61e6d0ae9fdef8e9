// internal/handler/contact_handler.go
package handler

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	appErrors "github.com/zapblast/zapblast-backend/internal/errors"
	"github.com/zapblast/zapblast-backend/internal/model"
	"github.com/zapblast/zapblast-backend/internal/phone"
	"github.com/zapblast/zapblast-backend/internal/service"
)

// ValidateContact checks a single phone number.
func (h *Handler) ValidateContact(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, appErrors.NewValidation("invalid request body: %v", err))
		return
	}

	canonical, err := phone.Normalize(payload.Phone)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"phone":    payload.Phone,
			"is_valid": false,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"phone":     payload.Phone,
		"is_valid":  true,
		"canonical": canonical,
		"formatted": phone.Format(canonical),
	})
}

// ValidateContactBatch normalizes a contact list without creating a
// campaign, so uploads can be checked ahead of time.
func (h *Handler) ValidateContactBatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Contacts []model.Contact `json:"contacts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, appErrors.NewValidation("invalid request body: %v", err))
		return
	}

	results := service.ValidateContacts(payload.Contacts)
	valid := 0
	for _, res := range results {
		if res.IsValid {
			valid++
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"valid":   valid,
		"invalid": len(results) - valid,
	})
}

// TestMessage sends one message directly through the provider.
func (h *Handler) TestMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, appErrors.NewValidation("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		respondError(w, appErrors.NewValidation("message is required"))
		return
	}

	deliveryID, canonical, err := h.Service.TestSend(r.Context(), payload.Phone, payload.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"delivery_id": deliveryID,
		"phone":       canonical,
		"status":      "sent",
	})
}

// CSVTemplate serves a downloadable example of the expected upload format.
func (h *Handler) CSVTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="contacts_template.csv"`)
	io.WriteString(w, "name,phone,email\nMaria Silva,11999999999,maria@example.com\nJoao Santos,11888888888,\n")
}

// csv column aliases, lowercase. Accents stripped by the uploader is not
// assumed; both pt-BR and english headers are accepted.
var csvColumns = map[string]string{
	"name":     "name",
	"nome":     "name",
	"phone":    "phone",
	"telefone": "phone",
	"celular":  "phone",
	"whatsapp": "phone",
	"email":    "email",
	"e-mail":   "email",
}

// ParseContactsCSV reads an uploaded contact list. The first row must be
// a header; unknown columns are ignored and a phone column is required.
func ParseContactsCSV(r io.Reader) ([]model.Contact, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.NewValidation("empty or unreadable csv: %v", err)
	}

	fields := map[int]string{}
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if mapped, ok := csvColumns[key]; ok {
			fields[i] = mapped
		}
	}
	hasPhone := false
	for _, f := range fields {
		if f == "phone" {
			hasPhone = true
		}
	}
	if !hasPhone {
		return nil, appErrors.NewValidation("csv is missing a phone column (phone/telefone/celular/whatsapp)")
	}

	var contacts []model.Contact
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.NewValidation("malformed csv row: %v", err)
		}

		var c model.Contact
		for i, value := range row {
			switch fields[i] {
			case "name":
				c.Name = strings.TrimSpace(value)
			case "phone":
				c.Phone = strings.TrimSpace(value)
			case "email":
				c.Email = strings.TrimSpace(value)
			}
		}
		if c.Phone == "" && c.Name == "" && c.Email == "" {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}
