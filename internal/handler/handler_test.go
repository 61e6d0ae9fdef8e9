package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapblast/zapblast-backend/internal/handler"
	"github.com/zapblast/zapblast-backend/internal/model"
	"github.com/zapblast/zapblast-backend/internal/provider"
	"github.com/zapblast/zapblast-backend/internal/queue"
	"github.com/zapblast/zapblast-backend/internal/service"
	"github.com/zapblast/zapblast-backend/internal/store"
)

func setupAPI(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedisStoreFromClient(client)

	sender := provider.NewMock(0, 0)
	q := queue.NewDispatchQueue(queue.Config{
		RatePerSecond: 1000,
		Concurrency:   4,
		BackoffBase:   5 * time.Millisecond,
	}, sender, st, zerolog.Nop())

	svc := service.NewCampaignService(service.Config{}, st, q, sender, zerolog.Nop())
	svc.Start(context.Background())
	q.SetOnTerminal(svc.OnTerminal)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(q.Stop)
	t.Cleanup(svc.Stop)

	h := &handler.Handler{
		Service:       svc,
		Store:         st,
		Sender:        sender,
		RatePerSecond: 1000,
		Log:           zerolog.Nop(),
	}
	return h.Router(), st
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(into))
}

func TestCreateCampaignJSON(t *testing.T) {
	router, _ := setupAPI(t)

	w := postJSON(t, router, "/campaigns", map[string]interface{}{
		"name":    "Promo",
		"message": "Hi {name}",
		"contacts": []map[string]string{
			{"name": "Ana", "phone": "11999999999"},
			{"phone": "invalidphone"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		Campaign struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"campaign"`
		ValidContacts   int `json:"valid_contacts"`
		InvalidContacts int `json:"invalid_contacts"`
	}
	decode(t, w, &res)
	assert.True(t, strings.HasPrefix(res.Campaign.ID, "camp_"))
	assert.Equal(t, 1, res.ValidContacts)
	assert.Equal(t, 1, res.InvalidContacts)
	assert.Equal(t, model.StatusProcessing, res.Campaign.Status)
}

func TestCreateCampaignRejectsBadInput(t *testing.T) {
	router, _ := setupAPI(t)

	w := postJSON(t, router, "/campaigns", map[string]interface{}{
		"name":     "",
		"message":  "Hi",
		"contacts": []map[string]string{{"phone": "11999999999"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, router, "/campaigns", map[string]interface{}{
		"name":          "Promo",
		"message":       "Hi",
		"contacts":      []map[string]string{{"phone": "11999999999"}},
		"schedule_date": "not-a-date",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCampaignFromCSV(t *testing.T) {
	router, _ := setupAPI(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("name", "CSV Promo"))
	require.NoError(t, form.WriteField("message", "Oi {nome}"))
	part, err := form.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("nome,telefone,email\nAna,11999999999,ana@example.com\n,notaphone,\n"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/campaigns", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		ValidContacts   int `json:"valid_contacts"`
		InvalidContacts int `json:"invalid_contacts"`
	}
	decode(t, w, &res)
	assert.Equal(t, 1, res.ValidContacts)
	assert.Equal(t, 1, res.InvalidContacts)
}

func TestListAndGetCampaign(t *testing.T) {
	router, _ := setupAPI(t)

	w := postJSON(t, router, "/campaigns", map[string]interface{}{
		"name":     "Promo",
		"message":  "Hi",
		"contacts": []map[string]string{{"phone": "11999999999"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Campaign struct {
			ID string `json:"id"`
		} `json:"campaign"`
	}
	decode(t, w, &created)

	req := httptest.NewRequest(http.MethodGet, "/campaigns", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	req = httptest.NewRequest(http.MethodGet, "/campaigns/"+created.Campaign.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Campaign struct {
			Name string `json:"name"`
		} `json:"campaign"`
		Stats struct {
			Total int `json:"total"`
		} `json:"stats"`
	}
	decode(t, rec, &detail)
	assert.Equal(t, "Promo", detail.Campaign.Name)

	req = httptest.NewRequest(http.MethodGet, "/campaigns/camp_missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleCampaign(t *testing.T) {
	router, _ := setupAPI(t)

	w := postJSON(t, router, "/campaigns", map[string]interface{}{
		"name":     "Promo",
		"message":  "Hi",
		"contacts": []map[string]string{{"phone": "11999999999"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Campaign struct {
			ID string `json:"id"`
		} `json:"campaign"`
	}
	decode(t, w, &created)

	req := httptest.NewRequest(http.MethodPut, "/campaigns/"+created.Campaign.ID+"/toggle", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled struct {
		Status string `json:"status"`
	}
	decode(t, rec, &toggled)
	assert.Equal(t, model.StatusPaused, toggled.Status)

	req = httptest.NewRequest(http.MethodPut, "/campaigns/camp_missing/toggle", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidateContact(t *testing.T) {
	router, _ := setupAPI(t)

	w := postJSON(t, router, "/contacts/validate", map[string]string{"phone": "11999999999"})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		IsValid   bool   `json:"is_valid"`
		Canonical string `json:"canonical"`
		Formatted string `json:"formatted"`
	}
	decode(t, w, &res)
	assert.True(t, res.IsValid)
	assert.Equal(t, "5511999999999", res.Canonical)
	assert.Equal(t, "+55 (11) 99999-9999", res.Formatted)

	w = postJSON(t, router, "/contacts/validate", map[string]string{"phone": "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.False(t, res.IsValid)
}

func TestValidateContactBatch(t *testing.T) {
	router, _ := setupAPI(t)

	w := postJSON(t, router, "/contacts/validate-batch", map[string]interface{}{
		"contacts": []map[string]string{
			{"name": "Ana", "phone": "11999999999"},
			{"phone": "nope"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Valid   int `json:"valid"`
		Invalid int `json:"invalid"`
	}
	decode(t, w, &res)
	assert.Equal(t, 1, res.Valid)
	assert.Equal(t, 1, res.Invalid)
}

func TestTestMessage(t *testing.T) {
	router, _ := setupAPI(t)

	w := postJSON(t, router, "/contacts/test", map[string]string{
		"phone":   "11999999999",
		"message": "hello",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		DeliveryID string `json:"delivery_id"`
		Phone      string `json:"phone"`
	}
	decode(t, w, &res)
	assert.True(t, strings.HasPrefix(res.DeliveryID, "demo_"))
	assert.Equal(t, "5511999999999", res.Phone)

	w = postJSON(t, router, "/contacts/test", map[string]string{
		"phone":   "abc",
		"message": "hello",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCSVTemplate(t *testing.T) {
	router, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/contacts/csv-template", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "name,phone,email\n"))
}

func TestDashboardEndpoints(t *testing.T) {
	router, _ := setupAPI(t)

	postJSON(t, router, "/campaigns", map[string]interface{}{
		"name":     "Promo",
		"message":  "Hi",
		"contacts": []map[string]string{{"phone": "11999999999"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Campaigns struct {
			Total int `json:"total"`
		} `json:"campaigns"`
		System struct {
			MessagesPerSecond int `json:"messages_per_second"`
		} `json:"system"`
	}
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.Campaigns.Total)
	assert.Equal(t, 1000, stats.System.MessagesPerSecond)

	req = httptest.NewRequest(http.MethodGet, "/dashboard/realtime", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/dashboard/history?limit=5", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	router, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Status string `json:"status"`
	}
	decode(t, w, &res)
	assert.Equal(t, "ok", res.Status)
}

func TestProviderStatusPlainSender(t *testing.T) {
	router, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/providers/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Provider string `json:"provider"`
		State    string `json:"state"`
	}
	decode(t, w, &res)
	assert.Equal(t, "mock", res.Provider)
	assert.Equal(t, "ready", res.State)
}

// statusSender fakes a provider with a queryable instance.
type statusSender struct {
	info *provider.StatusInfo
	err  error
}

func (s *statusSender) Name() string { return "evolution" }

func (s *statusSender) Send(ctx context.Context, phone, text string) (string, error) {
	return "id", nil
}

func (s *statusSender) InstanceStatus(ctx context.Context) (*provider.StatusInfo, error) {
	return s.info, s.err
}

func TestProviderStatusReportsInstanceState(t *testing.T) {
	h := &handler.Handler{
		Sender: &statusSender{info: &provider.StatusInfo{Instance: "bulk_sender", State: "open"}},
		Log:    zerolog.Nop(),
	}

	req := httptest.NewRequest(http.MethodGet, "/providers/status", nil)
	w := httptest.NewRecorder()
	h.ProviderStatus(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Provider string `json:"provider"`
		State    string `json:"state"`
		Instance string `json:"instance"`
	}
	decode(t, w, &res)
	assert.Equal(t, "evolution", res.Provider)
	assert.Equal(t, "open", res.State)
	assert.Equal(t, "bulk_sender", res.Instance)
}

func TestProviderStatusUnreachableInstance(t *testing.T) {
	h := &handler.Handler{
		Sender: &statusSender{err: assert.AnError},
		Log:    zerolog.Nop(),
	}

	req := httptest.NewRequest(http.MethodGet, "/providers/status", nil)
	w := httptest.NewRecorder()
	h.ProviderStatus(w, req)
	require.Equal(t, http.StatusBadGateway, w.Code)
	var res struct {
		State string `json:"state"`
	}
	decode(t, w, &res)
	assert.Equal(t, "unreachable", res.State)
}

func TestParseContactsCSV(t *testing.T) {
	contacts, err := handler.ParseContactsCSV(strings.NewReader(
		"Nome,Telefone,Email\nAna,11999999999,ana@example.com\nBeto,11888888888,\n"))
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Ana", contacts[0].Name)
	assert.Equal(t, "11999999999", contacts[0].Phone)
	assert.Equal(t, "ana@example.com", contacts[0].Email)

	_, err = handler.ParseContactsCSV(strings.NewReader("name,email\nAna,a@b.c\n"))
	require.Error(t, err)

	_, err = handler.ParseContactsCSV(strings.NewReader(""))
	require.Error(t, err)
}
