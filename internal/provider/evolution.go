// internal/provider/evolution.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Evolution sends text messages through an Evolution API instance.
type Evolution struct {
	BaseURL  string
	APIKey   string
	Instance string
	Client   *http.Client
}

func NewEvolution(baseURL, apiKey, instance string) *Evolution {
	return &Evolution{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Instance: instance,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *Evolution) Name() string { return "evolution" }

type evolutionSendRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type evolutionSendResponse struct {
	MessageID string `json:"messageId"`
}

func (e *Evolution) Send(ctx context.Context, phone, text string) (string, error) {
	payload, err := json.Marshal(evolutionSendRequest{Number: phone, Text: text})
	if err != nil {
		return "", NewSendError(KindTransport, "encode payload: %v", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", e.BaseURL, e.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", NewSendError(KindTransport, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.APIKey)

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", NewSendError(KindTransport, "evolution request: %v", err)
	}
	defer resp.Body.Close()

	if err := classifyHTTP(resp); err != nil {
		return "", err
	}

	var out evolutionSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewSendError(KindTransport, "decode response: %v", err)
	}
	if out.MessageID == "" {
		// Some Evolution builds omit the id on success.
		out.MessageID = "evo_" + uuid.NewString()
	}
	return out.MessageID, nil
}

// StatusInfo describes the connection state of the Evolution instance.
type StatusInfo struct {
	Instance string `json:"instance"`
	State    string `json:"state"`
}

// InstanceStatus queries the connection state of the configured instance.
func (e *Evolution) InstanceStatus(ctx context.Context) (*StatusInfo, error) {
	url := fmt.Sprintf("%s/instance/status/%s", e.BaseURL, e.Instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", e.APIKey)

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("evolution status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			Status       string `json:"status"`
		} `json:"instance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &StatusInfo{Instance: out.Instance.InstanceName, State: out.Instance.Status}, nil
}

func classifyHTTP(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewSendError(KindRateLimited, "status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewSendError(KindInvalidRecipient, "status %d: %s", resp.StatusCode, body)
	case resp.StatusCode >= 500:
		return NewSendError(KindUnavailable, "status %d", resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewSendError(KindTransport, "status %d: %s", resp.StatusCode, body)
	}
}
