// internal/provider/cloudapi.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const graphAPIBase = "https://graph.facebook.com/v18.0"

// CloudAPI sends text messages through the WhatsApp Business Cloud API.
type CloudAPI struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	Client        *http.Client
}

func NewCloudAPI(accessToken, phoneNumberID string) *CloudAPI {
	return &CloudAPI{
		AccessToken:   accessToken,
		PhoneNumberID: phoneNumberID,
		BaseURL:       graphAPIBase,
		Client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CloudAPI) Name() string { return "cloud" }

type cloudSendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             cloudTextBody `json:"text"`
}

type cloudTextBody struct {
	Body string `json:"body"`
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *CloudAPI) Send(ctx context.Context, phone, text string) (string, error) {
	body := cloudSendRequest{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text:             cloudTextBody{Body: text},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", NewSendError(KindTransport, "encode payload: %v", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", NewSendError(KindTransport, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", NewSendError(KindTransport, "cloud api request: %v", err)
	}
	defer resp.Body.Close()

	var out cloudSendResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil && resp.StatusCode < 300 {
		return "", NewSendError(KindTransport, "decode response: %v", decodeErr)
	}

	if resp.StatusCode >= 300 {
		detail := ""
		if out.Error != nil {
			detail = out.Error.Message
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return "", NewSendError(KindRateLimited, "status %d: %s", resp.StatusCode, detail)
		case resp.StatusCode == http.StatusBadRequest:
			return "", NewSendError(KindInvalidRecipient, "status %d: %s", resp.StatusCode, detail)
		case resp.StatusCode >= 500:
			return "", NewSendError(KindUnavailable, "status %d: %s", resp.StatusCode, detail)
		default:
			return "", NewSendError(KindTransport, "status %d: %s", resp.StatusCode, detail)
		}
	}

	if len(out.Messages) == 0 {
		return "", NewSendError(KindTransport, "response carried no message id")
	}
	return out.Messages[0].ID, nil
}
