package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sungwon/batch-messenger/internal/httpclient"
)

// Webhook hands messages to an HTTP messaging gateway that owns the live
// client connection.
type Webhook struct {
	baseURL string
	token   string
	client  httpclient.Doer
}

// NewWebhook creates a Webhook transport posting to baseURL.
func NewWebhook(baseURL, token string, client httpclient.Doer) *Webhook {
	return &Webhook{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

func (w *Webhook) Name() string { return "webhook" }

type webhookPayload struct {
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Number    string `json:"number"`
	Content   string `json:"content"`
	MediaURL  string `json:"mediaUrl,omitempty"`
}

type webhookResponse struct {
	MessageID string `json:"messageId"`
}

// Send posts the message to <base>/messages. The local message ID doubles
// as the idempotency key so a retried send is not delivered twice.
func (w *Webhook) Send(ctx context.Context, msg *Outbound) (*Result, error) {
	body, err := json.Marshal(webhookPayload{
		SessionID: msg.SessionID,
		MessageID: msg.MessageID,
		Number:    msg.Number,
		Content:   msg.Content,
		MediaURL:  msg.MediaURL,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: marshal request: %w", err)
	}

	resp, err := w.client.Do(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     w.baseURL + "/messages",
		Headers: w.headers(msg.MessageID),
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook: send request: %w", err)
	}
	if te := ClassifyHTTPError(w.Name(), resp.StatusCode, string(resp.Body)); te != nil {
		return nil, te
	}

	var out webhookResponse
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return nil, &Error{Transport: w.Name(), StatusCode: resp.StatusCode, Message: "decode response: " + err.Error(), Permanent: true}
		}
	}
	return &Result{ExternalID: out.MessageID, Timestamp: time.Now()}, nil
}

// HealthCheck expects 2xx from <base>/health.
func (w *Webhook) HealthCheck(ctx context.Context) error {
	resp, err := w.client.Do(ctx, &httpclient.Request{
		Method:  http.MethodGet,
		URL:     w.baseURL + "/health",
		Headers: w.headers(""),
	})
	if err != nil {
		return fmt.Errorf("webhook: health check: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("webhook: health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) headers(idempotencyKey string) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if w.token != "" {
		h["Authorization"] = "Bearer " + w.token
	}
	if idempotencyKey != "" {
		h["Idempotency-Key"] = idempotencyKey
	}
	return h
}
