package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sungwon/batch-messenger/internal/httpclient"
)

type mockDoer struct {
	requests []*httpclient.Request
	resp     *httpclient.Response
	err      error
}

func (m *mockDoer) Do(_ context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	m.requests = append(m.requests, req)
	return m.resp, m.err
}

func testOutbound() *Outbound {
	return &Outbound{
		MessageID: "msg-1",
		SessionID: "sess-1",
		Number:    "1555000111",
		Content:   "Hello",
		MediaURL:  "https://cdn.test/a.png",
	}
}

func TestWebhook_Send(t *testing.T) {
	doer := &mockDoer{resp: &httpclient.Response{StatusCode: http.StatusCreated, Body: []byte(`{"messageId":"wamid.123"}`)}}
	w := NewWebhook("https://gateway.test/", "secret", doer)

	res, err := w.Send(context.Background(), testOutbound())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.ExternalID != "wamid.123" {
		t.Errorf("expected external id wamid.123, got %s", res.ExternalID)
	}

	req := doer.requests[0]
	if req.Method != http.MethodPost || req.URL != "https://gateway.test/messages" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL)
	}
	if req.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", req.Headers["Authorization"])
	}
	if req.Headers["Idempotency-Key"] != "msg-1" {
		t.Errorf("expected idempotency key msg-1, got %q", req.Headers["Idempotency-Key"])
	}

	var payload webhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if payload.Number != "1555000111" || payload.SessionID != "sess-1" || payload.MediaURL != "https://cdn.test/a.png" {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestWebhook_SendErrors(t *testing.T) {
	tests := []struct {
		name          string
		doer          *mockDoer
		wantPermanent bool
	}{
		{"rate limited", &mockDoer{resp: &httpclient.Response{StatusCode: 429, Body: []byte("slow down")}}, false},
		{"server error", &mockDoer{resp: &httpclient.Response{StatusCode: 503}}, false},
		{"invalid number", &mockDoer{resp: &httpclient.Response{StatusCode: 400, Body: []byte("Invalid number format")}}, true},
		{"forbidden", &mockDoer{resp: &httpclient.Response{StatusCode: 403}}, true},
		{"network", &mockDoer{err: errors.New("connection reset")}, false},
		{"bad json", &mockDoer{resp: &httpclient.Response{StatusCode: 200, Body: []byte("<html>")}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWebhook("https://gateway.test", "", tt.doer).Send(context.Background(), testOutbound())
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.wantPermanent {
				t.Errorf("expected permanent=%v, got %v (%v)", tt.wantPermanent, IsPermanent(err), err)
			}
			if IsTransient(err) == tt.wantPermanent {
				t.Errorf("expected transient=%v, got %v", !tt.wantPermanent, IsTransient(err))
			}
		})
	}
}

func TestWebhook_HealthCheck(t *testing.T) {
	ok := &mockDoer{resp: &httpclient.Response{StatusCode: 200}}
	if err := NewWebhook("https://gateway.test", "t", ok).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if ok.requests[0].URL != "https://gateway.test/health" {
		t.Errorf("unexpected health URL %s", ok.requests[0].URL)
	}

	down := &mockDoer{resp: &httpclient.Response{StatusCode: 502}}
	if err := NewWebhook("https://gateway.test", "t", down).HealthCheck(context.Background()); err == nil {
		t.Error("expected error for 502")
	}
}

func TestClassifyHTTPError(t *testing.T) {
	if ClassifyHTTPError("webhook", 204, "") != nil {
		t.Error("expected nil for 2xx")
	}
	if te := ClassifyHTTPError("webhook", 500, "Session logged out"); te == nil || !te.Permanent {
		t.Errorf("expected permanent 500 for logged out session, got %+v", te)
	}
	if te := ClassifyHTTPError("webhook", 400, "temporary glitch"); te == nil || te.Permanent {
		t.Errorf("expected transient plain 400, got %+v", te)
	}
}

func TestIsTransient_Cancelled(t *testing.T) {
	if IsTransient(fmt.Errorf("send: %w", context.Canceled)) {
		t.Error("expected cancellation not to be retried")
	}
	if IsTransient(nil) {
		t.Error("expected nil not to be transient")
	}
}

func TestStdout_Send(t *testing.T) {
	var buf bytes.Buffer
	s := &Stdout{writer: &buf}

	res, err := s.Send(context.Background(), testOutbound())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.ExternalID != "stdout-msg-1" {
		t.Errorf("unexpected external id %s", res.ExternalID)
	}
	if !strings.Contains(buf.String(), "To:      1555000111") {
		t.Errorf("expected recipient in output, got %s", buf.String())
	}
}

func TestFile_Send(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	f := NewFile(dir)

	if err := f.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if _, err := f.Send(context.Background(), testOutbound()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one file, got %d (%v)", len(entries), err)
	}
	if !strings.HasSuffix(entries[0].Name(), "_msg-1.json") {
		t.Errorf("unexpected file name %s", entries[0].Name())
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{Config{Type: "stdout"}, "stdout", false},
		{Config{}, "stdout", false},
		{Config{Type: "file", OutputDir: t.TempDir()}, "file", false},
		{Config{Type: "webhook", URL: "https://gateway.test"}, "webhook", false},
		{Config{Type: "webhook"}, "", true},
		{Config{Type: "carrier-pigeon"}, "", true},
	}

	for _, tt := range tests {
		tr, err := New(tt.cfg, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
			continue
		}
		if err == nil && tr.Name() != tt.wantName {
			t.Errorf("New(%+v) name = %s, want %s", tt.cfg, tr.Name(), tt.wantName)
		}
	}
}
