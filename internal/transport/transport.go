// Package transport delivers individual outbound messages for a session.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/sungwon/batch-messenger/internal/httpclient"
)

// Transport sends one message to one recipient.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Outbound) (*Result, error)
	HealthCheck(ctx context.Context) error
}

// Outbound is a single send request.
type Outbound struct {
	MessageID string
	SessionID string
	Number    string
	Content   string
	MediaURL  string
}

// Result describes an accepted send.
type Result struct {
	ExternalID string
	Timestamp  time.Time
}

// Config selects and configures a Transport.
type Config struct {
	Type      string // "webhook", "stdout" or "file"
	URL       string
	Token     string
	Timeout   time.Duration
	OutputDir string
}

const defaultTimeout = 30 * time.Second

// New builds the Transport named by cfg.Type. The webhook transport uses
// client, or a default client when client is nil.
func New(cfg Config, client httpclient.Doer) (Transport, error) {
	switch cfg.Type {
	case "webhook":
		if cfg.URL == "" {
			return nil, fmt.Errorf("transport: webhook url is required")
		}
		if client == nil {
			timeout := cfg.Timeout
			if timeout == 0 {
				timeout = defaultTimeout
			}
			client = httpclient.New(timeout, 1<<20)
		}
		return NewWebhook(cfg.URL, cfg.Token, client), nil
	case "stdout", "":
		return NewStdout(), nil
	case "file":
		return NewFile(cfg.OutputDir), nil
	default:
		return nil, fmt.Errorf("transport: unsupported type %q", cfg.Type)
	}
}
