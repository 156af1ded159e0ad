package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Stdout prints messages instead of delivering them. Development only.
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewStdout() *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) Name() string { return "stdout" }

func (s *Stdout) Send(_ context.Context, msg *Outbound) (*Result, error) {
	var b strings.Builder
	b.WriteString("--- stdout transport: message ---\n")
	fmt.Fprintf(&b, "ID:      %s\n", msg.MessageID)
	fmt.Fprintf(&b, "Session: %s\n", msg.SessionID)
	fmt.Fprintf(&b, "To:      %s\n", msg.Number)
	if msg.MediaURL != "" {
		fmt.Fprintf(&b, "Media:   %s\n", msg.MediaURL)
	}
	fmt.Fprintf(&b, "Content: %s\n", msg.Content)
	b.WriteString("--- end ---\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return nil, fmt.Errorf("stdout: write: %w", err)
	}
	return &Result{ExternalID: "stdout-" + msg.MessageID, Timestamp: time.Now()}, nil
}

func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
