package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultOutputDir = "./outbox"

// File writes each message as a JSON document into a directory. Development only.
type File struct {
	outputDir string
}

// NewFile creates a File transport writing to dir, or ./outbox when empty.
func NewFile(dir string) *File {
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{outputDir: dir}
}

func (f *File) Name() string { return "file" }

// Send writes <timestamp>_<message-id>.json and reports success.
func (f *File) Send(_ context.Context, msg *Outbound) (*Result, error) {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("file: create output dir: %w", err)
	}

	now := time.Now()
	name := fmt.Sprintf("%s_%s.json", now.Format("20060102_150405"), strings.ReplaceAll(msg.MessageID, "/", "_"))
	path := filepath.Join(f.outputDir, name)

	data, err := json.MarshalIndent(webhookPayload{
		SessionID: msg.SessionID,
		MessageID: msg.MessageID,
		Number:    msg.Number,
		Content:   msg.Content,
		MediaURL:  msg.MediaURL,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("file: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return nil, fmt.Errorf("file: write %s: %w", path, err)
	}
	return &Result{ExternalID: "file-" + msg.MessageID, Timestamp: now}, nil
}

// HealthCheck verifies the output directory is writable.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	return nil
}
