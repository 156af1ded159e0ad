// Package media turns inbound media (uploaded bytes or a remote URL) into a
// canonical URL served from the service's own media storage.
package media

import (
	"context"
	"mime"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store persists media bytes and derives delivery URLs for them.
type Store interface {
	// Upload stores data and returns its public ID.
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	// OptimizedURL returns the delivery URL for a public ID.
	OptimizedURL(publicID string) string
}

// Config holds configuration for creating a Store.
type Config struct {
	Type          string // "local" or "s3"
	Path          string
	PublicBaseURL string
	S3Bucket      string
	S3Prefix      string
	S3Endpoint    string
	S3Region      string
}

// New creates a Store from cfg. Unknown types fall back to local storage.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	case "local":
		return NewLocalStore(cfg.Path, cfg.PublicBaseURL)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty media store type, defaulting to local")
		return NewLocalStore(cfg.Path, cfg.PublicBaseURL)
	}
}

// newPublicID returns a random object name carrying an extension for
// contentType, e.g. "3f1c...e2.png".
func newPublicID(contentType string) string {
	id := uuid.NewString()
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return id
	}
	if ext := allowedTypes[mediaType]; ext != "" {
		return id + ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return id + exts[0]
	}
	return id
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(name, "/")
}
