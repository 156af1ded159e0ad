package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sungwon/batch-messenger/internal/httpclient"
)

var (
	// ErrMediaFetch is returned when a remote media URL answers non-2xx.
	ErrMediaFetch = errors.New("media fetch failed")
	// ErrMediaProcessing wraps every failure of Resolve.
	ErrMediaProcessing = errors.New("media processing failed")
)

// Input is the inbound media reference of a dispatch request. At most one
// of Data and URL is expected; Data wins when both are set.
type Input struct {
	Data        []byte
	ContentType string
	URL         string
}

// Empty reports whether no media source was supplied.
func (in Input) Empty() bool {
	return len(in.Data) == 0 && strings.TrimSpace(in.URL) == ""
}

// Resolver normalizes inbound media to one stored URL.
type Resolver struct {
	store   Store
	fetcher httpclient.Doer
}

// NewResolver creates a Resolver uploading to store and fetching with fetcher.
func NewResolver(store Store, fetcher httpclient.Doer) *Resolver {
	return &Resolver{store: store, fetcher: fetcher}
}

// Resolve returns the canonical media URL for in, or "" when in is empty.
// Remote URLs are fetched and re-uploaded so stored references never point
// at third-party hosts. Uploaded and fetched bytes are typed by their
// content and must be an allowed media type. Errors wrap ErrMediaProcessing.
func (r *Resolver) Resolve(ctx context.Context, in Input) (string, error) {
	if in.Empty() {
		return "", nil
	}

	data, contentType := in.Data, in.ContentType
	if len(data) == 0 {
		var err error
		data, contentType, err = r.fetch(ctx, strings.TrimSpace(in.URL))
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrMediaProcessing, err)
		}
	}

	contentType = DetectType(data, contentType)
	if !Allowed(contentType) {
		return "", fmt.Errorf("%w: %w: %q", ErrMediaProcessing, ErrUnsupportedType, contentType)
	}

	publicID, err := r.store.Upload(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMediaProcessing, err)
	}
	return r.store.OptimizedURL(publicID), nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := r.fetcher.Do(ctx, &httpclient.Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if !resp.OK() {
		return nil, "", fmt.Errorf("%w: %s returned status %d", ErrMediaFetch, url, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, "", fmt.Errorf("%w: %s returned an empty body", ErrMediaFetch, url)
	}

	return resp.Body, resp.Headers["Content-Type"], nil
}
