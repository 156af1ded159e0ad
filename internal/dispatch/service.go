package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/sungwon/batch-messenger/internal/media"
)

// MediaResolver turns an inbound media reference into a stored URL.
type MediaResolver interface {
	Resolve(ctx context.Context, in media.Input) (string, error)
}

// Service runs the accept path of a batch: validate, check the session,
// resolve media, persist, dispatch.
type Service struct {
	builder     *Builder
	resolver    MediaResolver
	coordinator *Coordinator
}

func NewService(builder *Builder, resolver MediaResolver, coordinator *Coordinator) *Service {
	return &Service{builder: builder, resolver: resolver, coordinator: coordinator}
}

// Submit accepts a batch for userID. Media in overrides req.MediaURL; a
// resolved media URL is shared by every message of the batch.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, req Request, in media.Input) (Accepted, error) {
	req, err := Normalize(req)
	if err != nil {
		return Accepted{}, err
	}

	target, err := s.builder.Session(ctx, userID)
	if err != nil {
		return Accepted{}, err
	}

	if in.Empty() {
		in.URL = req.MediaURL
	}
	req.MediaURL, err = s.resolver.Resolve(ctx, in)
	if err != nil {
		return Accepted{}, err
	}

	batch, err := s.builder.Build(ctx, target, req)
	if err != nil {
		return Accepted{}, err
	}
	return s.coordinator.Dispatch(ctx, batch), nil
}
