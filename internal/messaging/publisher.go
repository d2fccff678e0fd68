package messaging

import (
	"context"

	"github.com/boosterlab/packdrop/internal/domain"
)

// Publisher defines the interface for publishing claim events
type Publisher interface {
	// PublishClaim publishes a successful claim to downstream consumers
	PublishClaim(ctx context.Context, event *domain.ClaimEvent) error
	// Close closes the underlying connection
	Close()
}

// NoopPublisher discards every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishClaim(ctx context.Context, event *domain.ClaimEvent) error {
	return nil
}

func (NoopPublisher) Close() {}
