package service

import (
	"context"
	"time"

	"github.com/libraryops/patron-blocks/internal/models"
)

// EventPublisher publishes block events.
type EventPublisher interface {
	PublishBlockExpired(ctx context.Context, event *models.BlockExpiredEvent) error
}

// ExpiryNotifier turns removed blocks into block expired events.
type ExpiryNotifier struct {
	publisher EventPublisher
	now       func() time.Time
}

// NewExpiryNotifier creates an ExpiryNotifier.
func NewExpiryNotifier(publisher EventPublisher) *ExpiryNotifier {
	return &ExpiryNotifier{publisher: publisher, now: time.Now}
}

// BlockExpired publishes the event for b.
func (n *ExpiryNotifier) BlockExpired(ctx context.Context, b models.Block, source string) error {
	event := &models.BlockExpiredEvent{
		BlockID:   b.ID,
		PatronID:  b.PatronID,
		Type:      b.Type,
		RemovedAt: n.now().UTC(),
		Source:    source,
	}
	if b.ExpiresAt != nil {
		event.ExpirationDate = *b.ExpiresAt
	}
	return n.publisher.PublishBlockExpired(ctx, event)
}
