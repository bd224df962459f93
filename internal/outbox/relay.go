package outbox

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

type Source interface {
	FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Relay moves committed outbox events to the broker.
// Delivery is at-least-once: an event published but not marked sent is published again.
type Relay struct {
	source    Source
	publisher Publisher
	batchSize int
	logger    *zap.Logger
}

func NewRelay(source Source, publisher Publisher, batchSize int) *Relay {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Relay{
		source:    source,
		publisher: publisher,
		batchSize: batchSize,
		logger:    util.Component("outbox-relay"),
	}
}

// RelayBatch publishes one batch in id order and returns how many events were sent.
// It stops at the first publish failure so later events never overtake earlier ones.
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "Relay.RelayBatch")
	var err error
	defer func() { util.EndSpan(span, err) }()

	events, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range events {
		if err = r.publisher.Publish(ctx, e.Topic, e.Key, e.Payload); err != nil {
			util.OutboxPublishFailedTotal.Inc()
			r.logger.Error("Failed to publish outbox event",
				zap.Int64("outbox_id", e.ID),
				zap.String("event_id", e.EventID),
				zap.Error(err),
			)
			err = fmt.Errorf("publish outbox event %d: %w", e.ID, err)
			return sent, err
		}
		if err = r.source.MarkSent(ctx, e.ID); err != nil {
			return sent, err
		}
		util.OutboxPublishedTotal.Inc()
		sent++
	}

	if sent > 0 {
		r.logger.Debug("Relayed outbox events", zap.Int("count", sent))
	}
	return sent, nil
}
