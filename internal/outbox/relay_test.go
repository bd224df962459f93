package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pending  []models.OutboxEvent
	sent     []int64
	fetchErr error
	markErr  error
	limits   []int
}

func (f *fakeSource) FetchPending(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	f.limits = append(f.limits, limit)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.OutboxEvent
	for _, e := range f.pending {
		if e.SentAt == nil && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) MarkSent(_ context.Context, id int64) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.sent = append(f.sent, id)
	for i := range f.pending {
		if f.pending[i].ID == id {
			now := time.Now()
			f.pending[i].SentAt = &now
		}
	}
	return nil
}

type published struct {
	topic, key, payload string
}

type fakePublisher struct {
	messages []published
	failOn   string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	if f.err != nil && key == f.failOn {
		return f.err
	}
	f.messages = append(f.messages, published{topic, key, string(payload)})
	return nil
}

func pendingEvents(keys ...string) []models.OutboxEvent {
	events := make([]models.OutboxEvent, len(keys))
	for i, key := range keys {
		events[i] = models.OutboxEvent{
			ID:      int64(i + 1),
			EventID: "event-" + key,
			Topic:   "order-events",
			Key:     key,
			Payload: []byte(`{"event_type":"ORDER_PLACED"}`),
		}
	}
	return events
}

func TestRelay_PublishesInOrderAndMarksSent(t *testing.T) {
	source := &fakeSource{pending: pendingEvents("order-1", "order-2", "order-1")}
	publisher := &fakePublisher{}
	relay := NewRelay(source, publisher, 10)

	sent, err := relay.RelayBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []int64{1, 2, 3}, source.sent)
	require.Len(t, publisher.messages, 3)
	assert.Equal(t, published{"order-events", "order-1", `{"event_type":"ORDER_PLACED"}`}, publisher.messages[0])
	assert.Equal(t, "order-2", publisher.messages[1].key)

	sent, err = relay.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent, "sent events are not relayed twice")
}

func TestRelay_RespectsBatchSize(t *testing.T) {
	source := &fakeSource{pending: pendingEvents("a", "b", "c")}
	relay := NewRelay(source, &fakePublisher{}, 2)

	sent, err := relay.RelayBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []int{2}, source.limits)
}

func TestRelay_DefaultBatchSize(t *testing.T) {
	source := &fakeSource{}
	relay := NewRelay(source, &fakePublisher{}, 0)

	_, err := relay.RelayBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{100}, source.limits)
}

func TestRelay_StopsAtFirstPublishFailure(t *testing.T) {
	source := &fakeSource{pending: pendingEvents("a", "b", "c")}
	boom := errors.New("broker unavailable")
	publisher := &fakePublisher{failOn: "b", err: boom}
	relay := NewRelay(source, publisher, 10)

	sent, err := relay.RelayBatch(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, source.sent, "later events must wait for the failed one")

	publisher.err = nil
	sent, err = relay.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 2, 3}, source.sent)
}

func TestRelay_SourceErrors(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("fetch", func(t *testing.T) {
		relay := NewRelay(&fakeSource{fetchErr: boom}, &fakePublisher{}, 10)
		_, err := relay.RelayBatch(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("mark sent", func(t *testing.T) {
		publisher := &fakePublisher{}
		relay := NewRelay(&fakeSource{pending: pendingEvents("a", "b"), markErr: boom}, publisher, 10)
		sent, err := relay.RelayBatch(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, sent)
		assert.Len(t, publisher.messages, 1, "the unmarked event will be published again")
	})
}
