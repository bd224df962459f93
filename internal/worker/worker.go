package worker

import (
	"context"
	"time"

	"storefront/internal/broker"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const (
	relayLockKey = "outbox-relay"
	// upper bound on batches drained per tick so one tick never starves shutdown
	maxBatchesPerTick = 10
)

// Locker elects a single relaying replica
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

type BatchRelayer interface {
	RelayBatch(ctx context.Context) (int, error)
}

// OutboxRelayWorker periodically publishes committed outbox events
type OutboxRelayWorker struct {
	relay    BatchRelayer
	locker   Locker
	interval time.Duration
	logger   *zap.Logger
}

// NewOutboxRelayWorker creates a relay worker. A nil locker relays on every tick.
func NewOutboxRelayWorker(relay BatchRelayer, locker Locker, interval time.Duration) *OutboxRelayWorker {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelayWorker{
		relay:    relay,
		locker:   locker,
		interval: interval,
		logger:   util.Component("outbox-relay-worker"),
	}
}

// Start relays until ctx is cancelled
func (w *OutboxRelayWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting outbox relay worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping outbox relay worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *OutboxRelayWorker) tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.AcquireLock(ctx, relayLockKey, w.lockTTL())
		if err != nil {
			w.logger.Warn("Failed to acquire relay lock, skipping tick", zap.Error(err))
			return
		}
		if token == "" {
			return
		}
		defer func() {
			if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), relayLockKey, token); err != nil {
				w.logger.Warn("Failed to release relay lock", zap.Error(err))
			}
		}()
	}

	for i := 0; i < maxBatchesPerTick && ctx.Err() == nil; i++ {
		sent, err := w.relay.RelayBatch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("Outbox relay failed", zap.Error(err))
			}
			return
		}
		if sent == 0 {
			return
		}
	}
}

func (w *OutboxRelayWorker) lockTTL() time.Duration {
	if ttl := 10 * w.interval; ttl > 30*time.Second {
		return ttl
	}
	return 30 * time.Second
}

// MessageSource delivers broker messages to a handler until ctx is cancelled
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// NotificationWorker turns order events into customer notifications
type NotificationWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(source MessageSource, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		notifier:     notifier,
		logger:       util.Component("notification-worker"),
	}

	w.eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler.OnOrderStatusChanged(w.handleStatusChanged)
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.source.Close()
}
