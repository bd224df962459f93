package worker

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Notification is a message addressed to the customer who owns an order
type Notification struct {
	UserID      int64
	OrderID     int64
	OrderNumber string
	EventType   string
	Message     string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.Component("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info("Customer notification",
		zap.Int64("user_id", note.UserID),
		zap.Int64("order_id", note.OrderID),
		zap.String("order_number", note.OrderNumber),
		zap.String("event_type", note.EventType),
		zap.String("message", note.Message),
	)
	return nil
}

func (w *NotificationWorker) handleOrderPlaced(ctx context.Context, e *models.OrderPlacedEvent) error {
	return w.send(ctx, Notification{
		UserID:      e.UserID,
		OrderID:     e.OrderID,
		OrderNumber: e.OrderNumber,
		EventType:   e.EventType,
		Message: fmt.Sprintf("Your order %s for %d item(s) totalling %s %s has been placed",
			e.OrderNumber, e.TotalItems, e.TotalPrice.StringFixed(2), e.Currency),
	})
}

func (w *NotificationWorker) handleStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	message := statusMessage(e)
	if message == "" {
		w.logger.Debug("No notification for status", zap.String("status", string(e.To)))
		return nil
	}
	return w.send(ctx, Notification{
		UserID:      e.UserID,
		OrderID:     e.OrderID,
		OrderNumber: e.OrderNumber,
		EventType:   e.EventType,
		Message:     message,
	})
}

func (w *NotificationWorker) send(ctx context.Context, n Notification) error {
	if err := w.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("notify user %d: %w", n.UserID, err)
	}
	util.NotificationsSentTotal.WithLabelValues(n.EventType).Inc()
	return nil
}

func statusMessage(e *models.OrderStatusChangedEvent) string {
	switch e.To {
	case models.OrderStatusApproved:
		return fmt.Sprintf("Your order %s has been approved", e.OrderNumber)
	case models.OrderStatusRejected:
		if e.Comment != "" {
			return fmt.Sprintf("Your order %s was rejected: %s", e.OrderNumber, e.Comment)
		}
		return fmt.Sprintf("Your order %s was rejected", e.OrderNumber)
	case models.OrderStatusShipped:
		return fmt.Sprintf("Your order %s has shipped", e.OrderNumber)
	case models.OrderStatusDelivered:
		return fmt.Sprintf("Your order %s has been delivered", e.OrderNumber)
	case models.OrderStatusCancelled:
		return fmt.Sprintf("Your order %s has been cancelled", e.OrderNumber)
	}
	return ""
}
