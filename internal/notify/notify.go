package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// LogNotifier writes notifications to the structured log. Used in the field
// agent, where there is no operator console to surface toasts to.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements domain.Notifier.
func (n *LogNotifier) Notify(_ context.Context, notification domain.Notification) {
	fields := []zap.Field{
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
	}
	if notification.Severity == domain.SeverityError {
		n.logger.Warn("notification", fields...)
		return
	}
	n.logger.Info("notification", fields...)
}

// ChannelNotifier buffers notifications for a UI consumer. Delivery never
// blocks the producing task: when the buffer is full the oldest entry is
// dropped in favour of the new one.
type ChannelNotifier struct {
	ch chan domain.Notification
}

// NewChannelNotifier constructs a notifier with the given buffer size.
func NewChannelNotifier(size int) *ChannelNotifier {
	if size <= 0 {
		size = 32
	}
	return &ChannelNotifier{ch: make(chan domain.Notification, size)}
}

// Notify implements domain.Notifier.
func (n *ChannelNotifier) Notify(_ context.Context, notification domain.Notification) {
	for {
		select {
		case n.ch <- notification:
			return
		default:
			select {
			case <-n.ch:
			default:
			}
		}
	}
}

// C exposes the consumer side.
func (n *ChannelNotifier) C() <-chan domain.Notification {
	return n.ch
}

// Multi fans a notification out to several notifiers.
type Multi []domain.Notifier

// Notify implements domain.Notifier.
func (m Multi) Notify(ctx context.Context, notification domain.Notification) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, notification)
		}
	}
}
