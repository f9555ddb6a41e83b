package services

import (
	"context"
	"log/slog"

	"github.com/Dosada05/club-events/models"
)

// Notifier delivers one notification. Implementations may block on the
// network; they are only called from Dispatcher workers.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) error
}

// NotificationSender queues notifications without waiting for delivery.
type NotificationSender interface {
	Enqueue(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the log instead of sending them. It is
// used when no SMTP server is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg models.Notification) error {
	attrs := []any{
		slog.String("notification_id", msg.ID),
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
	}
	if msg.Attachment != nil {
		attrs = append(attrs, slog.String("attachment", msg.Attachment.Filename))
	}
	n.logger.InfoContext(ctx, "notification (not sent, SMTP disabled)", attrs...)
	return nil
}
