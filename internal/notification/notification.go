package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindTransferCompleted is emitted after a transfer commits.
	KindTransferCompleted = "transfer.completed"
	// KindCardIssued is emitted after a card is created.
	KindCardIssued = "card.issued"
	// KindCardUpdated is emitted after owner name or expiration changes.
	KindCardUpdated = "card.updated"
	// KindCardBlocked is emitted after a card moves to BLOCKED.
	KindCardBlocked = "card.blocked"
	// KindCardActivated is emitted after a card moves back to ACTIVE.
	KindCardActivated = "card.activated"
	// KindCardBlockRequested is emitted when an owner asks for a block.
	KindCardBlockRequested = "card.block_requested"
	// KindCardDeleted is emitted after an administrative removal.
	KindCardDeleted = "card.deleted"
)

// Message describes an event for downstream systems. Key groups related
// messages (the card or transaction id); Attributes never carry a plain
// card number.
type Message struct {
	Kind       string            `json:"kind"`
	Key        string            `json:"key"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{slog.String("kind", message.Kind), slog.String("key", message.Key)}
	for k, v := range message.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	n.logger.Info("notification", attrs...)
	return nil
}

// Publish sends msg if a notifier is configured and logs delivery failures.
// Events go out after commit, so a failed delivery never undoes the change.
func Publish(ctx context.Context, n Notifier, logger *slog.Logger, msg Message) {
	if n == nil {
		return
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	if err := n.Send(ctx, msg); err != nil && logger != nil {
		logger.Warn("notification delivery failed", slog.String("kind", msg.Kind), slog.String("key", msg.Key), slog.Any("error", err))
	}
}
