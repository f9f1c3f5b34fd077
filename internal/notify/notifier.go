// internal/notify/notifier.go
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Notifier delivers a text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID, text string) error
}

// LogNotifier writes messages to the log. It is used when no chat transport is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, chatID, text string) error {
	n.logger.Info("Notification", zap.String("chat_id", chatID), zap.String("text", text))
	return nil
}

// Multi sends every message through all notifiers.
type Multi []Notifier

// Notify fans out and joins the errors.
func (m Multi) Notify(ctx context.Context, chatID, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, chatID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
