package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to the log instead of a chat. Used in
// development when no Telegram credentials are configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.logger.Info("notification", "text", text)
	return nil
}
