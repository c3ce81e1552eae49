// Package notify delivers operator-facing messages. The engine only depends
// on the Notifier interface; delivery transports live behind it.
package notify

import "context"

// Notifier sends one message. Text may carry simple HTML markup (bold, line
// breaks); the transport is responsible for rendering or stripping it.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
