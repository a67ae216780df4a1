// Package notify delivers user-facing bootstrap messages.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/factory-agent/internal/session"
)

// Notifier is the user-facing notification sink.
type Notifier interface {
	Info(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Info implements Notifier.
func (n *LogNotifier) Info(ctx context.Context, msg string) {
	n.event(ctx, n.logger.Info()).Msg(msg)
}

// Error implements Notifier.
func (n *LogNotifier) Error(ctx context.Context, msg string) {
	n.event(ctx, n.logger.Error()).Msg(msg)
}

func (n *LogNotifier) event(ctx context.Context, e *zerolog.Event) *zerolog.Event {
	if id := session.FromContext(ctx); id != "" {
		e = e.Str("session_id", id)
	}
	return e.Bool("user_visible", true)
}

// Multi fans a notification out to several sinks in order.
type Multi []Notifier

// Info implements Notifier.
func (m Multi) Info(ctx context.Context, msg string) {
	for _, n := range m {
		n.Info(ctx, msg)
	}
}

// Error implements Notifier.
func (m Multi) Error(ctx context.Context, msg string) {
	for _, n := range m {
		n.Error(ctx, msg)
	}
}
