// Package notify fans detected spike events out to the configured alert
// destinations (console, Discord, Telegram, Redis). Delivery is best-effort:
// a failing destination is logged and skipped so a webhook outage never stalls
// the scan loop.
package notify

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// Sender is the interface that each alert destination must implement.
type Sender interface {
	// Send delivers one spike event to the destination.
	Send(ctx context.Context, ev domain.SpikeEvent) error
	// Name returns a human-readable identifier for the sender (e.g. "discord").
	Name() string
}

// Notifier dispatches spike events to one or more Senders, sequentially and in
// registration order. It never reports delivery failures to the caller; the
// scan loop treats alerting as fire-and-forget.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish delivers the event to every sender. Errors from individual senders
// are logged with the sender name; a single sender failure does not prevent
// delivery to the remaining senders.
func (n *Notifier) Publish(ctx context.Context, ev domain.SpikeEvent) {
	for _, s := range n.senders {
		if err := s.Send(ctx, ev); err != nil {
			n.logger.WarnContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("ticker", ev.Ticker),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("ticker", ev.Ticker),
			slog.String("kind", string(ev.Kind)),
		)
	}
}
