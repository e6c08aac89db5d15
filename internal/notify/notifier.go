// Package notify delivers governance alerts. Disputed markets cannot be
// resolved by the core; a human has to pick them up, so every dispute is
// pushed to all configured channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one delivery channel for governance alerts.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "webhook", "telegram").
	Name() string
}

// Notifier fans one alert out to every configured sender. A failing channel
// never blocks the others; errors are collected and returned combined.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over the given senders. An empty sender
// list is valid; alerts are then dropped with a warning.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyDisputed alerts governance that a market needs manual resolution.
func (n *Notifier) NotifyDisputed(ctx context.Context, marketID string, reason string) error {
	if len(n.senders) == 0 {
		n.logger.WarnContext(ctx, "market disputed but no governance channels configured",
			slog.String("market_id", marketID),
			slog.String("reason", reason),
		)
		return nil
	}
	title := fmt.Sprintf("Market disputed: %s", marketID)
	message := fmt.Sprintf("Automatic resolution failed (%s). Manual governance resolution required.", reason)
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "governance sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.InfoContext(ctx, "governance alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
