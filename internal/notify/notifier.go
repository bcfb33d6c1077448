// Package notify pushes the simulator's operator alerts, a run-completion
// summary and governance lockouts, to the configured chat transports. Each
// transport renders the structured alert in its own native format.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RealSalty1/ORB-TopStep-sub001/internal/domain"
)

// Field is one labeled value of an alert, rendered transport-natively: as a
// text line on Telegram, as an embed field on Discord.
type Field struct {
	Label string
	Value string
}

// Alert is the structured payload handed to every sender.
type Alert struct {
	Title  string
	Body   string
	Fields []Field
}

// Sender delivers one alert over a single transport.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	Name() string
}

// Notifier fans alerts out to every configured sender. A failing sender is
// logged and skipped; the remaining transports still receive the alert.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over the given senders. An empty sender list
// yields a no-op notifier.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// RunFinished pushes the end-of-run summary.
func (n *Notifier) RunFinished(ctx context.Context, rs domain.ResultSet) error {
	lockouts, skips := 0, 0
	for _, ev := range rs.Events {
		switch ev.Kind {
		case domain.EventLockout:
			lockouts++
		case domain.EventSessionSkip:
			skips++
		}
	}
	return n.send(ctx, Alert{
		Title: fmt.Sprintf("Run %s finished", shortID(rs.RunID)),
		Fields: []Field{
			{Label: "Trades", Value: fmt.Sprintf("%d (wins %d)", len(rs.Records), rs.Wins())},
			{Label: "Total", Value: fmt.Sprintf("%+.2fR", rs.TotalR())},
			{Label: "Lockouts", Value: fmt.Sprintf("%d", lockouts)},
			{Label: "Skipped sessions", Value: fmt.Sprintf("%d", skips)},
		},
	})
}

// Lockout pushes a governance lockout alert.
func (n *Notifier) Lockout(ctx context.Context, ev domain.GovernanceEvent) error {
	return n.send(ctx, Alert{
		Title: fmt.Sprintf("Lockout: %s", ev.Instrument),
		Body:  ev.Detail,
		Fields: []Field{
			{Label: "At", Value: ev.Ts.Format("2006-01-02 15:04")},
		},
	})
}

func (n *Notifier) send(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("title", a.Title),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("title", a.Title),
		)
	}
	return errors.Join(errs...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
