// Package notify sends motion alerts to an external messaging endpoint
// (CallMeBot's WhatsApp gateway) with a cooldown between messages.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Outcome is the result of one Notify call.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// Sender delivers a message and reports the HTTP status.
type Sender interface {
	Send(ctx context.Context, message string) (int, error)
}

// StateStore persists the last send time across restarts. It matches
// the opstate.Store method set.
type StateStore interface {
	Get(namespace, key string) (string, error)
	Set(namespace, key, value string) error
}

const (
	stateNamespace = "notify"
	stateLastSent  = "last_sent"
)

// Notifier gates a Sender behind a Throttle.
type Notifier struct {
	sender   Sender
	throttle *Throttle
	store    StateStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotifier creates a notifier. store may be nil.
func NewNotifier(sender Sender, cooldown time.Duration, store StateStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		throttle: NewThrottle(cooldown),
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Restore loads the persisted last send time into the throttle. A
// missing or malformed value leaves the throttle open.
func (n *Notifier) Restore() {
	if n.store == nil {
		return
	}
	v, err := n.store.Get(stateNamespace, stateLastSent)
	if err != nil {
		n.logger.Warn("failed to load notification state", "error", err)
		return
	}
	if v == "" {
		return
	}
	last, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		n.logger.Warn("ignoring malformed notification state", "value", v, "error", err)
		return
	}
	n.throttle.Restore(last)
	n.logger.Debug("notification cooldown restored", "last_sent", last)
}

// Notify sends message unless the cooldown is active. The cooldown
// window starts when the send is attempted, so a failed request still
// counts against it.
func (n *Notifier) Notify(ctx context.Context, message string) Outcome {
	now := n.now()
	if !n.throttle.Allow(now) {
		n.logger.Info("cooldown active, notification not sent",
			"remaining", n.throttle.Remaining(now).String())
		return OutcomeSuppressed
	}

	if n.store != nil {
		if err := n.store.Set(stateNamespace, stateLastSent, now.UTC().Format(time.RFC3339Nano)); err != nil {
			n.logger.Warn("failed to persist notification state", "error", err)
		}
	}

	status, err := n.sender.Send(ctx, message)
	if err != nil {
		n.logger.Warn("notification failed", "status", status, "error", err)
		return OutcomeFailed
	}
	return OutcomeSent
}
