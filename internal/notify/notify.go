// Package notify delivers per-account push notifications produced by the
// marketplace indexers. Delivery is best effort: the indexers treat a failed
// notification as non-fatal and never retry it.
package notify

import (
	"context"
	"fmt"

	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/store"
)

// Notifier delivers a notification addressed to a single account.
type Notifier interface {
	Notify(ctx context.Context, accountID, title, message string) error
}

// SubscriptionLookup resolves an account id to its registered push
// subscription. Satisfied by *store.Store.
type SubscriptionLookup interface {
	GetPushSubscription(ctx context.Context, accountID string) (*store.PushSubscription, error)
}

// NotificationError wraps a delivery failure with the addressed account.
type NotificationError struct {
	AccountID string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.AccountID, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// New builds the notifier for a network from configuration. A nil
// notifications section disables delivery entirely. When subs is non-nil,
// accounts without a registered push subscription are skipped.
func New(network string, cfg *config.NotifyConfig, subs SubscriptionLookup, log *logger.Logger) Notifier {
	if cfg == nil || cfg.WebhookURL == "" {
		return NopNotifier{}
	}
	return NewWebhookNotifier(network, *cfg, subs, log)
}

// NopNotifier swallows every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, accountID, title, message string) error {
	return nil
}
