package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/metrics"
	"github.com/mintline/marketwatch/internal/store"
)

// WebhookNotifier posts notifications as JSON to a push gateway webhook,
// resolving the account's registered push subscription first so the gateway
// gets the delivery endpoint along with the message.
type WebhookNotifier struct {
	network string
	url     string
	subs    SubscriptionLookup
	client  *http.Client
	log     *logger.Logger
}

// NewWebhookNotifier creates a WebhookNotifier for the given network. A nil
// subscription lookup sends every notification with only the account id.
func NewWebhookNotifier(network string, cfg config.NotifyConfig, subs SubscriptionLookup, log *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		network: network,
		url:     cfg.WebhookURL,
		subs:    subs,
		client:  &http.Client{Timeout: cfg.Timeout.Duration},
		log:     log,
	}
}

type webhookPayload struct {
	Network   string `json:"network"`
	AccountID string `json:"account_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Endpoint  string `json:"endpoint,omitempty"`
	Keys      string `json:"keys,omitempty"`
}

// Notify posts the notification to the webhook. Accounts without a push
// subscription are skipped without error; a non-2xx response is a delivery
// failure.
func (w *WebhookNotifier) Notify(ctx context.Context, accountID, title, message string) error {
	payload := webhookPayload{
		Network:   w.network,
		AccountID: accountID,
		Title:     title,
		Message:   message,
	}

	if w.subs != nil {
		sub, err := w.subs.GetPushSubscription(ctx, accountID)
		switch {
		case store.IsNotFound(err):
			w.log.Debugf("Account %s has no push subscription, skipping notification", accountID)
			return nil
		case err != nil:
			return w.failed(accountID, fmt.Errorf("resolve subscription: %w", err))
		default:
			payload.Endpoint = sub.Endpoint
			payload.Keys = sub.Keys
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return w.failed(accountID, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return w.failed(accountID, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return w.failed(accountID, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return w.failed(accountID, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	metrics.NotificationSentInc(w.network)
	w.log.Debugf("Notification delivered to account %s: %s", accountID, title)

	return nil
}

func (w *WebhookNotifier) failed(accountID string, err error) error {
	metrics.NotificationFailureInc(w.network)
	return &NotificationError{AccountID: accountID, Err: err}
}
