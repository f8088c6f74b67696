// Package watcher owns the long-lived log subscriptions. One Watcher runs per
// configured network, feeding a bounded queue of raw logs into a worker pool;
// a Supervisor fans the watchers out and keeps them isolated from each other.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/events"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/metrics"
	"github.com/mintline/marketwatch/internal/rpc"
	"github.com/mintline/marketwatch/internal/store"
	"golang.org/x/sync/errgroup"
)

// LogSubscriber opens a log subscription; satisfied by rpc.Client.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// EventHandler applies one decoded event; satisfied by indexer.MarketIndexer.
type EventHandler interface {
	Handle(ctx context.Context, ev events.Event) error
}

// Watcher subscribes to one network's marketplace contract and drives each
// received log through decode, per-key serialization, retry and dead-letter.
type Watcher struct {
	network  string
	contract common.Address

	subscriber LogSubscriber
	decoder    *events.Decoder
	handler    EventHandler
	store      *store.Store

	cfg   config.WatcherConfig
	retry *config.RetryConfig
	locks *keyedMutex
	log   *logger.Logger
}

// NewWatcher assembles the per-network pipeline.
func NewWatcher(
	network string,
	contract common.Address,
	subscriber LogSubscriber,
	decoder *events.Decoder,
	handler EventHandler,
	st *store.Store,
	cfg config.WatcherConfig,
	retryCfg *config.RetryConfig,
	log *logger.Logger,
) *Watcher {
	return &Watcher{
		network:    network,
		contract:   contract,
		subscriber: subscriber,
		decoder:    decoder,
		handler:    handler,
		store:      st,
		cfg:        cfg,
		retry:      retryCfg,
		locks:      newKeyedMutex(cfg.Workers * 8), //nolint:mnd
		log:        log,
	}
}

// Run blocks until the context is cancelled. The subscription is re-opened
// with backoff whenever it drops; individual event failures never reach it.
func (w *Watcher) Run(ctx context.Context) error {
	logs := make(chan types.Log, w.cfg.QueueSize)

	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < w.cfg.Workers; i++ {
		g.Go(func() error {
			w.worker(ctx, logs)
			return nil
		})
	}

	g.Go(func() error {
		return w.subscribeLoop(ctx, logs)
	})

	return g.Wait()
}

// subscribeLoop keeps exactly one subscription alive over the nine known
// event topics, backing off exponentially between attempts.
func (w *Watcher) subscribeLoop(ctx context.Context, logs chan<- types.Log) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{w.decoder.Topics()},
	}

	backoff := w.cfg.ResubscribeInitialBackoff.Duration

	for {
		sub, err := w.subscriber.SubscribeLogs(ctx, query, logs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w.log.Errorf("Subscription failed, retrying in %s: %v", backoff, err)
			metrics.ResubscribeInc(w.network)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = w.nextBackoff(backoff)
			continue
		}

		w.log.Infof("Subscribed to %s on %s", w.contract.Hex(), w.network)
		backoff = w.cfg.ResubscribeInitialBackoff.Duration

		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return ctx.Err()
		case err := <-sub.Err():
			sub.Unsubscribe()
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w.log.Warnf("Subscription dropped, resubscribing in %s: %v", backoff, err)
			metrics.ResubscribeInc(w.network)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = w.nextBackoff(backoff)
		}
	}
}

func (w *Watcher) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if max := w.cfg.ResubscribeMaxBackoff.Duration; next > max {
		next = max
	}
	return next
}

func (w *Watcher) worker(ctx context.Context, logs <-chan types.Log) {
	for {
		select {
		case <-ctx.Done():
			return
		case lg, ok := <-logs:
			if !ok {
				return
			}
			metrics.QueueDepthSet(w.network, len(logs))
			w.process(ctx, lg)
		}
	}
}

// process drives one log to completion or controlled failure. Nothing it does
// may error out of the worker.
func (w *Watcher) process(ctx context.Context, lg types.Log) {
	if lg.Removed {
		w.log.Warnf("Ignoring removed log %s/%d (chain reorganization)", lg.TxHash.Hex(), lg.Index)
		return
	}

	kind := "unknown"
	if len(lg.Topics) > 0 {
		if k, ok := w.decoder.KindOf(lg.Topics[0]); ok {
			kind = string(k)
		}
	}

	ev, err := w.decoder.Decode(lg)
	if err != nil {
		// Deterministic failure; retrying cannot help, but losing the raw
		// log would hide an ABI mismatch.
		w.log.Errorf("Failed to decode log %s/%d on %s: %v", lg.TxHash.Hex(), lg.Index, w.network, err)
		metrics.EventFailureInc(w.network, "decode")
		w.deadLetter(ctx, lg, kind, err)
		return
	}

	key := entityKey(ev)
	w.locks.Lock(key)
	defer w.locks.Unlock(key)

	if err := w.handleWithRetry(ctx, ev); err != nil {
		w.log.Errorf("Giving up on %s event %s/%d on %s: %v", kind, lg.TxHash.Hex(), lg.Index, w.network, err)
		metrics.EventFailureInc(w.network, kind)
		w.deadLetter(ctx, lg, kind, err)
		return
	}

	metrics.EventProcessedInc(w.network, kind)
	metrics.LastEventTimestampSet(w.network, time.Now().Unix())
}

// handleWithRetry applies the event with a bounded backoff loop. Only errors
// classified as transient are retried.
func (w *Watcher) handleWithRetry(ctx context.Context, ev events.Event) error {
	if w.retry == nil {
		return w.handler.Handle(ctx, ev)
	}

	backoff := w.retry.InitialBackoff.Duration

	var lastErr error
	for attempt := 1; attempt <= w.retry.MaxAttempts; attempt++ {
		err := w.handler.Handle(ctx, ev)
		if err == nil {
			return nil
		}
		lastErr = err

		if !processingRetryable(err) {
			return err
		}
		if attempt >= w.retry.MaxAttempts || ctx.Err() != nil {
			break
		}

		w.log.Debugf("Retrying %s event in %s (attempt %d/%d): %v", ev.Kind(), backoff, attempt, w.retry.MaxAttempts, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("cancelled during retry backoff: %w", ctx.Err())
		}

		backoff = time.Duration(float64(backoff) * w.retry.BackoffMultiplier)
		if max := w.retry.MaxBackoff.Duration; backoff > max {
			backoff = max
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", w.retry.MaxAttempts, lastErr)
}

// processingRetryable classifies per-event failures: transient chain or
// store trouble is worth another attempt, everything else is permanent.
func processingRetryable(err error) bool {
	if rpc.IsRetryable(err) {
		return true
	}

	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		msg := strings.ToLower(err.Error())
		return strings.Contains(msg, "database is locked") ||
			strings.Contains(msg, "database table is locked") ||
			strings.Contains(msg, "busy")
	}

	return false
}

// deadLetter persists the raw log so the event can be replayed manually.
func (w *Watcher) deadLetter(ctx context.Context, lg types.Log, kind string, cause error) {
	payload, err := json.Marshal(lg)
	if err != nil {
		w.log.Errorf("Failed to serialize dead letter %s/%d: %v", lg.TxHash.Hex(), lg.Index, err)
		return
	}

	created, err := w.store.SaveDeadLetter(ctx, &store.DeadLetter{
		Network:     w.network,
		EventKind:   kind,
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
		Payload:     string(payload),
		LastError:   cause.Error(),
	})
	if err != nil {
		w.log.Errorf("Failed to persist dead letter %s/%d: %v", lg.TxHash.Hex(), lg.Index, err)
		return
	}
	if created {
		metrics.DeadLetterInc(w.network)
		w.log.Warnf("Dead-lettered %s event %s/%d on %s", kind, lg.TxHash.Hex(), lg.Index, w.network)
	}
}

// entityKey maps an event to the entity identity whose read-modify-write
// sequence must be serialized. Watchers are per network, so the network is
// implicit.
func entityKey(ev events.Event) string {
	switch e := ev.(type) {
	case events.CollectionDeployed:
		return "collection:" + e.Collection.Hex()
	case events.Mint:
		return "nft:" + e.Collection.Hex() + ":" + e.TokenID.String()
	case events.MarketItemCreated:
		return "sale:" + e.MarketID.Hex()
	case events.MarketItemCancelled:
		return "sale:" + e.MarketID.Hex()
	case events.SaleMade:
		return "sale:" + e.MarketID.Hex()
	case events.OrderMade:
		return "order:" + e.OrderID.Hex()
	case events.OrderItemEnded:
		return "order:" + e.OrderID.Hex()
	case events.OrderItemCancelled:
		return "order:" + e.OrderID.Hex()
	case events.OrderItemRejected:
		return "order:" + e.OrderID.Hex()
	default:
		return "event:" + string(ev.Kind())
	}
}
