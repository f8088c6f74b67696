package watcher

import (
	"context"
	"time"

	"github.com/mintline/marketwatch/internal/common"
	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/currency"
	"github.com/mintline/marketwatch/internal/events"
	"github.com/mintline/marketwatch/internal/indexer"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/notify"
	"github.com/mintline/marketwatch/internal/rpc"
	"github.com/mintline/marketwatch/internal/store"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs one Watcher per configured network. Networks are fully
// isolated: a dial failure or watcher crash on one chain is retried with
// backoff and never stops the others.
type Supervisor struct {
	cfg     *config.Config
	store   *store.Store
	decoder *events.Decoder
	log     *logger.Logger
}

// NewSupervisor builds the supervisor and the shared event decoder.
func NewSupervisor(cfg *config.Config, st *store.Store, log *logger.Logger) (*Supervisor, error) {
	decoder, err := events.NewDecoder()
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg:     cfg,
		store:   st,
		decoder: decoder,
		log:     log.WithComponent(common.ComponentSupervisor),
	}, nil
}

// Run starts every network's watcher and blocks until the context is
// cancelled. It always returns the context's error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.log.Infof("Starting watchers for %d network(s)", len(s.cfg.Networks))

	var g errgroup.Group
	for _, network := range s.cfg.Networks {
		network := network
		g.Go(func() error {
			s.runNetwork(ctx, network)
			return nil
		})
	}

	_ = g.Wait()

	s.log.Info("All watchers stopped")

	return ctx.Err()
}

// runNetwork dials, assembles and runs one network's pipeline, restarting it
// with backoff after any failure until the context ends.
func (s *Supervisor) runNetwork(ctx context.Context, network config.NetworkConfig) {
	log := s.log.WithNetwork(network.Name)
	backoff := s.cfg.Watcher.ResubscribeInitialBackoff.Duration

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.watchOnce(ctx, network, log)
		if ctx.Err() != nil {
			return
		}

		log.Errorf("Watcher stopped, restarting in %s: %v", backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		if backoff *= 2; backoff > s.cfg.Watcher.ResubscribeMaxBackoff.Duration {
			backoff = s.cfg.Watcher.ResubscribeMaxBackoff.Duration
		}
	}
}

// watchOnce owns one client's lifetime: dial, run, close.
func (s *Supervisor) watchOnce(ctx context.Context, network config.NetworkConfig, log *logger.Logger) error {
	client, err := rpc.NewClient(ctx, network.Name, network.RPCURL, s.cfg.RPC)
	if err != nil {
		return err
	}
	defer client.Close()

	normalizer, err := currency.NewNormalizer(network.Name, client, log.WithComponent(common.ComponentRPC))
	if err != nil {
		return err
	}

	notifier := notify.New(network.Name, s.cfg.Notifications, s.store, log.WithComponent(common.ComponentNotifier))

	ix, err := indexer.NewMarketIndexer(
		network.Name,
		s.store,
		normalizer,
		notifier,
		client,
		log.WithComponent(common.ComponentIndexer),
	)
	if err != nil {
		return err
	}

	w := NewWatcher(
		network.Name,
		network.Contract(),
		client,
		s.decoder,
		ix,
		s.store,
		s.cfg.Watcher,
		s.cfg.RPC.Retry,
		log.WithComponent(common.ComponentWatcher),
	)

	return w.Run(ctx)
}
