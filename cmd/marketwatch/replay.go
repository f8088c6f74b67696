package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/mintline/marketwatch/internal/common"
	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/currency"
	"github.com/mintline/marketwatch/internal/events"
	"github.com/mintline/marketwatch/internal/indexer"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/notify"
	"github.com/mintline/marketwatch/internal/rpc"
	"github.com/mintline/marketwatch/internal/store"
	"github.com/spf13/cobra"
)

var (
	replayNetwork string
	replayID      string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Reprocess dead-lettered events",
	Long: `Reprocess events that exhausted their retries and were persisted as dead
letters. Successfully replayed events are removed from the dead-letter log.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayNetwork, "network", "", "only replay dead letters for this network")
	replayCmd.Flags().StringVar(&replayID, "id", "", "replay a single dead letter by id")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logger.NewComponentLogger(common.ComponentReplay, cfg.Logging)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	letters, err := loadLetters(ctx, st)
	if err != nil {
		return err
	}
	if len(letters) == 0 {
		log.Info("No dead letters to replay")
		return nil
	}

	decoder, err := events.NewDecoder()
	if err != nil {
		return err
	}

	networks := make(map[string]config.NetworkConfig, len(cfg.Networks))
	for _, n := range cfg.Networks {
		networks[n.Name] = n
	}

	indexers := make(map[string]*indexer.MarketIndexer)

	var closers []func()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	replayed := 0
	for _, letter := range letters {
		if ctx.Err() != nil {
			break
		}

		if _, ok := networks[letter.Network]; !ok {
			log.Warnf("Skipping dead letter %s: network %q is not configured", letter.ID, letter.Network)
			continue
		}

		ix, ok := indexers[letter.Network]
		if !ok {
			var closeFn func()
			ix, closeFn, err = buildIndexer(ctx, cfg, networks[letter.Network], st, log)
			if err != nil {
				log.Errorf("Skipping network %q: %v", letter.Network, err)
				continue
			}
			indexers[letter.Network] = ix
			closers = append(closers, closeFn)
		}

		if err := replayLetter(ctx, st, decoder, ix, letter); err != nil {
			log.Errorf("Failed to replay dead letter %s (%s %s/%d): %v",
				letter.ID, letter.EventKind, letter.TxHash.Hex(), letter.LogIndex, err)
			continue
		}

		log.Infof("Replayed %s event %s/%d on %s", letter.EventKind, letter.TxHash.Hex(), letter.LogIndex, letter.Network)
		replayed++
	}

	log.Infof("Replayed %d of %d dead letter(s)", replayed, len(letters))
	return nil
}

func loadLetters(ctx context.Context, st *store.Store) ([]*store.DeadLetter, error) {
	if replayID != "" {
		letter, err := st.GetDeadLetter(ctx, replayID)
		if err != nil {
			return nil, err
		}
		return []*store.DeadLetter{letter}, nil
	}
	return st.ListDeadLetters(ctx, replayNetwork)
}

// buildIndexer assembles the per-network reducer pipeline used for replay.
func buildIndexer(
	ctx context.Context,
	cfg *config.Config,
	network config.NetworkConfig,
	st *store.Store,
	log *logger.Logger,
) (*indexer.MarketIndexer, func(), error) {
	client, err := rpc.NewClient(ctx, network.Name, network.RPCURL, cfg.RPC)
	if err != nil {
		return nil, nil, err
	}

	normalizer, err := currency.NewNormalizer(network.Name, client, log.WithNetwork(network.Name))
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	notifier := notify.New(network.Name, cfg.Notifications, st, log.WithNetwork(network.Name))

	ix, err := indexer.NewMarketIndexer(network.Name, st, normalizer, notifier, client, log.WithNetwork(network.Name))
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return ix, client.Close, nil
}

func replayLetter(
	ctx context.Context,
	st *store.Store,
	decoder *events.Decoder,
	ix *indexer.MarketIndexer,
	letter *store.DeadLetter,
) error {
	var lg types.Log
	if err := json.Unmarshal([]byte(letter.Payload), &lg); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}

	ev, err := decoder.Decode(lg)
	if err != nil {
		return err
	}

	if err := ix.Handle(ctx, ev); err != nil {
		return err
	}

	return st.DeleteDeadLetter(ctx, letter.ID)
}
