package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mintline/marketwatch/internal/common"
	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/db"
	"github.com/mintline/marketwatch/internal/events"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/mintline/marketwatch/internal/metrics"
	"github.com/mintline/marketwatch/internal/migrations"
	"github.com/mintline/marketwatch/internal/store"
	"github.com/mintline/marketwatch/internal/watcher"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketwatch",
	Short: "marketwatch - NFT marketplace chain-event indexer",
	Long: `marketwatch subscribes to NFT marketplace contract events on one or more
networks and projects them into a local entity store (collections, NFTs,
sale listings, orders), dispatching push notifications along the way.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runWatch,
}

var listEventsCmd = &cobra.Command{
	Use:   "list-events",
	Short: "List the supported marketplace events",
	Long:  `List every marketplace event the indexer subscribes to, with its topic hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		decoder, err := events.NewDecoder()
		if err != nil {
			return err
		}

		fmt.Println("Supported events:")
		for _, topic := range decoder.Topics() {
			kind, _ := decoder.KindOf(topic)
			fmt.Printf("  %-22s %s\n", kind, topic.Hex())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(listEventsCmd)
	rootCmd.AddCommand(replayCmd)
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	return ctx, cancel
}

// openStore loads shared infrastructure: database, migrations, entity store.
func openStore(cfg *config.Config) (*store.Store, func(), error) {
	database, err := db.NewSQLiteDBFromConfig(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database: %w", err)
	}

	storeLog := logger.NewComponentLogger(common.ComponentStore, cfg.Logging)
	if err := migrations.RunMigrations(database, storeLog); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store.New(database, storeLog), func() { database.Close() }, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	log, err := logger.NewLogger(cfg.Logging.DefaultLevel, cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close() //nolint:errcheck

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	log.Info("Running database migrations...")
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	maintenance := db.NewMaintenance(cfg.DB.Path, st.DB(), cfg.DB.Maintenance,
		logger.NewComponentLogger(common.ComponentMaintain, cfg.Logging))
	maintenance.Start(ctx)
	defer maintenance.Stop()

	supervisor, err := watcher.NewSupervisor(cfg, st, log)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	log.Infof("Starting marketwatch v%s...", version)

	if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor failed: %w", err)
	}

	log.Info("marketwatch stopped successfully")
	return nil
}
