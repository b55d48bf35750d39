// Command collection-proxy serves a remote paginated collection through the
// stale-while-revalidate cache.
//
//	collection-proxy --endpoint https://api.example.com/v1/items/ --store-path ./cache.db
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/collection-cache/internal/config"
	"github.com/Sternrassler/collection-cache/pkg/cache"
	"github.com/Sternrassler/collection-cache/pkg/client"
	"github.com/Sternrassler/collection-cache/pkg/logging"
	"github.com/Sternrassler/collection-cache/pkg/pagination"
	"github.com/Sternrassler/collection-cache/pkg/storage"
	"github.com/Sternrassler/collection-cache/pkg/swr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "collection-proxy",
		Short: "Serve a paginated collection through a stale-while-revalidate cache",
		Long: `collection-proxy fetches every page of a remote collection, stores the
result in a local Pebble database or Redis, and serves it from there. Cached
responses trigger a background refresh so the next read is current.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("endpoint", "", "collection endpoint URL")
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("store-backend", config.BackendPebble, "storage backend: pebble or redis")
	flags.String("store-path", "collection-cache.db", "pebble database directory")
	flags.String("redis-addr", "localhost:6379", "redis address")
	flags.String("cache-mode", string(cache.ModeSingleSlot), "cache layout: single-slot or keyed")
	flags.Duration("cache-ttl", cache.DefaultTTL, "maximum age of a served collection")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	bindFlags(v, cmd, map[string]string{
		"endpoint":      "endpoint",
		"listen":        "listen",
		"store.backend": "store-backend",
		"store.path":    "store-path",
		"redis.addr":    "redis-addr",
		"cache.mode":    "cache-mode",
		"cache.ttl":     "cache-ttl",
		"log.level":     "log-level",
	})

	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// app is the wired proxy.
type app struct {
	sync  *swr.Synchronizer
	store *storage.Lazy
}

// build wires storage, cache, client, collector and synchronizer from cfg.
// The store is opened lazily on first use.
func build(cfg config.Config) (*app, error) {
	endpointClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	store := storage.NewLazy(cfg.StoreOpener(), logging.NewLogger("storage"))
	collectionCache := cache.New(store, cfg.CacheConfig())
	collector := pagination.NewCollector(endpointClient, cfg.CollectorConfig())

	syncCfg := cfg.SyncConfig()
	logger := logging.NewLogger("proxy")
	syncCfg.OnUpdate = func(filters cache.Filters, data []cache.Record) {
		logger.Info().
			Stringer("filters", filters).
			Int("records", len(data)).
			Msg("Collection refreshed")
	}

	return &app{
		sync:  swr.New(collectionCache, collector, syncCfg),
		store: store,
	}, nil
}

// Close waits for background refreshes and closes the store.
func (a *app) Close() error {
	a.sync.Wait()
	return a.store.Close()
}

func run(ctx context.Context, cfg config.Config) error {
	logging.Setup(cfg.LogConfig())
	logger := logging.NewLogger("proxy")

	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Store close failed")
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newHandler(a.sync, a.store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Listen).
			Str("endpoint", cfg.Endpoint).
			Str("backend", cfg.Store.Backend).
			Str("cache_mode", cfg.Cache.Mode).
			Dur("ttl", cfg.Cache.TTL).
			Msg("Starting collection proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
