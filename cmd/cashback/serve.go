package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/auth"
	"github.com/iurnickita/cashback/internal/catalog"
	catalogConfig "github.com/iurnickita/cashback/internal/catalog/config"
	"github.com/iurnickita/cashback/internal/catalog/partnerclient"
	"github.com/iurnickita/cashback/internal/config"
	"github.com/iurnickita/cashback/internal/handler"
	"github.com/iurnickita/cashback/internal/logger"
	"github.com/iurnickita/cashback/internal/service"
	"github.com/iurnickita/cashback/internal/store"
	"github.com/iurnickita/cashback/internal/token"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cashback",
		Short:         "Loyalty wallet and cashback settlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to TOML config file")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTokenCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	flags := serveCmd.Flags()
	flags.StringP("address", "a", "", "address to listen on")
	flags.StringP("database-uri", "d", "", "PostgreSQL DSN; empty - in-memory store")
	flags.StringP("log-level", "l", "", "log level")
	flags.StringP("partner-service", "p", "", "partner service address; empty - catalog from the store")
	flags.StringP("redis", "r", "", "Redis address for the catalog cache")
	return serveCmd
}

// loadConfig накладывает флаги поверх файла и окружения
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.GetConfig(path)
	if err != nil {
		return config.Config{}, err
	}

	overrides := map[string]*string{
		"address":         &cfg.Handler.ServerAddr,
		"database-uri":    &cfg.Store.DBDsn,
		"log-level":       &cfg.Logger.LogLevel,
		"partner-service": &cfg.Catalog.PartnerServiceAddr,
		"redis":           &cfg.Catalog.RedisAddr,
	}
	for name, dst := range overrides {
		if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
			*dst = flag.Value.String()
		}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := store.NewStore(cfg.Store, zaplog)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, closeCatalog, err := newCatalog(ctx, cfg.Catalog, store, zaplog)
	if err != nil {
		return err
	}
	defer closeCatalog()

	tokens, err := token.NewToken(cfg.Token)
	if err != nil {
		return err
	}
	auth := auth.NewAuth(tokens, zaplog)
	service := service.NewService(cfg.Service, store, catalog, zaplog)

	if cfg.Handler.PartnerKey == "" {
		zaplog.Warn("partner key is not set, partner routes are disabled")
	}
	return handler.Serve(ctx, cfg.Handler, auth, service, zaplog)
}

// newCatalog: сервис партнеров или таблицы хранилища, опционально через кэш Redis
func newCatalog(ctx context.Context, cfg catalogConfig.Config, store store.Store, zaplog *zap.Logger) (catalog.Catalog, func(), error) {
	var source catalog.Catalog
	if cfg.PartnerServiceAddr != "" {
		source = partnerclient.NewPartnerClient(cfg.PartnerServiceAddr, cfg.PartnerTimeout)
		zaplog.Info("catalog from partner service", zap.String("address", cfg.PartnerServiceAddr))
	} else {
		source = catalog.NewStoreCatalog(store)
	}

	if cfg.RedisAddr == "" {
		return source, func() {}, nil
	}
	rdb, err := catalog.ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog cache: %w", err)
	}
	zaplog.Info("catalog cached in redis", zap.String("address", cfg.RedisAddr))
	return catalog.NewRedisCache(source, rdb, cfg.CacheTTL, zaplog), func() { rdb.Close() }, nil
}
