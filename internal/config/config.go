package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	catalogConfig "github.com/iurnickita/cashback/internal/catalog/config"
	handlerConfig "github.com/iurnickita/cashback/internal/handler/config"
	loggerConfig "github.com/iurnickita/cashback/internal/logger/config"
	serviceConfig "github.com/iurnickita/cashback/internal/service/config"
	storeConfig "github.com/iurnickita/cashback/internal/store/config"
	tokenConfig "github.com/iurnickita/cashback/internal/token/config"
)

type Config struct {
	Handler handlerConfig.Config `toml:"server"`
	Service serviceConfig.Config `toml:"settlement"`
	Store   storeConfig.Config   `toml:"store"`
	Logger  loggerConfig.Config  `toml:"logger"`
	Catalog catalogConfig.Config `toml:"catalog"`
	Token   tokenConfig.Config   `toml:"token"`
}

func Default() Config {
	return Config{
		Handler: handlerConfig.Config{
			ServerAddr:      "localhost:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Service: serviceConfig.Default(),
		Store: storeConfig.Config{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logger: loggerConfig.Config{
			LogLevel: "info",
		},
		Catalog: catalogConfig.Config{
			PartnerTimeout: 3 * time.Second,
			CacheTTL:       5 * time.Minute,
		},
		Token: tokenConfig.Config{
			TokenExp: 24 * time.Hour,
		},
	}
}

// GetConfig собирает настройки по возрастанию приоритета:
// значения по умолчанию, TOML-файл, .env, переменные окружения.
// Флаги командной строки накладываются вызывающим.
func GetConfig(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	// .env не перекрывает уже заданные переменные окружения
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	envString("RUN_ADDRESS", &cfg.Handler.ServerAddr)
	envString("PARTNER_KEY", &cfg.Handler.PartnerKey)
	envString("DATABASE_URI", &cfg.Store.DBDsn)
	envString("LOG_LEVEL", &cfg.Logger.LogLevel)
	envString("PARTNER_SERVICE_ADDRESS", &cfg.Catalog.PartnerServiceAddr)
	envString("REDIS_ADDR", &cfg.Catalog.RedisAddr)
	envString("REDIS_PASSWORD", &cfg.Catalog.RedisPassword)
	envString("TOKEN_SECRET", &cfg.Token.SecretKey)

	return errors.Join(
		envInt("REDIS_DB", &cfg.Catalog.RedisDB),
		envInt("SETTLEMENT_MAX_RETRIES", &cfg.Service.MaxRetries),
		envDuration("SETTLEMENT_TIMEOUT", &cfg.Service.SettlementTimeout),
		envDuration("CATALOG_CACHE_TTL", &cfg.Catalog.CacheTTL),
		envDecimal("MAX_DISCOUNT_PERCENT", &cfg.Service.MaxDiscountPercent),
		envDecimal("DEFAULT_CASHBACK_PERCENT", &cfg.Service.DefaultCashbackPercent),
	)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) error {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envDecimal(key string, dst *decimal.Decimal) error {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return nil
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = d
	return nil
}
