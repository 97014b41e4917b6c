package config

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// потолок скидки баллами, % от суммы заказа
	MaxDiscountPercent decimal.Decimal `toml:"max_discount_percent"`
	// ставка кэшбэка для партнеров без своей ставки, %
	DefaultCashbackPercent decimal.Decimal `toml:"default_cashback_percent"`

	// предельное время одной денежной операции, включая повторы
	SettlementTimeout time.Duration `toml:"settlement_timeout"`
	// повторы транзакции при конфликте блокировок
	MaxRetries   int           `toml:"max_retries"`
	RetryBackoff time.Duration `toml:"retry_backoff"`
	// через сколько зависшая отметка in_progress может быть перехвачена
	IdempotencyLease time.Duration `toml:"idempotency_lease"`
}

func Default() Config {
	return Config{
		MaxDiscountPercent:     decimal.NewFromInt(20),
		DefaultCashbackPercent: decimal.NewFromInt(3),
		SettlementTimeout:      10 * time.Second,
		MaxRetries:             3,
		RetryBackoff:           50 * time.Millisecond,
		IdempotencyLease:       time.Minute,
	}
}
