package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/store/config"
)

type Store interface {
	// Чтение вне транзакции
	WalletGet(ctx context.Context, userID string) (model.Wallet, error)
	TransactionGetList(ctx context.Context, userID string) ([]model.Transaction, error)
	OrderGet(ctx context.Context, orderID string) (model.Order, error)
	OrderGetList(ctx context.Context, userID string) ([]model.Order, error)

	// Каталог партнеров
	PartnerGet(ctx context.Context, partnerID string) (model.Partner, error)
	PartnerPut(ctx context.Context, partner model.Partner) error
	ProductGetList(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error)
	ProductPut(ctx context.Context, product model.Product) error

	// Все изменения балансов и заказов - только внутри InTx
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	idempotency.Storage

	Close() error
}

// Tx is one atomic unit of work. Row locks taken through it are held until
// InTx returns.
type Tx interface {
	// WalletLock returns the user's wallet locked for this transaction,
	// creating an empty one on first use.
	WalletLock(ctx context.Context, userID string) (model.Wallet, error)
	// WalletApplyDelta applies all legs of delta and appends one ledger
	// transaction per leg. Fails with ErrInsufficientFunds if any balance
	// would go negative.
	WalletApplyDelta(ctx context.Context, userID string, delta model.Delta) (model.Wallet, []model.Transaction, error)

	OrderPost(ctx context.Context, order model.Order) error
	OrderLock(ctx context.Context, orderID string) (model.Order, error)
	OrderPut(ctx context.Context, order model.Order) error

	idempotency.Sealer
}

var (
	ErrNoRows            = errors.New("no rows")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAmountIncorrect   = errors.New("amount value is incorrect")
	ErrCurrencyIncorrect = errors.New("currency is incorrect")
	ErrDeltaEmpty        = errors.New("delta has no legs")
	ErrValueOutOfRange   = errors.New("value does not fit the column")
	ErrConcurrency       = errors.New("concurrent update conflict")
)

// NewStore opens the PostgreSQL store, or the in-memory one when no DSN is set.
func NewStore(cfg config.Config, zaplog *zap.Logger) (Store, error) {
	if cfg.DBDsn == "" {
		zaplog.Warn("database uri is not set, using non-durable in-memory store")
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(cfg)
}
