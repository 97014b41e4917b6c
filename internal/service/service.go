// Package service is the settlement coordinator: it prices orders and moves
// money between wallets, each operation as one idempotent atomic unit.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/balance"
	"github.com/iurnickita/cashback/internal/catalog"
	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/lifecycle"
	"github.com/iurnickita/cashback/internal/metrics"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/pricing"
	"github.com/iurnickita/cashback/internal/service/config"
	"github.com/iurnickita/cashback/internal/store"
)

type Service interface {
	// Заказы
	Calculate(ctx context.Context, req CalculateRequest) (pricing.Quote, error)
	Confirm(ctx context.Context, req ConfirmRequest) (SettlementResult, error)
	Advance(ctx context.Context, req AdvanceRequest) (model.Order, error)
	GetOrderStatus(ctx context.Context, userID string, orderID string) (OrderStatus, error)
	GetOrders(ctx context.Context, userID string) ([]model.Order, error)

	// Кошелек
	TopUp(ctx context.Context, req TopUpRequest) (WalletResult, error)
	GrantBonus(ctx context.Context, req BonusRequest) (WalletResult, error)
	PayQR(ctx context.Context, req QRPaymentRequest) (QRPaymentResult, error)
	GetBalance(ctx context.Context, userID string) (model.Wallet, error)
	GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
}

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type CalculateRequest struct {
	UserID            string
	PartnerID         string
	Items             []ItemRequest
	RequestedDiscount decimal.Decimal
}

type ConfirmRequest struct {
	UserID            string
	PartnerID         string
	Items             []ItemRequest
	RequestedDiscount decimal.Decimal
	PaymentMethod     model.Currency
	Delivery          model.Delivery
	IdempotencyKey    string
}

// Balances - остатки кошелька после операции
type Balances struct {
	Cash    decimal.Decimal `json:"cash"`
	Loyalty decimal.Decimal `json:"loyalty"`
}

func balancesOf(wallet model.Wallet) Balances {
	return Balances{Cash: wallet.CashBalance, Loyalty: wallet.LoyaltyBalance}
}

// Результаты сохраняются в JSON для повторов по ключу идемпотентности.

type SettlementResult struct {
	Success        bool            `json:"success"`
	OrderID        string          `json:"order_id"`
	NewBalance     Balances        `json:"new_balance"`
	Discount       decimal.Decimal `json:"discount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	CashbackAmount decimal.Decimal `json:"cashback_amount"`
	Replayed       bool            `json:"-"`
}

type AdvanceRequest struct {
	// пусто - событие от партнера, владелец заказа не проверяется
	UserID  string
	OrderID string
	Event   lifecycle.Event
}

type OrderStatus struct {
	OrderID       string
	Status        model.OrderStatus
	PaymentStatus model.PaymentStatus
	FinalAmount   decimal.Decimal
	PaidAt        time.Time
}

type TopUpRequest struct {
	UserID         string
	Amount         decimal.Decimal
	IdempotencyKey string
}

type BonusRequest struct {
	UserID         string
	Amount         decimal.Decimal
	Reason         string
	IdempotencyKey string
}

type WalletResult struct {
	TransactionID string   `json:"transaction_id"`
	NewBalance    Balances `json:"new_balance"`
	Replayed      bool     `json:"-"`
}

type QRPaymentRequest struct {
	UserID         string
	Payload        string
	Amount         decimal.Decimal
	PaymentMethod  model.Currency
	IdempotencyKey string
}

type QRPaymentResult struct {
	PartnerID      string          `json:"partner_id"`
	TransactionID  string          `json:"transaction_id"`
	Amount         decimal.Decimal `json:"amount"`
	CashbackAmount decimal.Decimal `json:"cashback_amount"`
	NewBalance     Balances        `json:"new_balance"`
	Replayed       bool            `json:"-"`
}

type service struct {
	cfg     config.Config
	policy  pricing.Policy
	store   store.Store
	catalog catalog.Catalog
	balance balance.Balance
	guard   *idempotency.Guard
	zaplog  *zap.Logger
}

func NewService(cfg config.Config, store store.Store, catalog catalog.Catalog, zaplog *zap.Logger) Service {
	defaults := config.Default()
	if cfg.SettlementTimeout <= 0 {
		cfg.SettlementTimeout = defaults.SettlementTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.IdempotencyLease <= 0 {
		cfg.IdempotencyLease = defaults.IdempotencyLease
	}

	service := service{
		cfg: cfg,
		policy: pricing.Policy{
			MaxDiscountPercent:     cfg.MaxDiscountPercent,
			DefaultCashbackPercent: cfg.DefaultCashbackPercent,
		},
		store:   store,
		catalog: catalog,
		balance: balance.NewBalance(store),
		guard:   idempotency.NewGuard(store, cfg.IdempotencyLease, zaplog),
		zaplog:  zaplog,
	}

	return &service
}

// inTx выполняет fn в транзакции хранилища с общим таймаутом операции.
// Конфликты блокировок повторяются с растущей паузой.
func (service *service) inTx(ctx context.Context, operation string, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, service.cfg.SettlementTimeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		err := service.store.InTx(ctx, fn)
		if !errors.Is(err, store.ErrConcurrency) || attempt >= service.cfg.MaxRetries {
			return err
		}

		metrics.SettlementRetries.WithLabelValues(operation).Inc()
		service.zaplog.Warn("settlement conflict, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		backoff := service.cfg.RetryBackoff * time.Duration(1<<attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// finish classifies err, records the outcome and logs failures.
func (service *service) finish(operation string, started time.Time, replayed bool, err error, fields ...zap.Field) error {
	err = classify(err)

	outcome := outcomeOf(err)
	if replayed {
		outcome = "replayed"
		metrics.IdempotentReplays.WithLabelValues(operation).Inc()
	}
	metrics.ObserveSettlement(operation, outcome, started)

	if err != nil {
		fields = append(fields, zap.String("operation", operation), zap.Error(err))
		if errors.Is(err, ErrPersistence) {
			service.zaplog.Error("settlement failed", fields...)
		} else {
			service.zaplog.Info("settlement rejected", fields...)
		}
	}
	return err
}

func validAmount(amount decimal.Decimal) bool {
	return pricing.CheckAmount(amount) == nil && amount.IsPositive()
}

func (service *service) GetBalance(ctx context.Context, userID string) (model.Wallet, error) {
	wallet, err := service.balance.Get(ctx, userID)
	return wallet, classify(err)
}

func (service *service) GetTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	history, err := service.balance.GetHistory(ctx, userID)
	return history, classify(err)
}
