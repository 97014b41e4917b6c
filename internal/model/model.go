package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Кошелек пользователя

type Currency string

const (
	CurrencyCash    Currency = "cash"
	CurrencyLoyalty Currency = "loyalty"
)

func (c Currency) Valid() bool {
	return c == CurrencyCash || c == CurrencyLoyalty
}

type Wallet struct {
	UserID         string
	CashBalance    decimal.Decimal
	LoyaltyBalance decimal.Decimal
	TotalEarned    decimal.Decimal
	TotalSpent     decimal.Decimal
	UpdatedAt      time.Time
}

func NewWallet(userID string) Wallet {
	return Wallet{
		UserID:         userID,
		CashBalance:    decimal.Zero,
		LoyaltyBalance: decimal.Zero,
		TotalEarned:    decimal.Zero,
		TotalSpent:     decimal.Zero,
	}
}

// Balance возвращает остаток в указанной валюте.
func (w Wallet) Balance(c Currency) decimal.Decimal {
	if c == CurrencyLoyalty {
		return w.LoyaltyBalance
	}
	return w.CashBalance
}

// Журнал операций

type TransactionType string

const (
	TransactionTopup    TransactionType = "topup"
	TransactionDiscount TransactionType = "discount"
	TransactionBonus    TransactionType = "bonus"
	TransactionRefund   TransactionType = "refund"
	TransactionPayment  TransactionType = "payment"
	TransactionCashback TransactionType = "cashback"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// длина поля reference в журнале
const MaxReferenceLen = 128

type Transaction struct {
	ID            string
	UserID        string
	OrderID       string
	Type          TransactionType
	Currency      Currency
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Status        TransactionStatus
	Reference     string
	CreatedAt     time.Time
	CompletedAt   time.Time
}

// Leg - одна проводка изменения баланса.
// Amount со знаком: положительный - зачисление, отрицательный - списание.
type Leg struct {
	Type      TransactionType
	Currency  Currency
	Amount    decimal.Decimal
	OrderID   string
	Reference string
}

// Delta - набор проводок, применяемых к кошельку атомарно.
type Delta struct {
	Legs []Leg
}

func NewDelta(legs ...Leg) Delta {
	return Delta{Legs: legs}
}

func (d Delta) Cash() decimal.Decimal {
	return d.sum(CurrencyCash)
}

func (d Delta) Loyalty() decimal.Decimal {
	return d.sum(CurrencyLoyalty)
}

func (d Delta) sum(c Currency) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range d.Legs {
		if leg.Currency == c {
			total = total.Add(leg.Amount)
		}
	}
	return total
}

// Заказы

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusReady      OrderStatus = "ready"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Delivery struct {
	Type    string
	Address string
	Phone   string
	Comment string
}

type OrderItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Subtotal  decimal.Decimal
}

type Order struct {
	ID             string
	UserID         string
	PartnerID      string
	Items          []OrderItem
	OrderTotal     decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
	CashbackRate   decimal.Decimal
	CashbackAmount decimal.Decimal
	PaymentMethod  Currency
	PaymentStatus  PaymentStatus
	Status         OrderStatus
	IdempotencyKey string
	Delivery       Delivery
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         time.Time
	CompletedAt    time.Time
}

// Партнеры и каталог

type Partner struct {
	ID   string
	Name string
	// процент кэшбэка; не задан - используется ставка платформы
	CashbackRate decimal.NullDecimal
	Active       bool
}

type Product struct {
	ID        string
	PartnerID string
	Name      string
	Price     decimal.Decimal
	Available bool
}
