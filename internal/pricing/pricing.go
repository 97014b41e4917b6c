// Package pricing computes order totals, loyalty discount and cashback.
// Everything here is pure: callers fetch partner, catalog and wallet state.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/cashback/internal/model"
)

var (
	ErrEmptyItems           = errors.New("order items list is empty")
	ErrQuantityIncorrect    = errors.New("item quantity must be at least 1")
	ErrPriceIncorrect       = errors.New("item price is negative")
	ErrProductUnavailable   = errors.New("product is unavailable")
	ErrDiscountIncorrect    = errors.New("requested discount is negative")
	ErrDiscountExceedsTotal = errors.New("discount exceeds order total")
	ErrAmountIncorrect      = errors.New("amount must be in whole kopecks and below the ledger limit")
)

// Денежные суммы округляются до копеек
const places = 2

const (
	// суммы хранятся в NUMERIC (14, 2): не больше 12 цифр целой части
	maxIntegerDigits = 12
	// "10.5000" допустимо, длинные хвосты нулей - нет
	maxScale = 16
)

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.New(1, maxIntegerDigits)
)

type Policy struct {
	// потолок скидки баллами, в процентах от суммы заказа
	MaxDiscountPercent decimal.Decimal
	// ставка кэшбэка для партнеров без собственной ставки
	DefaultCashbackPercent decimal.Decimal
}

type Line struct {
	Product  model.Product
	Quantity int
}

type Input struct {
	Lines             []Line
	Partner           model.Partner
	RequestedDiscount decimal.Decimal
	LoyaltyBalance    decimal.Decimal
}

type Quote struct {
	Items          []model.OrderItem
	OrderTotal     decimal.Decimal
	MaxDiscount    decimal.Decimal
	Discount       decimal.Decimal
	FinalAmount    decimal.Decimal
	CashbackRate   decimal.Decimal
	CashbackAmount decimal.Decimal
	UserBalance    decimal.Decimal
}

// Round applies the platform rounding rule: half-up to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(places)
}

// CheckAmount reports whether d has at most two decimal places and fits the
// ledger columns. The exponent is checked before any arithmetic.
func CheckAmount(d decimal.Decimal) error {
	if exp := d.Exponent(); exp < -maxScale || exp > maxIntegerDigits {
		return ErrAmountIncorrect
	}
	if d.Abs().Cmp(maxAmount) >= 0 || !d.Equal(d.Truncate(places)) {
		return ErrAmountIncorrect
	}
	return nil
}

// Percent returns amount * percent / 100 rounded.
func Percent(amount, percent decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(percent).Div(hundred))
}

// CashbackRate returns the partner's rate or the platform default.
func (p Policy) CashbackRate(partner model.Partner) decimal.Decimal {
	if partner.CashbackRate.Valid {
		return partner.CashbackRate.Decimal
	}
	return p.DefaultCashbackPercent
}

// Cashback returns the rate applied and the cashback for an amount paid to the partner.
func (p Policy) Cashback(partner model.Partner, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	rate := p.CashbackRate(partner)
	return rate, Percent(amount, rate)
}

func (p Policy) Calculate(in Input) (Quote, error) {
	if len(in.Lines) == 0 {
		return Quote{}, ErrEmptyItems
	}
	if in.RequestedDiscount.IsNegative() {
		return Quote{}, ErrDiscountIncorrect
	}
	if err := CheckAmount(in.RequestedDiscount); err != nil {
		return Quote{}, fmt.Errorf("requested discount: %w", err)
	}

	var quote Quote
	total := decimal.Zero
	for _, line := range in.Lines {
		if line.Quantity < 1 {
			return Quote{}, fmt.Errorf("%w: product %s", ErrQuantityIncorrect, line.Product.ID)
		}
		if !line.Product.Available {
			return Quote{}, fmt.Errorf("%w: product %s", ErrProductUnavailable, line.Product.ID)
		}
		if line.Product.Price.IsNegative() {
			return Quote{}, fmt.Errorf("%w: product %s", ErrPriceIncorrect, line.Product.ID)
		}
		// снимок цены на момент заказа
		unitPrice := Round(line.Product.Price)
		subtotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		quote.Items = append(quote.Items, model.OrderItem{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			UnitPrice: unitPrice,
			Quantity:  line.Quantity,
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}

	balance := in.LoyaltyBalance
	if balance.IsNegative() {
		balance = decimal.Zero
	}

	quote.OrderTotal = total
	quote.UserBalance = balance
	quote.MaxDiscount = decimal.Min(Percent(total, p.MaxDiscountPercent), balance)
	quote.Discount = decimal.Min(in.RequestedDiscount, quote.MaxDiscount)
	quote.Discount = Round(quote.Discount)
	if quote.Discount.GreaterThan(total) {
		return Quote{}, ErrDiscountExceedsTotal
	}

	quote.FinalAmount = total.Sub(quote.Discount)
	if quote.FinalAmount.IsNegative() {
		quote.FinalAmount = decimal.Zero
	}
	quote.CashbackRate, quote.CashbackAmount = p.Cashback(in.Partner, quote.FinalAmount)

	return quote, nil
}
