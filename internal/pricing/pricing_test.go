package pricing

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/cashback/internal/model"
)

var testPolicy = Policy{
	MaxDiscountPercent:     decimal.NewFromInt(20),
	DefaultCashbackPercent: decimal.NewFromInt(3),
}

func product(id string, price string) model.Product {
	return model.Product{ID: id, PartnerID: "1001", Name: "product " + id, Price: decimal.RequireFromString(price), Available: true}
}

func partnerWithRate(rate string) model.Partner {
	p := model.Partner{ID: "1001", Name: "Coffee", Active: true}
	if rate != "" {
		p.CashbackRate = decimal.NewNullDecimal(decimal.RequireFromString(rate))
	}
	return p
}

func TestCalculateClampsDiscount(t *testing.T) {
	quote, err := testPolicy.Calculate(Input{
		Lines:             []Line{{Product: product("a", "250.00"), Quantity: 4}},
		Partner:           partnerWithRate("5"),
		RequestedDiscount: decimal.RequireFromString("300.00"),
		LoyaltyBalance:    decimal.RequireFromString("1000.00"),
	})
	require.NoError(t, err)

	require.Equal(t, "1000.00", quote.OrderTotal.StringFixed(2))
	require.Equal(t, "200.00", quote.MaxDiscount.StringFixed(2))
	require.Equal(t, "200.00", quote.Discount.StringFixed(2))
	require.Equal(t, "800.00", quote.FinalAmount.StringFixed(2))
	require.Equal(t, "40.00", quote.CashbackAmount.StringFixed(2))
	require.Len(t, quote.Items, 1)
	require.Equal(t, "1000.00", quote.Items[0].Subtotal.StringFixed(2))
}

func TestCalculateDiscountLimitedByBalance(t *testing.T) {
	quote, err := testPolicy.Calculate(Input{
		Lines:             []Line{{Product: product("a", "500.00"), Quantity: 2}},
		Partner:           partnerWithRate(""),
		RequestedDiscount: decimal.RequireFromString("150.00"),
		LoyaltyBalance:    decimal.RequireFromString("75.50"),
	})
	require.NoError(t, err)

	require.Equal(t, "75.50", quote.MaxDiscount.StringFixed(2))
	require.Equal(t, "75.50", quote.Discount.StringFixed(2))
	require.Equal(t, "924.50", quote.FinalAmount.StringFixed(2))
	// ставка платформы 3%: 27.735 -> 27.74
	require.Equal(t, "3", quote.CashbackRate.String())
	require.Equal(t, "27.74", quote.CashbackAmount.StringFixed(2))
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	quote, err := testPolicy.Calculate(Input{
		Lines:   []Line{{Product: product("a", "0.50"), Quantity: 1}},
		Partner: partnerWithRate("5"),
	})
	require.NoError(t, err)
	// 0.025 -> 0.03
	require.Equal(t, "0.03", quote.CashbackAmount.StringFixed(2))
}

func TestCalculateErrors(t *testing.T) {
	unavailable := product("b", "10.00")
	unavailable.Available = false

	tests := []struct {
		name    string
		policy  Policy
		input   Input
		wantErr error
	}{
		{
			name:    "empty items",
			policy:  testPolicy,
			input:   Input{},
			wantErr: ErrEmptyItems,
		},
		{
			name:    "zero quantity",
			policy:  testPolicy,
			input:   Input{Lines: []Line{{Product: product("a", "10.00"), Quantity: 0}}},
			wantErr: ErrQuantityIncorrect,
		},
		{
			name:    "unavailable product",
			policy:  testPolicy,
			input:   Input{Lines: []Line{{Product: product("a", "10.00"), Quantity: 1}, {Product: unavailable, Quantity: 1}}},
			wantErr: ErrProductUnavailable,
		},
		{
			name:    "negative price",
			policy:  testPolicy,
			input:   Input{Lines: []Line{{Product: product("a", "-1.00"), Quantity: 1}}},
			wantErr: ErrPriceIncorrect,
		},
		{
			name:   "negative discount",
			policy: testPolicy,
			input: Input{
				Lines:             []Line{{Product: product("a", "10.00"), Quantity: 1}},
				RequestedDiscount: decimal.RequireFromString("-1"),
			},
			wantErr: ErrDiscountIncorrect,
		},
		{
			name:   "discount below kopeck",
			policy: testPolicy,
			input: Input{
				Lines:             []Line{{Product: product("a", "10.00"), Quantity: 1}},
				RequestedDiscount: decimal.RequireFromString("0.005"),
				LoyaltyBalance:    decimal.RequireFromString("100.00"),
			},
			wantErr: ErrAmountIncorrect,
		},
		{
			name:   "discount with huge exponent",
			policy: testPolicy,
			input: Input{
				Lines:             []Line{{Product: product("a", "10.00"), Quantity: 1}},
				RequestedDiscount: decimal.RequireFromString("1e-3000000"),
			},
			wantErr: ErrAmountIncorrect,
		},
		{
			name:   "misconfigured ceiling",
			policy: Policy{MaxDiscountPercent: decimal.NewFromInt(150)},
			input: Input{
				Lines:             []Line{{Product: product("a", "10.00"), Quantity: 1}},
				RequestedDiscount: decimal.RequireFromString("15.00"),
				LoyaltyBalance:    decimal.RequireFromString("100.00"),
			},
			wantErr: ErrDiscountExceedsTotal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.policy.Calculate(tt.input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckAmount(t *testing.T) {
	for _, amount := range []string{"0", "0.01", "10", "10.5000", "-3.20", "999999999999.99"} {
		require.NoError(t, CheckAmount(decimal.RequireFromString(amount)), amount)
	}
	for _, amount := range []string{"0.005", "10.001", "1e-30000000", "1e30000000", "1000000000000", "-1000000000000.00"} {
		require.ErrorIs(t, CheckAmount(decimal.RequireFromString(amount)), ErrAmountIncorrect, amount)
	}
}

func TestCalculateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("final = total - discount, 0 <= discount <= total", prop.ForAll(
		func(prices []int64, quantity int, requested int64, balance int64) bool {
			lines := make([]Line, 0, len(prices))
			for i, cents := range prices {
				p := product(string(rune('a'+i%26)), "0")
				p.Price = decimal.New(cents, -2)
				lines = append(lines, Line{Product: p, Quantity: quantity})
			}
			quote, err := testPolicy.Calculate(Input{
				Lines:             lines,
				Partner:           partnerWithRate("5"),
				RequestedDiscount: decimal.New(requested, -2),
				LoyaltyBalance:    decimal.New(balance, -2),
			})
			if len(prices) == 0 {
				return errors.Is(err, ErrEmptyItems)
			}
			if err != nil {
				return false
			}
			return quote.FinalAmount.Equal(quote.OrderTotal.Sub(quote.Discount)) &&
				!quote.FinalAmount.IsNegative() &&
				!quote.Discount.IsNegative() &&
				quote.Discount.LessThanOrEqual(quote.OrderTotal) &&
				quote.Discount.LessThanOrEqual(decimal.New(requested, -2)) &&
				quote.Discount.LessThanOrEqual(decimal.New(balance, -2)) &&
				!quote.CashbackAmount.IsNegative()
		},
		gen.SliceOf(gen.Int64Range(0, 10_000_000)),
		gen.IntRange(1, 20),
		gen.Int64Range(0, 100_000_000),
		gen.Int64Range(0, 100_000_000),
	))

	properties.TestingRun(t)
}
