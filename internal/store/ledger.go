package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iurnickita/cashback/internal/model"
)

// applyDelta computes the wallet after delta and the ledger rows describing
// every leg. It is shared by both backends so their arithmetic cannot diverge.
func applyDelta(wallet model.Wallet, delta model.Delta, now time.Time) (model.Wallet, []model.Transaction, error) {
	if len(delta.Legs) == 0 {
		return model.Wallet{}, nil, ErrDeltaEmpty
	}

	entries := make([]model.Transaction, 0, len(delta.Legs))
	for _, leg := range delta.Legs {
		if leg.Amount.IsZero() {
			return model.Wallet{}, nil, ErrAmountIncorrect
		}
		if !leg.Currency.Valid() {
			return model.Wallet{}, nil, ErrCurrencyIncorrect
		}

		before := wallet.Balance(leg.Currency)
		after := before.Add(leg.Amount)
		// проверяется каждый промежуточный остаток, не только итоговый
		if after.IsNegative() {
			return model.Wallet{}, nil, fmt.Errorf("%w: %s %s, need %s",
				ErrInsufficientFunds, leg.Currency, before.StringFixed(2), leg.Amount.Neg().StringFixed(2))
		}

		switch leg.Currency {
		case model.CurrencyCash:
			wallet.CashBalance = after
		case model.CurrencyLoyalty:
			wallet.LoyaltyBalance = after
		}

		switch {
		case leg.Amount.IsNegative() && (leg.Type == model.TransactionPayment || leg.Type == model.TransactionDiscount):
			wallet.TotalSpent = wallet.TotalSpent.Add(leg.Amount.Neg())
		case leg.Amount.IsPositive() && (leg.Type == model.TransactionCashback || leg.Type == model.TransactionBonus):
			wallet.TotalEarned = wallet.TotalEarned.Add(leg.Amount)
		}

		entries = append(entries, model.Transaction{
			ID:            uuid.NewString(),
			UserID:        wallet.UserID,
			OrderID:       leg.OrderID,
			Type:          leg.Type,
			Currency:      leg.Currency,
			Amount:        leg.Amount.Abs(),
			BalanceBefore: before,
			BalanceAfter:  after,
			Status:        model.TransactionStatusCompleted,
			Reference:     leg.Reference,
			CreatedAt:     now,
			CompletedAt:   now,
		})
	}
	wallet.UpdatedAt = now

	return wallet, entries, nil
}
