// Package balance is the read side of user wallets.
package balance

import (
	"context"
	"errors"

	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/store"
)

var ErrNoUser = errors.New("user is not specified")

type Balance interface {
	Get(ctx context.Context, userID string) (model.Wallet, error)
	// GetHistory returns the user's ledger newest first, optionally filtered by type.
	GetHistory(ctx context.Context, userID string, types ...model.TransactionType) ([]model.Transaction, error)
}

type balance struct {
	store store.Store
}

func NewBalance(store store.Store) Balance {
	balance := balance{store: store}
	return &balance
}

func (balance *balance) Get(ctx context.Context, userID string) (model.Wallet, error) {
	if userID == "" {
		return model.Wallet{}, ErrNoUser
	}

	return balance.store.WalletGet(ctx, userID)
}

func (balance *balance) GetHistory(ctx context.Context, userID string, types ...model.TransactionType) ([]model.Transaction, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	transactions, err := balance.store.TransactionGetList(ctx, userID)
	if err != nil {
		return nil, err
	}

	history := make([]model.Transaction, 0, len(transactions))
	for i := len(transactions) - 1; i >= 0; i-- {
		if len(types) == 0 || contains(types, transactions[i].Type) {
			history = append(history, transactions[i])
		}
	}
	return history, nil
}

func contains(types []model.TransactionType, t model.TransactionType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
