package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/model"
)

func topup(amount string) model.Delta {
	return model.NewDelta(model.Leg{
		Type:     model.TransactionTopup,
		Currency: model.CurrencyCash,
		Amount:   decimal.RequireFromString(amount),
	})
}

func applyOne(ctx context.Context, store Store, userID string, delta model.Delta) (model.Wallet, error) {
	var wallet model.Wallet
	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		wallet, _, err = tx.WalletApplyDelta(ctx, userID, delta)
		return err
	})
	return wallet, err
}

func TestMemoryWalletLazy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	wallet, err := store.WalletGet(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", wallet.UserID)
	require.True(t, wallet.CashBalance.IsZero())

	transactions, err := store.TransactionGetList(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, transactions)
}

func TestMemoryApplyDelta(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	wallet, err := applyOne(ctx, store, "u1", topup("100.00"))
	require.NoError(t, err)
	require.Equal(t, "100.00", wallet.CashBalance.StringFixed(2))

	// списание сверх остатка ничего не меняет
	_, err = applyOne(ctx, store, "u1", topup("-100.01"))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	wallet, err = store.WalletGet(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "100.00", wallet.CashBalance.StringFixed(2))

	transactions, err := store.TransactionGetList(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	require.Equal(t, model.TransactionTopup, transactions[0].Type)
}

func TestMemoryRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, _, err := tx.WalletApplyDelta(ctx, "u1", topup("10.00")); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	wallet, err := store.WalletGet(ctx, "u1")
	require.NoError(t, err)
	require.True(t, wallet.CashBalance.IsZero())
	transactions, err := store.TransactionGetList(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, transactions)
}

func TestMemoryRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ctx := context.Background()
	properties.Property("+X then -X restores the balance", prop.ForAll(
		func(start, cents int64) bool {
			store := NewMemoryStore()
			userID := uuid.NewString()
			initial := decimal.New(start, -2)
			x := decimal.New(cents, -2)

			if start > 0 {
				if _, err := applyOne(ctx, store, userID, topup(initial.String())); err != nil {
					return false
				}
			}
			if _, err := applyOne(ctx, store, userID, topup(x.String())); err != nil {
				return false
			}
			wallet, err := applyOne(ctx, store, userID, topup(x.Neg().String()))
			if err != nil {
				return false
			}
			return wallet.CashBalance.Equal(initial)
		},
		gen.Int64Range(0, 10_000_000),
		gen.Int64Range(1, 10_000_000),
	))

	properties.TestingRun(t)
}

func TestMemoryConcurrentDebits(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := applyOne(ctx, store, "u1", topup("100.00"))
	require.NoError(t, err)

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := applyOne(ctx, store, "u1", topup("-7.00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 14, success)
	require.Equal(t, workers-14, rejected)

	wallet, err := store.WalletGet(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "2.00", wallet.CashBalance.StringFixed(2))

	// снимки журнала образуют непрерывную цепочку
	transactions, err := store.TransactionGetList(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, transactions, 15)
	for i := 1; i < len(transactions); i++ {
		require.True(t, transactions[i].BalanceBefore.Equal(transactions[i-1].BalanceAfter))
	}
}

func TestMemoryLockHonoursContext(t *testing.T) {
	store := NewMemoryStore()
	locked := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.WalletLock(ctx, "u1"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.WalletLock(ctx, "u1")
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func testOrder(id, userID, key string) model.Order {
	now := time.Now()
	return model.Order{
		ID:             id,
		UserID:         userID,
		PartnerID:      "1001",
		Items:          []model.OrderItem{{ProductID: "p1", Name: "Latte", UnitPrice: decimal.NewFromInt(5), Quantity: 2, Subtotal: decimal.NewFromInt(10)}},
		OrderTotal:     decimal.NewFromInt(10),
		Discount:       decimal.Zero,
		FinalAmount:    decimal.NewFromInt(10),
		CashbackRate:   decimal.NewFromInt(5),
		CashbackAmount: decimal.RequireFromString("0.50"),
		PaymentMethod:  model.CurrencyCash,
		PaymentStatus:  model.PaymentStatusPending,
		Status:         model.OrderStatusPending,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryOrders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.OrderPost(ctx, testOrder("o1", "u1", "k1"))
	})
	require.NoError(t, err)

	// тот же ключ идемпотентности у того же пользователя
	err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.OrderPost(ctx, testOrder("o2", "u1", "k1"))
	})
	require.ErrorIs(t, err, ErrAlreadyExists)

	// у другого пользователя ключ свободен
	err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.OrderPost(ctx, testOrder("o3", "u2", "k1"))
	})
	require.NoError(t, err)

	err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		order, err := tx.OrderLock(ctx, "o1")
		if err != nil {
			return err
		}
		order.Status = model.OrderStatusPaid
		order.PaymentStatus = model.PaymentStatusPaid
		order.PaidAt = time.Now()
		return tx.OrderPut(ctx, order)
	})
	require.NoError(t, err)

	order, err := store.OrderGet(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPaid, order.Status)
	require.False(t, order.PaidAt.IsZero())
	require.Len(t, order.Items, 1)

	orders, err := store.OrderGetList(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, "o1", orders[0].ID)

	_, err = store.OrderGet(ctx, "missing")
	require.ErrorIs(t, err, ErrNoRows)
}

func TestMemoryCatalog(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.ProductPut(ctx, model.Product{ID: "p1", PartnerID: "1001"})
	require.ErrorIs(t, err, ErrNoRows)

	require.NoError(t, store.PartnerPut(ctx, model.Partner{ID: "1001", Name: "Coffee", Active: true}))
	require.NoError(t, store.ProductPut(ctx, model.Product{ID: "p1", PartnerID: "1001", Name: "Latte", Price: decimal.NewFromInt(5), Available: true}))

	products, err := store.ProductGetList(ctx, "1001", []string{"p1"})
	require.NoError(t, err)
	require.Len(t, products, 1)

	_, err = store.ProductGetList(ctx, "1002", []string{"p1"})
	require.ErrorIs(t, err, ErrNoRows)

	_, err = store.PartnerGet(ctx, "1002")
	require.ErrorIs(t, err, ErrNoRows)
}

func TestMemoryIdempotencyLease(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	scope := idempotency.Scope{UserID: "u1", Operation: idempotency.OperationTopup, Key: "k1"}
	first := idempotency.Ticket{Scope: scope, Token: "t1"}
	second := idempotency.Ticket{Scope: scope, Token: "t2"}

	_, reserved, err := store.Reserve(ctx, first, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, reserved)

	// живая отметка не перехватывается
	rec, reserved, err := store.Reserve(ctx, second, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, reserved)
	require.Equal(t, idempotency.StatusInProgress, rec.Status)

	// истекшая - перехватывается, старый владелец теряет право записи
	_, reserved, err = store.Reserve(ctx, second, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, reserved)

	err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Seal(ctx, first, []byte(`"stale"`))
	})
	require.ErrorIs(t, err, idempotency.ErrLeaseLost)

	// чужая отметка не снимается
	require.NoError(t, store.Release(ctx, first))

	err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Seal(ctx, second, []byte(`"done"`))
	})
	require.NoError(t, err)

	rec, reserved, err = store.Reserve(ctx, first, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.False(t, reserved)
	require.Equal(t, idempotency.StatusCompleted, rec.Status)
	require.Equal(t, `"done"`, string(rec.Result))
}

func TestMemorySealCheckedAtCommit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	scope := idempotency.Scope{UserID: "u1", Operation: idempotency.OperationTopup, Key: "k1"}
	first := idempotency.Ticket{Scope: scope, Token: "t1"}

	_, reserved, err := store.Reserve(ctx, first, time.Now())
	require.NoError(t, err)
	require.True(t, reserved)

	err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, _, err := tx.WalletApplyDelta(ctx, "u1", topup("10.00")); err != nil {
			return err
		}
		if err := tx.Seal(ctx, first, []byte(`{}`)); err != nil {
			return err
		}
		// отметку перехватили до фиксации
		_, _, err := store.Reserve(ctx, idempotency.Ticket{Scope: scope, Token: "t2"}, time.Now().Add(time.Minute))
		return err
	})
	require.ErrorIs(t, err, idempotency.ErrLeaseLost)

	wallet, err := store.WalletGet(ctx, "u1")
	require.NoError(t, err)
	require.True(t, wallet.CashBalance.IsZero())
}
