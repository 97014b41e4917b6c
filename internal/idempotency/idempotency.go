// Package idempotency guarantees that a financial operation identified by
// (user, operation, key) commits at most once.
//
// A fresh key is reserved with an in_progress marker and a lease token. The
// operation seals its result inside its own database transaction, so the
// mutation and the stored result become visible together. Later calls either
// see the marker (ErrInProgress) or replay the sealed result.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Виды операций
const (
	OperationOrderConfirm = "order_confirm"
	OperationTopup        = "topup"
	OperationQRPayment    = "qr_payment"
	OperationBonus        = "bonus"
)

// ключ хранится в VARCHAR (128)
const MaxKeyLen = 128

var (
	ErrKeyMissing = errors.New("idempotency key is empty")
	ErrKeyTooLong = errors.New("idempotency key is longer than 128 bytes")
	ErrInProgress = errors.New("operation with this idempotency key is in progress")
	ErrLeaseLost  = errors.New("idempotency lease lost")
	ErrNotSealed  = errors.New("operation finished without sealing its result")
)

// Scope ключа: один и тот же ключ у разных пользователей или операций не конфликтует
type Scope struct {
	UserID    string
	Operation string
	Key       string
}

func (s Scope) String() string {
	return s.UserID + "/" + s.Operation + "/" + s.Key
}

// Ticket - право владельца отметки in_progress завершить операцию.
type Ticket struct {
	Scope Scope
	Token string
}

type Record struct {
	Scope     Scope
	Status    Status
	Token     string
	Result    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Storage is the durable key store.
type Storage interface {
	// Reserve puts an in_progress marker for the ticket. If a record already
	// exists and is not an expired marker, it is returned with reserved=false.
	Reserve(ctx context.Context, ticket Ticket, staleBefore time.Time) (rec Record, reserved bool, err error)
	// Release removes the ticket's in_progress marker. Completed records stay.
	Release(ctx context.Context, ticket Ticket) error
}

// Sealer is implemented by a database transaction of the operation.
type Sealer interface {
	Seal(ctx context.Context, ticket Ticket, result []byte) error
}

// SealFunc stores result within the operation's transaction.
type SealFunc[T any] func(ctx context.Context, sealer Sealer, result T) error

type Guard struct {
	storage Storage
	lease   time.Duration
	zaplog  *zap.Logger
}

func NewGuard(storage Storage, lease time.Duration, zaplog *zap.Logger) *Guard {
	return &Guard{storage: storage, lease: lease, zaplog: zaplog}
}

// Execute runs op at most once for scope. replayed is true when the result
// comes from an earlier committed execution.
func Execute[T any](ctx context.Context, g *Guard, scope Scope, op func(ctx context.Context, seal SealFunc[T]) (T, error)) (result T, replayed bool, err error) {
	if scope.Key == "" {
		return result, false, ErrKeyMissing
	}
	if len(scope.Key) > MaxKeyLen {
		return result, false, ErrKeyTooLong
	}

	ticket := Ticket{Scope: scope, Token: uuid.NewString()}
	rec, reserved, err := g.storage.Reserve(ctx, ticket, time.Now().Add(-g.lease))
	if err != nil {
		return result, false, err
	}
	if !reserved {
		if rec.Status != StatusCompleted {
			return result, false, ErrInProgress
		}
		if err = json.Unmarshal(rec.Result, &result); err != nil {
			return result, false, fmt.Errorf("decode stored result for %s: %w", scope, err)
		}
		g.zaplog.Info("idempotent replay",
			zap.String("user", scope.UserID),
			zap.String("operation", scope.Operation),
			zap.String("key", scope.Key))
		return result, true, nil
	}

	sealed := false
	seal := func(ctx context.Context, sealer Sealer, res T) error {
		body, err := json.Marshal(res)
		if err != nil {
			return err
		}
		if err = sealer.Seal(ctx, ticket, body); err != nil {
			return err
		}
		sealed = true
		return nil
	}

	result, err = op(ctx, seal)
	if err != nil {
		g.release(ctx, ticket)
		return result, false, err
	}
	if !sealed {
		// результат не зафиксирован, отметку не снимаем: повтор мог бы задвоить эффект
		return result, false, ErrNotSealed
	}
	return result, false, nil
}

func (g *Guard) release(ctx context.Context, ticket Ticket) {
	// запрос мог быть отменен клиентом, отметку все равно снимаем
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := g.storage.Release(ctx, ticket); err != nil {
		// отметка истечет по lease
		g.zaplog.Warn("idempotency release failed",
			zap.String("scope", ticket.Scope.String()),
			zap.Error(err))
	}
}
