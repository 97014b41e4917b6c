package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/metrics"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/qrcode"
	"github.com/iurnickita/cashback/internal/store"
)

func (service *service) TopUp(ctx context.Context, req TopUpRequest) (WalletResult, error) {
	started := time.Now()

	result, replayed, err := service.credit(ctx, idempotency.OperationTopup, req.UserID, req.IdempotencyKey,
		model.Leg{
			Type:      model.TransactionTopup,
			Currency:  model.CurrencyCash,
			Amount:    req.Amount,
			Reference: req.IdempotencyKey,
		})
	result.Replayed = replayed
	return result, service.finish(idempotency.OperationTopup, started, replayed, err,
		zap.String("user", req.UserID),
		zap.String("key", req.IdempotencyKey))
}

func (service *service) GrantBonus(ctx context.Context, req BonusRequest) (WalletResult, error) {
	started := time.Now()

	reference := req.Reason
	if reference == "" {
		reference = req.IdempotencyKey
	}
	result, replayed, err := service.credit(ctx, idempotency.OperationBonus, req.UserID, req.IdempotencyKey,
		model.Leg{
			Type:      model.TransactionBonus,
			Currency:  model.CurrencyLoyalty,
			Amount:    req.Amount,
			Reference: reference,
		})
	result.Replayed = replayed
	return result, service.finish(idempotency.OperationBonus, started, replayed, err,
		zap.String("user", req.UserID),
		zap.String("key", req.IdempotencyKey))
}

// credit - идемпотентное зачисление одной проводкой
func (service *service) credit(ctx context.Context, operation string, userID string, key string, leg model.Leg) (WalletResult, bool, error) {
	if userID == "" {
		return WalletResult{}, false, validationError("user is not specified")
	}
	if !validAmount(leg.Amount) {
		return WalletResult{}, false, validationError("amount must be positive with at most 2 decimal places")
	}
	if len(leg.Reference) > model.MaxReferenceLen {
		return WalletResult{}, false, validationError("reference is longer than %d bytes", model.MaxReferenceLen)
	}

	scope := idempotency.Scope{UserID: userID, Operation: operation, Key: key}
	return idempotency.Execute(ctx, service.guard, scope,
		func(ctx context.Context, seal idempotency.SealFunc[WalletResult]) (WalletResult, error) {
			var result WalletResult
			err := service.inTx(ctx, operation, func(ctx context.Context, tx store.Tx) error {
				wallet, entries, err := tx.WalletApplyDelta(ctx, userID, model.NewDelta(leg))
				if err != nil {
					return err
				}
				result = WalletResult{
					TransactionID: entries[0].ID,
					NewBalance:    balancesOf(wallet),
				}
				return seal(ctx, tx, result)
			})
			return result, err
		})
}

func (service *service) PayQR(ctx context.Context, req QRPaymentRequest) (QRPaymentResult, error) {
	started := time.Now()

	result, replayed, err := service.payQR(ctx, req)
	result.Replayed = replayed
	err = service.finish(idempotency.OperationQRPayment, started, replayed, err,
		zap.String("user", req.UserID),
		zap.String("key", req.IdempotencyKey))
	if err == nil && !replayed && result.CashbackAmount.IsPositive() {
		metrics.CashbackCredited.Add(result.CashbackAmount.InexactFloat64())
	}
	return result, err
}

func (service *service) payQR(ctx context.Context, req QRPaymentRequest) (QRPaymentResult, bool, error) {
	if req.UserID == "" {
		return QRPaymentResult{}, false, validationError("user is not specified")
	}
	if !req.PaymentMethod.Valid() {
		return QRPaymentResult{}, false, validationError("payment method %q is not supported", req.PaymentMethod)
	}
	if !validAmount(req.Amount) {
		return QRPaymentResult{}, false, validationError("amount must be positive with at most 2 decimal places")
	}
	partnerID, err := qrcode.Decode(req.Payload)
	if err != nil {
		return QRPaymentResult{}, false, err
	}

	scope := idempotency.Scope{UserID: req.UserID, Operation: idempotency.OperationQRPayment, Key: req.IdempotencyKey}
	return idempotency.Execute(ctx, service.guard, scope,
		func(ctx context.Context, seal idempotency.SealFunc[QRPaymentResult]) (QRPaymentResult, error) {
			partner, err := service.catalog.Partner(ctx, partnerID)
			if err != nil {
				return QRPaymentResult{}, err
			}
			if !partner.Active {
				return QRPaymentResult{}, fmt.Errorf("%w: partner %s is inactive", store.ErrNoRows, partnerID)
			}
			_, cashback := service.policy.Cashback(partner, req.Amount)
			reference := "qr:" + partner.ID

			// у QR-оплаты нет этапа выдачи заказа: кэшбэк в той же транзакции
			legs := []model.Leg{{
				Type:      model.TransactionPayment,
				Currency:  req.PaymentMethod,
				Amount:    req.Amount.Neg(),
				Reference: reference,
			}}
			if cashback.IsPositive() {
				legs = append(legs, model.Leg{
					Type:      model.TransactionCashback,
					Currency:  model.CurrencyLoyalty,
					Amount:    cashback,
					Reference: reference,
				})
			}

			var result QRPaymentResult
			err = service.inTx(ctx, idempotency.OperationQRPayment, func(ctx context.Context, tx store.Tx) error {
				wallet, entries, err := tx.WalletApplyDelta(ctx, req.UserID, model.NewDelta(legs...))
				if err != nil {
					return err
				}
				result = QRPaymentResult{
					PartnerID:      partner.ID,
					TransactionID:  entries[0].ID,
					Amount:         req.Amount,
					CashbackAmount: cashback,
					NewBalance:     balancesOf(wallet),
				}
				return seal(ctx, tx, result)
			})
			return result, err
		})
}
