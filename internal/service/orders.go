package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/catalog"
	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/lifecycle"
	"github.com/iurnickita/cashback/internal/metrics"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/pricing"
	"github.com/iurnickita/cashback/internal/store"
)

const (
	operationCalculate = "order_calculate"
	operationAdvance   = "order_advance"
)

// lines загружает партнера и позиции заказа из каталога
func (service *service) lines(ctx context.Context, partnerID string, items []ItemRequest) (model.Partner, []pricing.Line, error) {
	if partnerID == "" {
		return model.Partner{}, nil, validationError("partner is not specified")
	}
	if len(items) == 0 {
		return model.Partner{}, nil, pricing.ErrEmptyItems
	}

	partner, err := service.catalog.Partner(ctx, partnerID)
	if err != nil {
		return model.Partner{}, nil, err
	}
	if !partner.Active {
		return model.Partner{}, nil, errors.Join(catalog.ErrNotFound, errors.New("partner "+partnerID+" is inactive"))
	}

	productIDs := make([]string, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}
	products, err := service.catalog.Products(ctx, partnerID, productIDs)
	if err != nil {
		return model.Partner{}, nil, err
	}

	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		lines[i] = pricing.Line{Product: products[i], Quantity: item.Quantity}
	}
	return partner, lines, nil
}

func (service *service) Calculate(ctx context.Context, req CalculateRequest) (pricing.Quote, error) {
	started := time.Now()

	quote, err := service.calculate(ctx, req)
	return quote, service.finish(operationCalculate, started, false, err,
		zap.String("user", req.UserID),
		zap.String("partner", req.PartnerID))
}

func (service *service) calculate(ctx context.Context, req CalculateRequest) (pricing.Quote, error) {
	if req.UserID == "" {
		return pricing.Quote{}, validationError("user is not specified")
	}
	partner, lines, err := service.lines(ctx, req.PartnerID, req.Items)
	if err != nil {
		return pricing.Quote{}, err
	}
	wallet, err := service.store.WalletGet(ctx, req.UserID)
	if err != nil {
		return pricing.Quote{}, err
	}

	return service.policy.Calculate(pricing.Input{
		Lines:             lines,
		Partner:           partner,
		RequestedDiscount: req.RequestedDiscount,
		LoyaltyBalance:    wallet.LoyaltyBalance,
	})
}

func (service *service) Confirm(ctx context.Context, req ConfirmRequest) (SettlementResult, error) {
	started := time.Now()

	result, replayed, err := service.confirm(ctx, req)
	result.Replayed = replayed
	err = service.finish(idempotency.OperationOrderConfirm, started, replayed, err,
		zap.String("user", req.UserID),
		zap.String("partner", req.PartnerID),
		zap.String("key", req.IdempotencyKey))
	if err == nil && !replayed {
		service.zaplog.Info("order confirmed",
			zap.String("user", req.UserID),
			zap.String("order", result.OrderID),
			zap.String("final_amount", result.FinalAmount.StringFixed(2)))
	}
	return result, err
}

func (service *service) confirm(ctx context.Context, req ConfirmRequest) (SettlementResult, bool, error) {
	if req.UserID == "" {
		return SettlementResult{}, false, validationError("user is not specified")
	}
	if !req.PaymentMethod.Valid() {
		return SettlementResult{}, false, validationError("payment method %q is not supported", req.PaymentMethod)
	}

	scope := idempotency.Scope{UserID: req.UserID, Operation: idempotency.OperationOrderConfirm, Key: req.IdempotencyKey}
	return idempotency.Execute(ctx, service.guard, scope,
		func(ctx context.Context, seal idempotency.SealFunc[SettlementResult]) (SettlementResult, error) {
			partner, lines, err := service.lines(ctx, req.PartnerID, req.Items)
			if err != nil {
				return SettlementResult{}, err
			}

			var result SettlementResult
			err = service.inTx(ctx, idempotency.OperationOrderConfirm, func(ctx context.Context, tx store.Tx) error {
				wallet, err := tx.WalletLock(ctx, req.UserID)
				if err != nil {
					return err
				}

				// расчет по заблокированному балансу
				quote, err := service.policy.Calculate(pricing.Input{
					Lines:             lines,
					Partner:           partner,
					RequestedDiscount: req.RequestedDiscount,
					LoyaltyBalance:    wallet.LoyaltyBalance,
				})
				if err != nil {
					return err
				}

				// хватает ли средств после списания скидки
				available := wallet.Balance(req.PaymentMethod)
				if req.PaymentMethod == model.CurrencyLoyalty {
					available = available.Sub(quote.Discount)
				}
				if quote.FinalAmount.GreaterThan(available) {
					return fmt.Errorf("%w: %s balance %s, need %s",
						store.ErrInsufficientFunds, req.PaymentMethod, available.StringFixed(2), quote.FinalAmount.StringFixed(2))
				}

				now := time.Now()
				order := model.Order{
					ID:             uuid.NewString(),
					UserID:         req.UserID,
					PartnerID:      partner.ID,
					Items:          quote.Items,
					OrderTotal:     quote.OrderTotal,
					Discount:       quote.Discount,
					FinalAmount:    quote.FinalAmount,
					CashbackRate:   quote.CashbackRate,
					CashbackAmount: quote.CashbackAmount,
					PaymentMethod:  req.PaymentMethod,
					PaymentStatus:  model.PaymentStatusPending,
					Status:         model.OrderStatusPending,
					IdempotencyKey: req.IdempotencyKey,
					Delivery:       req.Delivery,
					CreatedAt:      now,
					UpdatedAt:      now,
				}
				if err = tx.OrderPost(ctx, order); err != nil {
					return err
				}

				var legs []model.Leg
				if quote.Discount.IsPositive() {
					legs = append(legs, model.Leg{
						Type:      model.TransactionDiscount,
						Currency:  model.CurrencyLoyalty,
						Amount:    quote.Discount.Neg(),
						OrderID:   order.ID,
						Reference: req.IdempotencyKey,
					})
				}
				if quote.FinalAmount.IsPositive() {
					legs = append(legs, model.Leg{
						Type:      model.TransactionPayment,
						Currency:  req.PaymentMethod,
						Amount:    quote.FinalAmount.Neg(),
						OrderID:   order.ID,
						Reference: req.IdempotencyKey,
					})
				}
				if len(legs) > 0 {
					if wallet, _, err = tx.WalletApplyDelta(ctx, req.UserID, model.NewDelta(legs...)); err != nil {
						return err
					}
				}

				// оплата подтверждена в той же транзакции
				order.Status, err = lifecycle.Next(order.Status, lifecycle.EventPaymentConfirmed)
				if err != nil {
					return err
				}
				order.PaymentStatus = model.PaymentStatusPaid
				order.PaidAt = now
				if err = tx.OrderPut(ctx, order); err != nil {
					return err
				}

				result = SettlementResult{
					Success:        true,
					OrderID:        order.ID,
					NewBalance:     balancesOf(wallet),
					Discount:       order.Discount,
					FinalAmount:    order.FinalAmount,
					CashbackAmount: order.CashbackAmount,
				}
				return seal(ctx, tx, result)
			})
			return result, err
		})
}

func (service *service) Advance(ctx context.Context, req AdvanceRequest) (model.Order, error) {
	started := time.Now()

	order, err := service.advance(ctx, req)
	err = service.finish(operationAdvance, started, false, err,
		zap.String("order", req.OrderID),
		zap.String("event", string(req.Event)))
	if err == nil {
		service.zaplog.Info("order advanced",
			zap.String("order", order.ID),
			zap.String("event", string(req.Event)),
			zap.String("status", string(order.Status)))
	}
	return order, err
}

func (service *service) advance(ctx context.Context, req AdvanceRequest) (model.Order, error) {
	if _, err := lifecycle.ParseEvent(string(req.Event)); err != nil {
		return model.Order{}, err
	}
	// оплату подтверждает только Confirm вместе со списанием
	if req.Event == lifecycle.EventPaymentConfirmed {
		return model.Order{}, validationError("payment is confirmed by order settlement")
	}

	var order model.Order
	err := service.inTx(ctx, operationAdvance, func(ctx context.Context, tx store.Tx) error {
		var err error
		// порядок блокировок: заказ, затем кошелек
		order, err = tx.OrderLock(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if req.UserID != "" && order.UserID != req.UserID {
			return store.ErrNoRows
		}

		from := order.Status
		next, err := lifecycle.Next(from, req.Event)
		if err != nil {
			return err
		}

		legs, err := service.advanceLegs(ctx, tx, order, from, req.Event)
		if err != nil {
			return err
		}
		if len(legs) > 0 {
			if _, _, err = tx.WalletApplyDelta(ctx, order.UserID, model.NewDelta(legs...)); err != nil {
				return err
			}
		}

		now := time.Now()
		order.Status = next
		order.UpdatedAt = now
		if next == model.OrderStatusCompleted {
			order.CompletedAt = now
		}
		if lifecycle.MovesMoneyBack(from, req.Event) {
			order.PaymentStatus = model.PaymentStatusRefunded
		}
		return tx.OrderPut(ctx, order)
	})
	if err != nil {
		return model.Order{}, err
	}

	if req.Event == lifecycle.EventComplete && order.CashbackAmount.IsPositive() {
		metrics.CashbackCredited.Add(order.CashbackAmount.InexactFloat64())
	}
	return order, nil
}

// advanceLegs - движение денег при переходе заказа
func (service *service) advanceLegs(ctx context.Context, tx store.Tx, order model.Order, from model.OrderStatus, event lifecycle.Event) ([]model.Leg, error) {
	var legs []model.Leg

	if event == lifecycle.EventComplete {
		// кэшбэк начисляется только по завершении заказа
		if order.CashbackAmount.IsPositive() {
			legs = append(legs, model.Leg{
				Type:     model.TransactionCashback,
				Currency: model.CurrencyLoyalty,
				Amount:   order.CashbackAmount,
				OrderID:  order.ID,
			})
		}
		return legs, nil
	}

	if !lifecycle.MovesMoneyBack(from, event) {
		return nil, nil
	}

	// возврат в исходные валюты; зачисления идут раньше списаний
	loyaltyCredit := decimal.Zero
	if order.FinalAmount.IsPositive() {
		legs = append(legs, model.Leg{
			Type:     model.TransactionRefund,
			Currency: order.PaymentMethod,
			Amount:   order.FinalAmount,
			OrderID:  order.ID,
		})
		if order.PaymentMethod == model.CurrencyLoyalty {
			loyaltyCredit = loyaltyCredit.Add(order.FinalAmount)
		}
	}
	if order.Discount.IsPositive() {
		legs = append(legs, model.Leg{
			Type:     model.TransactionRefund,
			Currency: model.CurrencyLoyalty,
			Amount:   order.Discount,
			OrderID:  order.ID,
		})
		loyaltyCredit = loyaltyCredit.Add(order.Discount)
	}

	// возврат завершенного заказа отзывает начисленный кэшбэк,
	// но не больше, чем есть на балансе после возврата
	if from == model.OrderStatusCompleted && order.CashbackAmount.IsPositive() {
		wallet, err := tx.WalletLock(ctx, order.UserID)
		if err != nil {
			return nil, err
		}
		clawback := decimal.Min(order.CashbackAmount, wallet.LoyaltyBalance.Add(loyaltyCredit))
		if clawback.IsPositive() {
			legs = append(legs, model.Leg{
				Type:     model.TransactionCashback,
				Currency: model.CurrencyLoyalty,
				Amount:   clawback.Neg(),
				OrderID:  order.ID,
			})
		}
	}
	return legs, nil
}

func (service *service) GetOrderStatus(ctx context.Context, userID string, orderID string) (OrderStatus, error) {
	order, err := service.store.OrderGet(ctx, orderID)
	if err != nil {
		return OrderStatus{}, classify(err)
	}
	if userID != "" && order.UserID != userID {
		return OrderStatus{}, classify(store.ErrNoRows)
	}

	return OrderStatus{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		FinalAmount:   order.FinalAmount,
		PaidAt:        order.PaidAt,
	}, nil
}

func (service *service) GetOrders(ctx context.Context, userID string) ([]model.Order, error) {
	if userID == "" {
		return nil, validationError("user is not specified")
	}

	orders, err := service.store.OrderGetList(ctx, userID)
	return orders, classify(err)
}
