package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iurnickita/cashback/internal/auth"
	"github.com/iurnickita/cashback/internal/lifecycle"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/service"
)

// money - сумма в JSON строкой с копейками
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type ItemJSONRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type DeliveryJSON struct {
	Type    string `json:"type" validate:"omitempty,oneof=pickup courier"`
	Address string `json:"address,omitempty" validate:"required_if=Type courier"`
	Phone   string `json:"phone,omitempty" validate:"max=32"`
	Comment string `json:"comment,omitempty"`
}

type BalanceJSONResponse struct {
	Cash    string `json:"cash"`
	Loyalty string `json:"loyalty"`
}

func balanceJSON(b service.Balances) BalanceJSONResponse {
	return BalanceJSONResponse{Cash: money(b.Cash), Loyalty: money(b.Loyalty)}
}

func itemRequests(items []ItemJSONRequest) []service.ItemRequest {
	requests := make([]service.ItemRequest, len(items))
	for i, item := range items {
		requests[i] = service.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return requests
}

type PostCalculateJSONRequest struct {
	PartnerID         string            `json:"partner_id" validate:"required"`
	Items             []ItemJSONRequest `json:"items" validate:"required,min=1,dive"`
	RequestedDiscount decimal.Decimal   `json:"requested_discount"`
}

type PostCalculateJSONResponse struct {
	OrderTotal     string `json:"order_total"`
	MaxDiscount    string `json:"max_discount"`
	Discount       string `json:"discount"`
	FinalAmount    string `json:"final_amount"`
	CashbackRate   string `json:"cashback_rate"`
	CashbackAmount string `json:"cashback_amount"`
	UserBalance    string `json:"user_balance"`
}

func (h *handler) PostCalculate(w http.ResponseWriter, r *http.Request) {
	var calculateJSON PostCalculateJSONRequest
	if err := h.decodeJSON(r, &calculateJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := h.service.Calculate(r.Context(), service.CalculateRequest{
		UserID:            auth.UserCode(r),
		PartnerID:         calculateJSON.PartnerID,
		Items:             itemRequests(calculateJSON.Items),
		RequestedDiscount: calculateJSON.RequestedDiscount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, PostCalculateJSONResponse{
		OrderTotal:     money(quote.OrderTotal),
		MaxDiscount:    money(quote.MaxDiscount),
		Discount:       money(quote.Discount),
		FinalAmount:    money(quote.FinalAmount),
		CashbackRate:   quote.CashbackRate.String(),
		CashbackAmount: money(quote.CashbackAmount),
		UserBalance:    money(quote.UserBalance),
	})
}

type PostConfirmJSONRequest struct {
	PartnerID         string            `json:"partner_id" validate:"required"`
	Items             []ItemJSONRequest `json:"items" validate:"required,min=1,dive"`
	RequestedDiscount decimal.Decimal   `json:"requested_discount"`
	PaymentMethod     string            `json:"payment_method" validate:"required,oneof=cash loyalty"`
	Delivery          DeliveryJSON      `json:"delivery"`
	IdempotencyKey    string            `json:"idempotency_key" validate:"max=128"`
}

type PostConfirmJSONResponse struct {
	Success        bool                `json:"success"`
	OrderID        string              `json:"order_id"`
	NewBalance     BalanceJSONResponse `json:"new_balance"`
	Discount       string              `json:"discount"`
	FinalAmount    string              `json:"final_amount"`
	CashbackAmount string              `json:"cashback_amount"`
}

func (h *handler) PostConfirm(w http.ResponseWriter, r *http.Request) {
	var confirmJSON PostConfirmJSONRequest
	if err := h.decodeJSON(r, &confirmJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.Confirm(r.Context(), service.ConfirmRequest{
		UserID:            auth.UserCode(r),
		PartnerID:         confirmJSON.PartnerID,
		Items:             itemRequests(confirmJSON.Items),
		RequestedDiscount: confirmJSON.RequestedDiscount,
		PaymentMethod:     model.Currency(confirmJSON.PaymentMethod),
		Delivery: model.Delivery{
			Type:    confirmJSON.Delivery.Type,
			Address: confirmJSON.Delivery.Address,
			Phone:   confirmJSON.Delivery.Phone,
			Comment: confirmJSON.Delivery.Comment,
		},
		IdempotencyKey: idempotencyKey(r, confirmJSON.IdempotencyKey),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeResult(w, result.Replayed, PostConfirmJSONResponse{
		Success:        result.Success,
		OrderID:        result.OrderID,
		NewBalance:     balanceJSON(result.NewBalance),
		Discount:       money(result.Discount),
		FinalAmount:    money(result.FinalAmount),
		CashbackAmount: money(result.CashbackAmount),
	})
}

type GetOrderJSONResponse struct {
	OrderID        string     `json:"order_id"`
	PartnerID      string     `json:"partner_id"`
	Status         string     `json:"order_status"`
	PaymentStatus  string     `json:"payment_status"`
	PaymentMethod  string     `json:"payment_method"`
	OrderTotal     string     `json:"order_total"`
	Discount       string     `json:"discount"`
	FinalAmount    string     `json:"final_amount"`
	CashbackAmount string     `json:"cashback_amount"`
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// timeRef: нулевое время в JSON не выводится
func timeRef(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func orderJSON(order model.Order) GetOrderJSONResponse {
	return GetOrderJSONResponse{
		OrderID:        order.ID,
		PartnerID:      order.PartnerID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  string(order.PaymentMethod),
		OrderTotal:     money(order.OrderTotal),
		Discount:       money(order.Discount),
		FinalAmount:    money(order.FinalAmount),
		CashbackAmount: money(order.CashbackAmount),
		CreatedAt:      order.CreatedAt,
		PaidAt:         timeRef(order.PaidAt),
		CompletedAt:    timeRef(order.CompletedAt),
	}
}

func (h *handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrders(r.Context(), auth.UserCode(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ordersJSON := make([]GetOrderJSONResponse, 0, len(orders))
	for _, order := range orders {
		ordersJSON = append(ordersJSON, orderJSON(order))
	}
	h.writeJSON(w, http.StatusOK, ordersJSON)
}

type GetOrderStatusJSONResponse struct {
	OrderID       string     `json:"order_id"`
	Status        string     `json:"order_status"`
	PaymentStatus string     `json:"payment_status"`
	FinalAmount   string     `json:"final_amount"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func (h *handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetOrderStatus(r.Context(), auth.UserCode(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, GetOrderStatusJSONResponse{
		OrderID:       status.OrderID,
		Status:        string(status.Status),
		PaymentStatus: string(status.PaymentStatus),
		FinalAmount:   money(status.FinalAmount),
		PaidAt:        timeRef(status.PaidAt),
	})
}

// PostCancel - отмена заказа пользователем
func (h *handler) PostCancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Advance(r.Context(), service.AdvanceRequest{
		UserID:  auth.UserCode(r),
		OrderID: chi.URLParam(r, "id"),
		Event:   lifecycle.EventCancel,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderJSON(order))
}

type PostOrderEventJSONRequest struct {
	Event string `json:"event" validate:"required"`
}

// PostOrderEvent - события выполнения заказа от партнера
func (h *handler) PostOrderEvent(w http.ResponseWriter, r *http.Request) {
	var eventJSON PostOrderEventJSONRequest
	if err := h.decodeJSON(r, &eventJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.service.Advance(r.Context(), service.AdvanceRequest{
		OrderID: chi.URLParam(r, "id"),
		Event:   lifecycle.Event(eventJSON.Event),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderJSON(order))
}
