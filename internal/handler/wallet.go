package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/cashback/internal/auth"
	"github.com/iurnickita/cashback/internal/model"
	"github.com/iurnickita/cashback/internal/service"
)

type GetWalletJSONResponse struct {
	CashBalance    string `json:"cash_balance"`
	LoyaltyBalance string `json:"loyalty_balance"`
	TotalEarned    string `json:"total_earned"`
	TotalSpent     string `json:"total_spent"`
}

func (h *handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.service.GetBalance(r.Context(), auth.UserCode(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, GetWalletJSONResponse{
		CashBalance:    money(wallet.CashBalance),
		LoyaltyBalance: money(wallet.LoyaltyBalance),
		TotalEarned:    money(wallet.TotalEarned),
		TotalSpent:     money(wallet.TotalSpent),
	})
}

type GetTransactionJSONResponse struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id,omitempty"`
	Type          string    `json:"type"`
	Currency      string    `json:"currency"`
	Amount        string    `json:"amount"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.GetTransactions(r.Context(), auth.UserCode(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	transactionsJSON := make([]GetTransactionJSONResponse, 0, len(transactions))
	for _, transaction := range transactions {
		transactionsJSON = append(transactionsJSON, GetTransactionJSONResponse{
			ID:            transaction.ID,
			OrderID:       transaction.OrderID,
			Type:          string(transaction.Type),
			Currency:      string(transaction.Currency),
			Amount:        money(transaction.Amount),
			BalanceBefore: money(transaction.BalanceBefore),
			BalanceAfter:  money(transaction.BalanceAfter),
			Status:        string(transaction.Status),
			Reference:     transaction.Reference,
			CreatedAt:     transaction.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, transactionsJSON)
}

type WalletJSONResponse struct {
	TransactionID string              `json:"transaction_id"`
	NewBalance    BalanceJSONResponse `json:"new_balance"`
}

type PostTopUpJSONRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

func (h *handler) PostTopUp(w http.ResponseWriter, r *http.Request) {
	var topupJSON PostTopUpJSONRequest
	if err := h.decodeJSON(r, &topupJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.TopUp(r.Context(), service.TopUpRequest{
		UserID:         auth.UserCode(r),
		Amount:         topupJSON.Amount,
		IdempotencyKey: idempotencyKey(r, topupJSON.IdempotencyKey),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeResult(w, result.Replayed, WalletJSONResponse{
		TransactionID: result.TransactionID,
		NewBalance:    balanceJSON(result.NewBalance),
	})
}

type PostBonusJSONRequest struct {
	UserID         string          `json:"user_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason" validate:"max=128"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

// PostBonus - начисление бонусных баллов партнером
func (h *handler) PostBonus(w http.ResponseWriter, r *http.Request) {
	var bonusJSON PostBonusJSONRequest
	if err := h.decodeJSON(r, &bonusJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.GrantBonus(r.Context(), service.BonusRequest{
		UserID:         bonusJSON.UserID,
		Amount:         bonusJSON.Amount,
		Reason:         bonusJSON.Reason,
		IdempotencyKey: idempotencyKey(r, bonusJSON.IdempotencyKey),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeResult(w, result.Replayed, WalletJSONResponse{
		TransactionID: result.TransactionID,
		NewBalance:    balanceJSON(result.NewBalance),
	})
}

type PostQRPaymentJSONRequest struct {
	QRCode         string          `json:"qr_code" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"payment_method" validate:"required,oneof=cash loyalty"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

type PostQRPaymentJSONResponse struct {
	PartnerID      string              `json:"partner_id"`
	TransactionID  string              `json:"transaction_id"`
	Amount         string              `json:"amount"`
	CashbackAmount string              `json:"cashback_amount"`
	NewBalance     BalanceJSONResponse `json:"new_balance"`
}

func (h *handler) PostQRPayment(w http.ResponseWriter, r *http.Request) {
	var paymentJSON PostQRPaymentJSONRequest
	if err := h.decodeJSON(r, &paymentJSON); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.PayQR(r.Context(), service.QRPaymentRequest{
		UserID:         auth.UserCode(r),
		Payload:        paymentJSON.QRCode,
		Amount:         paymentJSON.Amount,
		PaymentMethod:  model.Currency(paymentJSON.PaymentMethod),
		IdempotencyKey: idempotencyKey(r, paymentJSON.IdempotencyKey),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeResult(w, result.Replayed, PostQRPaymentJSONResponse{
		PartnerID:      result.PartnerID,
		TransactionID:  result.TransactionID,
		Amount:         money(result.Amount),
		CashbackAmount: money(result.CashbackAmount),
		NewBalance:     balanceJSON(result.NewBalance),
	})
}
