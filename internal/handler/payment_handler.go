package handler

import (
	"context"
	"net/http"

	"github.com/books2digital/backend/internal/middleware"
	"github.com/books2digital/backend/internal/model"
	"github.com/books2digital/backend/internal/payment"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	CreateIntent(ctx context.Context, userID string, amount float64, currency string, orderData map[string]string) (*payment.IntentResult, error)
}

// PaymentHandler は決済関連のHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// createIntentRequest はPaymentIntent作成のリクエストボディ。
// 金額はドル単位で受け取る。orderDataはStripeのmetadataに転記される。
type createIntentRequest struct {
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	OrderData map[string]string `json:"orderData"`
}

// CreateIntent はログインユーザーのPaymentIntentを作成する。
// POST /api/payments/intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createIntentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.service.CreateIntent(r.Context(), userID, req.Amount, req.Currency, req.OrderData)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clientSecret": result.ClientSecret,
		"customerId":   result.CustomerID,
	})
}
