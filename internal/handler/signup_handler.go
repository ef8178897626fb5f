package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/books2digital/backend/internal/model"
	"github.com/books2digital/backend/internal/registration"
)

// SignupServiceInterface はサインアップハンドラーが必要とするサービスインターフェース。
type SignupServiceInterface interface {
	Initiate(ctx context.Context, input registration.InitiateInput) (string, error)
	Verify(ctx context.Context, registrationID, code string) (*registration.VerifyResult, error)
	Resend(ctx context.Context, registrationID string) error
	GetStatus(registrationID string) (*registration.Status, error)
}

// SignupHandlerConfig はサインアップハンドラーの設定。
type SignupHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// SignupHandler はサインアップワークフローのHTTPハンドラー。
type SignupHandler struct {
	service SignupServiceInterface
	config  SignupHandlerConfig
}

// NewSignupHandler はSignupHandlerを生成する。
func NewSignupHandler(service SignupServiceInterface, config SignupHandlerConfig) *SignupHandler {
	return &SignupHandler{
		service: service,
		config:  config,
	}
}

// initiateRequest はサインアップ開始のリクエストボディ。
type initiateRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	PreferredName string `json:"preferredName"`
	DOB           string `json:"dob"`
	Phone         string `json:"phone"`
	UnitNumber    string `json:"unitNumber"`
	Street        string `json:"street"`
	City          string `json:"city"`
	Province      string `json:"province"`
	PostalCode    string `json:"postalCode"`
}

// Initiate は仮登録を作成して認証コードをメール送信する。
// POST /signup/initiate
func (h *SignupHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	registrationID, err := h.service.Initiate(r.Context(), registration.InitiateInput{
		Email:         req.Email,
		Password:      req.Password,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		PreferredName: req.PreferredName,
		DOB:           req.DOB,
		Phone:         req.Phone,
		UnitNumber:    req.UnitNumber,
		Street:        req.Street,
		City:          req.City,
		Province:      req.Province,
		PostalCode:    req.PostalCode,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"registrationId": registrationID,
		"message":        "Verification code sent to your email",
	})
}

// verifyRequest は認証コード検証のリクエストボディ。
type verifyRequest struct {
	RegistrationID   string `json:"registrationId"`
	VerificationCode string `json:"verificationCode"`
}

// Verify は認証コードを検証し、本登録とログインを完了する。
// POST /signup/verify
func (h *SignupHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	// フィールド欠落は試行回数に数えず、その場で弾く
	if req.RegistrationID == "" || req.VerificationCode == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Registration ID and verification code are required"))
		return
	}

	result, err := h.service.Verify(r.Context(), req.RegistrationID, req.VerificationCode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    result.Session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"user":        toUserResponse(result.User),
		"token":       result.Token,
		"redirectUrl": "/profile",
	})
}

// resendRequest は認証コード再送のリクエストボディ。
type resendRequest struct {
	RegistrationID string `json:"registrationId"`
}

// Resend は新しい認証コードを発行して再送する。
// POST /signup/resend-code
func (h *SignupHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.Resend(r.Context(), req.RegistrationID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "New verification code sent!",
	})
}

// Status は仮登録の状態を返す。認証待ち画面のポーリングに使用される。
// GET /signup/status/{registrationId}
func (h *SignupHandler) Status(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationId")

	status, err := h.service.GetStatus(registrationID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRegistrationNotFound {
			writeAPIErrorResponse(w, http.StatusNotFound, apiErr)
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"exists":        true,
		"email":         status.Email,
		"timeRemaining": formatTimeRemaining(status.TimeRemaining),
		"attempts":      status.Attempts,
	})
}

// formatTimeRemaining は残り時間を "m:ss" 形式に整形する。
func formatTimeRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
