// Package payment はStripeによる決済機能を提供する。
// 顧客の作成とPaymentIntentの発行を含む。
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// defaultBaseURL はStripe APIのベースURL。
const defaultBaseURL = "https://api.stripe.com"

// StripeClient はStripe REST APIのクライアント。
// リクエストボディはStripeの慣例に従いフォームエンコードで送信する。
type StripeClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	secretKey  string
	baseURL    string // テスト用にベースURLを差し替え可能
}

// NewStripeClient はStripeClientの新しいインスタンスを生成する。
func NewStripeClient(httpClient *http.Client, logger *slog.Logger, secretKey string) *StripeClient {
	return &StripeClient{
		httpClient: httpClient,
		logger:     logger,
		secretKey:  secretKey,
		baseURL:    defaultBaseURL,
	}
}

// stripeError はStripe APIのエラーレスポンス。
type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CustomerParams は顧客作成のパラメータ。
type CustomerParams struct {
	Email  string
	Name   string
	Phone  string
	UserID string // metadataに記録するアプリケーション側のユーザーID
}

// CreateCustomer はStripe顧客を作成し、顧客IDを返す。
func (c *StripeClient) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	form := url.Values{}
	form.Set("email", params.Email)
	form.Set("name", params.Name)
	if params.Phone != "" {
		form.Set("phone", params.Phone)
	}
	form.Set("metadata[user_id]", params.UserID)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/customers", form, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// IntentParams はPaymentIntent作成のパラメータ。
type IntentParams struct {
	AmountCents int64
	Currency    string
	CustomerID  string
	UserID      string
	OrderData   map[string]string // 注文情報。metadataに転記される
}

// Intent は作成されたPaymentIntentの情報。
type Intent struct {
	ID           string
	ClientSecret string
}

// CreatePaymentIntent はPaymentIntentを作成する。
// 決済手段はStripe側の自動選択（automatic_payment_methods）に任せる。
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	form.Set("currency", params.Currency)
	form.Set("customer", params.CustomerID)
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range params.OrderData {
		form.Set("metadata["+k+"]", v)
	}
	// user_idは注文情報より優先する
	form.Set("metadata[user_id]", params.UserID)

	var result struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := c.post(ctx, "/v1/payment_intents", form, &result); err != nil {
		return nil, err
	}
	return &Intent{ID: result.ID, ClientSecret: result.ClientSecret}, nil
}

// post はフォームエンコードのPOSTリクエストを実行し、レスポンスJSONをデコードする。
func (c *StripeClient) post(ctx context.Context, path string, form url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to call stripe API",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var stripeErr stripeError
		if err := json.Unmarshal(body, &stripeErr); err == nil && stripeErr.Error.Message != "" {
			c.logger.Error("stripe API returned error",
				slog.String("path", path),
				slog.Int("http_status", resp.StatusCode),
				slog.String("stripe_code", stripeErr.Error.Code),
				slog.String("stripe_message", stripeErr.Error.Message),
			)
			return fmt.Errorf("stripe API error: %s", stripeErr.Error.Message)
		}
		c.logger.Error("stripe API returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("stripe API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse stripe response: %w", err)
	}
	return nil
}
