// Package email はトランザクションメールの送信機能を提供する。
// SendGrid Web API v3 の呼び出しと認証コードメールの組み立てを含む。
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultEndpoint はSendGridのメール送信APIのエンドポイント。
const defaultEndpoint = "https://api.sendgrid.com/v3/mail/send"

// Sender はメール送信のインターフェース。
type Sender interface {
	// Send はHTMLメールを1通送信する。
	Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error
}

// SendGridClient はSendGrid Web API v3のクライアント。
type SendGridClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	fromEmail  string
	fromName   string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewSendGridClient はSendGridClientの新しいインスタンスを生成する。
func NewSendGridClient(httpClient *http.Client, logger *slog.Logger, apiKey, fromEmail, fromName string) *SendGridClient {
	return &SendGridClient{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		fromName:   fromName,
		endpoint:   defaultEndpoint,
	}
}

// mailAddress はSendGrid APIのメールアドレス表現。
type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// sendRequest は /v3/mail/send のリクエストボディ。
type sendRequest struct {
	Personalizations []struct {
		To []mailAddress `json:"to"`
	} `json:"personalizations"`
	From    mailAddress `json:"from"`
	Subject string      `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

// Send はHTMLメールを1通送信する。
// SendGridは受理時に202を返す。それ以外のステータスはエラーとして扱う。
func (c *SendGridClient) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error {
	payload := sendRequest{
		From:    mailAddress{Email: c.fromEmail, Name: c.fromName},
		Subject: subject,
	}
	payload.Personalizations = []struct {
		To []mailAddress `json:"to"`
	}{
		{To: []mailAddress{{Email: toEmail, Name: toName}}},
	}
	payload.Content = []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{
		{Type: "text/html", Value: htmlBody},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to call mail API",
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("mail API returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("response", string(respBody)),
		)
		return fmt.Errorf("mail API returned status %d", resp.StatusCode)
	}

	return nil
}
