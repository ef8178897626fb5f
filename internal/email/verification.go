package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

// verificationSubject は認証コードメールの件名。
const verificationSubject = "Verify Your Email - Books2Digital"

// verificationTemplate は認証コードメールのHTML本文。
// 氏名は埋め込み前にサニタイズ済みであることを前提とするが、
// html/templateのエスケープが最後の防衛線として機能する。
var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Welcome to Books2Digital{{if .FirstName}}, {{.FirstName}}{{end}}!</h2>
  <p>Enter this verification code to complete your registration:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 8px; text-align: center;">{{.Code}}</p>
  <p>This code expires at {{.ExpiresAt}}. If it expires, you can request a new one from the verification page.</p>
  <p>If you did not sign up for Books2Digital, you can safely ignore this email.</p>
</body>
</html>`))

// NameSanitizer はメールに埋め込む氏名のサニタイズインターフェース。
type NameSanitizer interface {
	Sanitize(name string) string
}

// VerificationMailer は認証コードメールを組み立てて送信する。
type VerificationMailer struct {
	sender    Sender
	sanitizer NameSanitizer
}

// NewVerificationMailer はVerificationMailerを生成する。
func NewVerificationMailer(sender Sender, sanitizer NameSanitizer) *VerificationMailer {
	return &VerificationMailer{
		sender:    sender,
		sanitizer: sanitizer,
	}
}

// SendVerificationCode は6桁の認証コードをメール送信する。
func (m *VerificationMailer) SendVerificationCode(ctx context.Context, toEmail, firstName, code string, expiresAt time.Time) error {
	name := m.sanitizer.Sanitize(firstName)

	data := struct {
		FirstName string
		Code      string
		ExpiresAt string
	}{
		FirstName: name,
		Code:      code,
		ExpiresAt: expiresAt.UTC().Format("15:04 MST"),
	}

	var body bytes.Buffer
	if err := verificationTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render verification email: %w", err)
	}

	return m.sender.Send(ctx, toEmail, name, verificationSubject, body.String())
}
