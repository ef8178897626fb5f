package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, signup, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeDuplicateEmail        = "DUPLICATE_EMAIL"
	ErrCodeRegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	ErrCodeInvalidCode           = "INVALID_CODE"
	ErrCodeTooManyAttempts       = "TOO_MANY_ATTEMPTS"
	ErrCodeCodeExpired           = "CODE_EXPIRED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidAmount         = "INVALID_AMOUNT"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeDependencyFailure     = "DEPENDENCY_FAILURE"
)

// NewValidationError は入力不備エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Please correct the highlighted field and try again.",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "Email already registered. Please log in or use a different email.",
		Category: "signup",
		Action:   "Log in with this email, or sign up with a different one.",
	}
}

// NewRegistrationNotFoundError は仮登録が見つからない場合のエラーを生成する。
// 期限切れで掃除済みの場合も同じエラーになる。
func NewRegistrationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationNotFound,
		Message:  "Registration expired or invalid. Please start again.",
		Category: "signup",
		Action:   "Restart the signup process from the beginning.",
	}
}

// NewInvalidCodeError は認証コード不一致エラーを生成する。
func NewInvalidCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCode,
		Message:  "Invalid verification code. Please try again.",
		Category: "signup",
		Action:   "Check the 6-digit code in your email and try again.",
	}
}

// NewTooManyAttemptsError は試行回数超過エラーを生成する。
func NewTooManyAttemptsError() *APIError {
	return &APIError{
		Code:     ErrCodeTooManyAttempts,
		Message:  "Too many failed attempts. Please restart registration.",
		Category: "signup",
		Action:   "Restart the signup process from the beginning.",
	}
}

// NewCodeExpiredError は認証コード期限切れエラーを生成する。
func NewCodeExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCodeExpired,
		Message:  "Verification code expired. Please request a new one.",
		Category: "signup",
		Action:   "Restart the signup process to receive a new code.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メール未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please log in.",
	}
}

// NewInvalidAmountError は決済金額が不正な場合のエラーを生成する。
func NewInvalidAmountError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  "Invalid amount.",
		Category: "payment",
		Action:   "Specify a positive amount.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please log in again.",
	}
}

// NewDependencyFailureError は外部依存（メール送信・決済API等）の失敗エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewDependencyFailureError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeDependencyFailure,
		Message:  message,
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
