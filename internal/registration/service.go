package registration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/books2digital/backend/internal/model"
	"github.com/books2digital/backend/internal/repository"
)

const (
	// maxAttempts は認証コードの最大試行回数。超過でエントリを破棄する。
	maxAttempts = 5
	// minPasswordLength はパスワードの最小文字数。
	minPasswordLength = 8
	// minAge は登録可能な最低年齢。
	minAge = 13
)

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	postalCodePattern = regexp.MustCompile(`^[A-Z]\d[A-Z] \d[A-Z]\d$`)

	provinces = map[string]bool{
		"AB": true, "BC": true, "MB": true, "NB": true, "NL": true,
		"NS": true, "NT": true, "NU": true, "ON": true, "PE": true,
		"QC": true, "SK": true, "YT": true,
	}
)

// Hasher はパスワードのハッシュ化インターフェース。
type Hasher interface {
	Hash(password string) (string, error)
}

// CodeMailer は認証コードメールの送信インターフェース。
type CodeMailer interface {
	SendVerificationCode(ctx context.Context, email, firstName, code string, expiresAt time.Time) error
}

// CustomerCreator は決済プロバイダ側の顧客作成インターフェース。
type CustomerCreator interface {
	EnsureCustomer(ctx context.Context, user *model.User) (string, error)
}

// SessionIssuer は認証完了ユーザーへのセッション発行インターフェース。
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID string) (*model.Session, error)
}

// TokenIssuer はAPIトークンの発行インターフェース。
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// MetricsRecorder はサインアップ関連メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordSignupInitiated()
	RecordSignupVerified()
	RecordVerificationFailure(reason string)
	RecordCodeResent()
	RecordEmailSendFailure()
}

// nopMetrics は何も記録しないMetricsRecorder。
type nopMetrics struct{}

func (nopMetrics) RecordSignupInitiated()                  {}
func (nopMetrics) RecordSignupVerified()                   {}
func (nopMetrics) RecordVerificationFailure(reason string) {}
func (nopMetrics) RecordCodeResent()                       {}
func (nopMetrics) RecordEmailSendFailure()                 {}

// Service はサインアップワークフローのビジネスロジックを提供する。
type Service struct {
	store    Store
	users    repository.UserRepository
	hasher   Hasher
	mailer   CodeMailer
	payments CustomerCreator
	sessions SessionIssuer
	tokens   TokenIssuer
	metrics  MetricsRecorder
	logger   *slog.Logger

	codeTTL time.Duration

	// テストから差し替えるためのフック
	now          func() time.Time
	generateCode func() (string, error)
}

// NewService はServiceを生成する。metricsはnilを許容する。
func NewService(
	store Store,
	users repository.UserRepository,
	hasher Hasher,
	mailer CodeMailer,
	payments CustomerCreator,
	sessions SessionIssuer,
	tokens TokenIssuer,
	metrics MetricsRecorder,
	logger *slog.Logger,
	codeTTL time.Duration,
) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		store:        store,
		users:        users,
		hasher:       hasher,
		mailer:       mailer,
		payments:     payments,
		sessions:     sessions,
		tokens:       tokens,
		metrics:      metrics,
		logger:       logger,
		codeTTL:      codeTTL,
		now:          time.Now,
		generateCode: generateVerificationCode,
	}
}

// generateVerificationCode は100000から999999までの6桁コードを生成する。
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// generateRegistrationID は暗号的に安全な仮登録IDを生成する。
func generateRegistrationID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate registration ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// InitiateInput はサインアップ開始のリクエスト内容。
type InitiateInput struct {
	Email         string
	Password      string
	FirstName     string
	LastName      string
	PreferredName string
	DOB           string
	Phone         string
	UnitNumber    string
	Street        string
	City          string
	Province      string
	PostalCode    string
}

// Initiate は入力を検証して仮登録エントリを作成し、認証コードをメール送信する。
// メール送信に失敗した場合はエントリを破棄してエラーを返す。
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (string, error) {
	normalized, dob, err := s.validate(input)
	if err != nil {
		return "", err
	}

	// 本登録済みのemailは仮登録の時点で弾く。仮登録同士の重複は許容し、
	// 先に認証を完了した方が勝つ。
	existing, err := s.users.FindByEmail(ctx, normalized.Email)
	if err != nil {
		return "", fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return "", model.NewDuplicateEmailError()
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := s.generateCode()
	if err != nil {
		return "", err
	}

	registrationID, err := generateRegistrationID()
	if err != nil {
		return "", err
	}

	now := s.now()
	entry := &model.PendingRegistration{
		RegistrationID:   registrationID,
		Email:            normalized.Email,
		PasswordHash:     passwordHash,
		FirstName:        normalized.FirstName,
		LastName:         normalized.LastName,
		PreferredName:    normalized.PreferredName,
		DOB:              dob,
		Phone:            normalized.Phone,
		UnitNumber:       normalized.UnitNumber,
		Street:           normalized.Street,
		City:             normalized.City,
		Province:         normalized.Province,
		PostalCode:       normalized.PostalCode,
		Country:          "CA",
		VerificationCode: code,
		CodeIssuedAt:     now,
		Attempts:         0,
	}
	s.store.Put(entry)

	expiresAt := now.Add(s.codeTTL)
	if err := s.mailer.SendVerificationCode(ctx, entry.Email, entry.FirstName, code, expiresAt); err != nil {
		s.store.Delete(entry.RegistrationID)
		s.metrics.RecordEmailSendFailure()
		s.logger.Error("failed to send verification email",
			slog.String("registration_id", entry.RegistrationID),
			slog.String("error", err.Error()),
		)
		return "", model.NewDependencyFailureError("Failed to send verification email. Please try again.")
	}

	s.metrics.RecordSignupInitiated()
	s.logger.Info("signup initiated",
		slog.String("registration_id", entry.RegistrationID),
	)

	return entry.RegistrationID, nil
}

// VerifyResult は認証完了時の結果。
type VerifyResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// Verify は認証コードを検証し、成功した場合にユーザーを本登録する。
// コード不一致は試行回数を加算し、上限到達でエントリを破棄する。
func (s *Service) Verify(ctx context.Context, registrationID, code string) (*VerifyResult, error) {
	entry := s.store.Get(registrationID)
	if entry == nil {
		s.metrics.RecordVerificationFailure("not_found")
		return nil, model.NewRegistrationNotFoundError()
	}

	if code != entry.VerificationCode {
		entry.Attempts++
		if entry.Attempts >= maxAttempts {
			s.store.Delete(registrationID)
			s.metrics.RecordVerificationFailure("too_many_attempts")
			return nil, model.NewTooManyAttemptsError()
		}
		s.store.Put(entry)
		s.metrics.RecordVerificationFailure("invalid_code")
		return nil, model.NewInvalidCodeError()
	}

	if s.now().Sub(entry.CodeIssuedAt) > s.codeTTL {
		s.store.Delete(registrationID)
		s.metrics.RecordVerificationFailure("expired")
		return nil, model.NewCodeExpiredError()
	}

	user, err := s.createUser(ctx, entry)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeDuplicateEmail {
			// 同一emailの別の仮登録が先に本登録を完了していた
			s.store.Delete(registrationID)
			s.metrics.RecordVerificationFailure("duplicate")
		}
		return nil, err
	}

	s.store.Delete(registrationID)

	// Stripe顧客の作成はベストエフォート。失敗しても登録自体は成功させ、
	// 初回決済時に改めて作成を試みる。
	if customerID, err := s.payments.EnsureCustomer(ctx, user); err != nil {
		s.logger.Warn("failed to create payment customer during signup",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.StripeCustomerID = customerID
	}

	session, err := s.sessions.IssueSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordSignupVerified()
	s.logger.Info("signup verified",
		slog.String("user_id", user.ID),
	)

	return &VerifyResult{User: user, Session: session, Token: token}, nil
}

// createUser は仮登録エントリからユーザーを作成して永続化する。
func (s *Service) createUser(ctx context.Context, entry *model.PendingRegistration) (*model.User, error) {
	now := s.now()
	user := &model.User{
		ID:              uuid.NewString(),
		Email:           entry.Email,
		PasswordHash:    entry.PasswordHash,
		FirstName:       entry.FirstName,
		LastName:        entry.LastName,
		PreferredName:   entry.PreferredName,
		DOB:             entry.DOB,
		Phone:           entry.Phone,
		UnitNumber:      entry.UnitNumber,
		Street:          entry.Street,
		City:            entry.City,
		Province:        entry.Province,
		PostalCode:      entry.PostalCode,
		Country:         entry.Country,
		EmailVerified:   true,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Resend は新しい認証コードを発行して再送する。試行回数とTTLはリセットされる。
func (s *Service) Resend(ctx context.Context, registrationID string) error {
	entry := s.store.Get(registrationID)
	if entry == nil {
		return model.NewRegistrationNotFoundError()
	}

	code, err := s.generateCode()
	if err != nil {
		return err
	}

	now := s.now()
	entry.VerificationCode = code
	entry.CodeIssuedAt = now
	entry.Attempts = 0
	s.store.Put(entry)

	expiresAt := now.Add(s.codeTTL)
	if err := s.mailer.SendVerificationCode(ctx, entry.Email, entry.FirstName, code, expiresAt); err != nil {
		s.metrics.RecordEmailSendFailure()
		s.logger.Error("failed to resend verification email",
			slog.String("registration_id", registrationID),
			slog.String("error", err.Error()),
		)
		return model.NewDependencyFailureError("Failed to send verification email. Please try again.")
	}

	s.metrics.RecordCodeResent()
	s.logger.Info("verification code resent",
		slog.String("registration_id", registrationID),
	)

	return nil
}

// Status は仮登録の現在の状態を返す。
type Status struct {
	Email         string
	TimeRemaining time.Duration
	Attempts      int
}

// GetStatus は仮登録の状態を取得する。期限切れエントリは存在しないものとして扱う。
// 削除はスイーパーに任せる。
func (s *Service) GetStatus(registrationID string) (*Status, error) {
	entry := s.store.Get(registrationID)
	if entry == nil {
		return nil, model.NewRegistrationNotFoundError()
	}

	remaining := s.codeTTL - s.now().Sub(entry.CodeIssuedAt)
	if remaining <= 0 {
		return nil, model.NewRegistrationNotFoundError()
	}

	return &Status{
		Email:         entry.Email,
		TimeRemaining: remaining,
		Attempts:      entry.Attempts,
	}, nil
}

// validate は入力を検証し、正規化済みの値とパース済みの生年月日を返す。
func (s *Service) validate(input InitiateInput) (*InitiateInput, time.Time, error) {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", input.FirstName},
		{"lastName", input.LastName},
		{"email", input.Email},
		{"password", input.Password},
		{"dob", input.DOB},
		{"street", input.Street},
		{"city", input.City},
		{"province", input.Province},
		{"postalCode", input.PostalCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return nil, time.Time{}, model.NewValidationError("Missing required field: " + f.name)
		}
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !emailPattern.MatchString(email) {
		return nil, time.Time{}, model.NewValidationError("Please enter a valid email address")
	}

	if len(input.Password) < minPasswordLength {
		return nil, time.Time{}, model.NewValidationError("Password must be at least 8 characters long")
	}

	dob, err := time.Parse("2006-01-02", input.DOB)
	if err != nil {
		return nil, time.Time{}, model.NewValidationError("Please enter a valid date of birth (YYYY-MM-DD)")
	}
	cutoff := s.now().AddDate(-minAge, 0, 0)
	if dob.After(cutoff) {
		return nil, time.Time{}, model.NewValidationError("You must be at least 13 years old to register")
	}

	province := strings.ToUpper(strings.TrimSpace(input.Province))
	if !provinces[province] {
		return nil, time.Time{}, model.NewValidationError("Please select a valid province or territory")
	}

	postalCode := normalizePostalCode(input.PostalCode)
	if !postalCodePattern.MatchString(postalCode) {
		return nil, time.Time{}, model.NewValidationError("Please enter a valid postal code (e.g., A1A 1A1)")
	}

	normalized := input
	normalized.Email = email
	normalized.FirstName = strings.TrimSpace(input.FirstName)
	normalized.LastName = strings.TrimSpace(input.LastName)
	normalized.PreferredName = strings.TrimSpace(input.PreferredName)
	normalized.Phone = strings.TrimSpace(input.Phone)
	normalized.UnitNumber = strings.TrimSpace(input.UnitNumber)
	normalized.Street = strings.TrimSpace(input.Street)
	normalized.City = strings.TrimSpace(input.City)
	normalized.Province = province
	normalized.PostalCode = postalCode
	return &normalized, dob, nil
}

// normalizePostalCode は大文字化して "A1A 1A1" 形式に整形する。
func normalizePostalCode(raw string) string {
	code := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if len(code) == 6 {
		return code[:3] + " " + code[3:]
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}
