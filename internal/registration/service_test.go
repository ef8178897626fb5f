package registration

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/books2digital/backend/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	return nil
}
func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return nil
}

type mockHasher struct {
	hashFn func(password string) (string, error)
}

func (m *mockHasher) Hash(password string) (string, error) {
	if m.hashFn != nil {
		return m.hashFn(password)
	}
	return "hashed:" + password, nil
}

type mockMailer struct {
	sendFn func(ctx context.Context, email, firstName, code string, expiresAt time.Time) error
	sent   []string
}

func (m *mockMailer) SendVerificationCode(ctx context.Context, email, firstName, code string, expiresAt time.Time) error {
	m.sent = append(m.sent, code)
	if m.sendFn != nil {
		return m.sendFn(ctx, email, firstName, code, expiresAt)
	}
	return nil
}

type mockCustomerCreator struct {
	ensureFn func(ctx context.Context, user *model.User) (string, error)
}

func (m *mockCustomerCreator) EnsureCustomer(ctx context.Context, user *model.User) (string, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, user)
	}
	return "cus_test", nil
}

type mockSessionIssuer struct {
	issueFn func(ctx context.Context, userID string) (*model.Session, error)
}

func (m *mockSessionIssuer) IssueSession(ctx context.Context, userID string) (*model.Session, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, userID)
	}
	return &model.Session{ID: "sess-1", UserID: userID}, nil
}

type mockTokenIssuer struct {
	issueFn func(userID, email string) (string, error)
}

func (m *mockTokenIssuer) Issue(userID, email string) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(userID, email)
	}
	return "token-1", nil
}

// --- テストヘルパー ---

type testDeps struct {
	store    *MemoryStore
	users    *mockUserRepo
	mailer   *mockMailer
	payments *mockCustomerCreator
	sessions *mockSessionIssuer
	tokens   *mockTokenIssuer
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()

	deps := &testDeps{
		store:    NewMemoryStore(),
		users:    &mockUserRepo{},
		mailer:   &mockMailer{},
		payments: &mockCustomerCreator{},
		sessions: &mockSessionIssuer{},
		tokens:   &mockTokenIssuer{},
	}

	svc := NewService(
		deps.store,
		deps.users,
		&mockHasher{},
		deps.mailer,
		deps.payments,
		deps.sessions,
		deps.tokens,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		10*time.Minute,
	)
	svc.generateCode = func() (string, error) { return "123456", nil }
	return svc, deps
}

func validInput() InitiateInput {
	return InitiateInput{
		Email:      "Alice@Example.com",
		Password:   "password123",
		FirstName:  "Alice",
		LastName:   "Smith",
		DOB:        "1990-06-15",
		Street:     "123 Main St",
		City:       "Toronto",
		Province:   "ON",
		PostalCode: "m5v 2t6",
	}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != code {
		t.Fatalf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- Initiate ---

// TestService_Initiate は仮登録の作成とコード送信を検証する。
func TestService_Initiate(t *testing.T) {
	svc, deps := newTestService(t)

	regID, err := svc.Initiate(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	if regID == "" {
		t.Fatal("expected non-empty registration ID")
	}
	if _, err := hex.DecodeString(regID); err != nil || len(regID) != 32 {
		t.Errorf("registration ID = %q, want 32 hex characters", regID)
	}

	entry := deps.store.Get(regID)
	if entry == nil {
		t.Fatal("expected pending entry in store")
	}
	if entry.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lowercased %q", entry.Email, "alice@example.com")
	}
	if entry.PostalCode != "M5V 2T6" {
		t.Errorf("PostalCode = %q, want normalized %q", entry.PostalCode, "M5V 2T6")
	}
	if entry.PasswordHash != "hashed:password123" {
		t.Errorf("PasswordHash = %q, want hashed value", entry.PasswordHash)
	}
	if entry.VerificationCode != "123456" {
		t.Errorf("VerificationCode = %q, want %q", entry.VerificationCode, "123456")
	}
	if len(deps.mailer.sent) != 1 || deps.mailer.sent[0] != "123456" {
		t.Errorf("sent codes = %v, want [123456]", deps.mailer.sent)
	}
}

// TestService_Initiate_Validation は入力検証の失敗パターンを検証する。
func TestService_Initiate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *InitiateInput)
		message string
	}{
		{
			name:    "missing first name",
			mutate:  func(in *InitiateInput) { in.FirstName = "" },
			message: "Missing required field: firstName",
		},
		{
			name:    "missing street",
			mutate:  func(in *InitiateInput) { in.Street = "  " },
			message: "Missing required field: street",
		},
		{
			name:    "invalid email",
			mutate:  func(in *InitiateInput) { in.Email = "not-an-email" },
			message: "Please enter a valid email address",
		},
		{
			name:    "short password",
			mutate:  func(in *InitiateInput) { in.Password = "short1" },
			message: "Password must be at least 8 characters long",
		},
		{
			name:    "malformed dob",
			mutate:  func(in *InitiateInput) { in.DOB = "15/06/1990" },
			message: "Please enter a valid date of birth (YYYY-MM-DD)",
		},
		{
			name:    "invalid province",
			mutate:  func(in *InitiateInput) { in.Province = "XX" },
			message: "Please select a valid province or territory",
		},
		{
			name:    "invalid postal code",
			mutate:  func(in *InitiateInput) { in.PostalCode = "12345" },
			message: "Please enter a valid postal code (e.g., A1A 1A1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestService(t)

			input := validInput()
			tt.mutate(&input)

			_, err := svc.Initiate(context.Background(), input)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)

			var apiErr *model.APIError
			errors.As(err, &apiErr)
			if apiErr.Message != tt.message {
				t.Errorf("message = %q, want %q", apiErr.Message, tt.message)
			}
			if deps.store.Len() != 0 {
				t.Error("expected no entry in store after validation failure")
			}
		})
	}
}

// TestService_Initiate_UnderAge は13歳未満の登録が拒否されることを検証する。
func TestService_Initiate_UnderAge(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	input := validInput()
	// 13歳の誕生日の翌日が生年月日（12歳364日）
	input.DOB = "2013-03-02"

	_, err := svc.Initiate(context.Background(), input)
	assertAPIErrorCode(t, err, model.ErrCodeValidation)

	// ちょうど13歳は登録できる
	input.DOB = "2013-03-01"
	if _, err := svc.Initiate(context.Background(), input); err != nil {
		t.Fatalf("expected exactly 13 years old to pass, got %v", err)
	}
}

// TestService_Initiate_DuplicateEmail は本登録済みemailの仮登録が拒否されることを検証する。
func TestService_Initiate_DuplicateEmail(t *testing.T) {
	svc, deps := newTestService(t)
	deps.users.findByEmailFn = func(ctx context.Context, email string) (*model.User, error) {
		return &model.User{ID: "user-1", Email: email}, nil
	}

	_, err := svc.Initiate(context.Background(), validInput())
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateEmail)
	if deps.store.Len() != 0 {
		t.Error("expected no entry in store")
	}
}

// TestService_Initiate_MailFailure はメール送信失敗時にエントリが破棄されることを検証する。
func TestService_Initiate_MailFailure(t *testing.T) {
	svc, deps := newTestService(t)
	deps.mailer.sendFn = func(ctx context.Context, email, firstName, code string, expiresAt time.Time) error {
		return errors.New("smtp unavailable")
	}

	_, err := svc.Initiate(context.Background(), validInput())
	assertAPIErrorCode(t, err, model.ErrCodeDependencyFailure)
	if deps.store.Len() != 0 {
		t.Error("expected entry to be rolled back after mail failure")
	}
}

// TestService_Initiate_AllowsPendingDuplicates は同一emailの仮登録が並存できることを検証する。
// 先に認証を完了した方が勝ち、もう一方は本登録時に重複エラーになる。
func TestService_Initiate_AllowsPendingDuplicates(t *testing.T) {
	svc, deps := newTestService(t)

	first, err := svc.Initiate(context.Background(), validInput())
	if err != nil {
		t.Fatalf("first Initiate returned error: %v", err)
	}
	second, err := svc.Initiate(context.Background(), validInput())
	if err != nil {
		t.Fatalf("second Initiate returned error: %v", err)
	}
	if first == second {
		t.Error("expected distinct registration IDs")
	}
	if deps.store.Len() != 2 {
		t.Errorf("store size = %d, want 2", deps.store.Len())
	}
}

// --- Verify ---

func initiateForTest(t *testing.T, svc *Service) string {
	t.Helper()
	regID, err := svc.Initiate(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Initiate returned error: %v", err)
	}
	return regID
}

// TestService_Verify は正しいコードで本登録が完了することを検証する。
func TestService_Verify(t *testing.T) {
	svc, deps := newTestService(t)

	var created *model.User
	deps.users.createFn = func(ctx context.Context, user *model.User) error {
		created = user
		return nil
	}

	regID := initiateForTest(t, svc)

	result, err := svc.Verify(context.Background(), regID, "123456")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}

	if created == nil {
		t.Fatal("expected user to be persisted")
	}
	if !created.EmailVerified || created.EmailVerifiedAt == nil {
		t.Error("expected user to be marked email verified")
	}
	if created.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", created.Email, "alice@example.com")
	}
	if created.Country != "CA" {
		t.Errorf("Country = %q, want CA", created.Country)
	}

	if result.Session == nil || result.Session.UserID != created.ID {
		t.Error("expected session for the new user")
	}
	if result.Token != "token-1" {
		t.Errorf("Token = %q, want token-1", result.Token)
	}
	if result.User.StripeCustomerID != "cus_test" {
		t.Errorf("StripeCustomerID = %q, want cus_test", result.User.StripeCustomerID)
	}

	if deps.store.Get(regID) != nil {
		t.Error("expected entry to be removed after successful verification")
	}
}

// TestService_Verify_UnknownID は存在しないIDの検証が失敗することを検証する。
func TestService_Verify_UnknownID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Verify(context.Background(), "no-such-id", "123456")
	assertAPIErrorCode(t, err, model.ErrCodeRegistrationNotFound)
}

// TestService_Verify_WrongCode はコード不一致で試行回数が加算されることを検証する。
func TestService_Verify_WrongCode(t *testing.T) {
	svc, deps := newTestService(t)
	regID := initiateForTest(t, svc)

	_, err := svc.Verify(context.Background(), regID, "000000")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCode)

	entry := deps.store.Get(regID)
	if entry == nil {
		t.Fatal("expected entry to survive a failed attempt")
	}
	if entry.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", entry.Attempts)
	}

	// 正しいコードならまだ成功できる
	if _, err := svc.Verify(context.Background(), regID, "123456"); err != nil {
		t.Fatalf("Verify with correct code returned error: %v", err)
	}
}

// TestService_Verify_TooManyAttempts は5回目の失敗でエントリが破棄されることを検証する。
func TestService_Verify_TooManyAttempts(t *testing.T) {
	svc, deps := newTestService(t)
	regID := initiateForTest(t, svc)

	for i := 0; i < 4; i++ {
		_, err := svc.Verify(context.Background(), regID, "000000")
		assertAPIErrorCode(t, err, model.ErrCodeInvalidCode)
	}

	_, err := svc.Verify(context.Background(), regID, "000000")
	assertAPIErrorCode(t, err, model.ErrCodeTooManyAttempts)
	if deps.store.Get(regID) != nil {
		t.Error("expected entry to be discarded after attempt limit")
	}

	// 破棄後は正しいコードでも復活しない
	_, err = svc.Verify(context.Background(), regID, "123456")
	assertAPIErrorCode(t, err, model.ErrCodeRegistrationNotFound)
}

// TestService_Verify_Expiry はコードの有効期限の境界を検証する。
func TestService_Verify_Expiry(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		wantOK  bool
	}{
		{"just inside TTL", 9*time.Minute + 59*time.Second, true},
		{"exactly TTL", 10 * time.Minute, true},
		{"just past TTL", 10*time.Minute + 1*time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestService(t)
			svc.now = func() time.Time { return issuedAt }

			regID := initiateForTest(t, svc)
			svc.now = func() time.Time { return issuedAt.Add(tt.elapsed) }

			_, err := svc.Verify(context.Background(), regID, "123456")
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Verify returned error: %v", err)
				}
				return
			}
			assertAPIErrorCode(t, err, model.ErrCodeCodeExpired)
			if deps.store.Get(regID) != nil {
				t.Error("expected expired entry to be discarded")
			}
		})
	}
}

// TestService_Verify_DuplicateOnPersist は本登録時の重複検出でエントリが破棄されることを検証する。
func TestService_Verify_DuplicateOnPersist(t *testing.T) {
	svc, deps := newTestService(t)
	deps.users.createFn = func(ctx context.Context, user *model.User) error {
		return model.NewDuplicateEmailError()
	}

	regID := initiateForTest(t, svc)

	_, err := svc.Verify(context.Background(), regID, "123456")
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateEmail)
	if deps.store.Get(regID) != nil {
		t.Error("expected entry to be discarded on duplicate email")
	}
}

// TestService_Verify_CustomerCreationFailureTolerated は決済顧客作成の失敗が
// 本登録を妨げないことを検証する。
func TestService_Verify_CustomerCreationFailureTolerated(t *testing.T) {
	svc, deps := newTestService(t)
	deps.payments.ensureFn = func(ctx context.Context, user *model.User) (string, error) {
		return "", errors.New("stripe unavailable")
	}

	regID := initiateForTest(t, svc)

	result, err := svc.Verify(context.Background(), regID, "123456")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.User.StripeCustomerID != "" {
		t.Errorf("StripeCustomerID = %q, want empty", result.User.StripeCustomerID)
	}
}

// --- Resend ---

// TestService_Resend は新コードの発行と試行回数のリセットを検証する。
func TestService_Resend(t *testing.T) {
	svc, deps := newTestService(t)
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	regID := initiateForTest(t, svc)

	// 失敗を重ねてから再送する
	svc.generateCode = func() (string, error) { return "654321", nil }
	_, _ = svc.Verify(context.Background(), regID, "000000")
	_, _ = svc.Verify(context.Background(), regID, "000000")

	resendAt := issuedAt.Add(5 * time.Minute)
	svc.now = func() time.Time { return resendAt }
	if err := svc.Resend(context.Background(), regID); err != nil {
		t.Fatalf("Resend returned error: %v", err)
	}

	entry := deps.store.Get(regID)
	if entry.VerificationCode != "654321" {
		t.Errorf("VerificationCode = %q, want new code", entry.VerificationCode)
	}
	if entry.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 after resend", entry.Attempts)
	}
	if !entry.CodeIssuedAt.Equal(resendAt) {
		t.Errorf("CodeIssuedAt = %v, want %v", entry.CodeIssuedAt, resendAt)
	}

	// 旧コードは無効になっている
	_, err := svc.Verify(context.Background(), regID, "123456")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCode)

	if _, err := svc.Verify(context.Background(), regID, "654321"); err != nil {
		t.Fatalf("Verify with new code returned error: %v", err)
	}
}

// TestService_Resend_UnknownID は存在しないIDへの再送が失敗することを検証する。
func TestService_Resend_UnknownID(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Resend(context.Background(), "no-such-id")
	assertAPIErrorCode(t, err, model.ErrCodeRegistrationNotFound)
}

// --- GetStatus ---

// TestService_GetStatus は残り時間と試行回数の報告を検証する。
func TestService_GetStatus(t *testing.T) {
	svc, _ := newTestService(t)
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	regID := initiateForTest(t, svc)
	_, _ = svc.Verify(context.Background(), regID, "000000")

	svc.now = func() time.Time { return issuedAt.Add(4 * time.Minute) }
	status, err := svc.GetStatus(regID)
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if status.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", status.Email, "alice@example.com")
	}
	if status.TimeRemaining != 6*time.Minute {
		t.Errorf("TimeRemaining = %v, want 6m", status.TimeRemaining)
	}
	if status.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", status.Attempts)
	}
}

// TestService_GetStatus_Expired は期限切れエントリが存在しない扱いになることを検証する。
// 実際の削除はスイーパーの仕事で、GetStatusは削除しない。
func TestService_GetStatus_Expired(t *testing.T) {
	svc, deps := newTestService(t)
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	regID := initiateForTest(t, svc)

	svc.now = func() time.Time { return issuedAt.Add(11 * time.Minute) }
	_, err := svc.GetStatus(regID)
	assertAPIErrorCode(t, err, model.ErrCodeRegistrationNotFound)

	if deps.store.Get(regID) == nil {
		t.Error("expected GetStatus to leave the entry for the sweeper")
	}
}

// TestService_GetStatus_Unknown は未知のIDに対するエラーを検証する。
func TestService_GetStatus_Unknown(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetStatus("no-such-id")
	assertAPIErrorCode(t, err, model.ErrCodeRegistrationNotFound)
}
