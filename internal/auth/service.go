package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/books2digital/backend/internal/model"
	"github.com/books2digital/backend/internal/repository"
)

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// TokenIssuer はAPIトークンの発行インターフェース。
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      PasswordHasher
	tokens      TokenIssuer
	config      ServiceConfig
	logger      *slog.Logger

	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		tokens:      tokens,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// SignupInput は直接サインアップの入力。
type SignupInput struct {
	Email    string
	Password string

	FirstName     string
	LastName      string
	PreferredName string
	DOB           string // "2006-01-02"
	Phone         string

	UnitNumber string
	Street     string
	City       string
	Province   string
	PostalCode string
}

// Signup はメール認証を経ない直接サインアップ。
// ユーザーを作成し、そのままセッションとAPIトークンを発行する。
// email_verifiedはfalseのまま保存される。
func (s *Service) Signup(ctx context.Context, input SignupInput) (*LoginResult, error) {
	required := []struct {
		name  string
		value string
	}{
		{"email", input.Email},
		{"password", input.Password},
		{"firstName", input.FirstName},
		{"lastName", input.LastName},
		{"dob", input.DOB},
		{"street", input.Street},
		{"city", input.City},
		{"province", input.Province},
		{"postalCode", input.PostalCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return nil, model.NewValidationError("Missing required field: " + f.name)
		}
	}
	if len(input.Password) < 8 {
		return nil, model.NewValidationError("Password must be at least 8 characters long")
	}

	dob, err := time.Parse("2006-01-02", input.DOB)
	if err != nil {
		return nil, model.NewValidationError("Invalid date of birth format. Use YYYY-MM-DD")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:            uuid.NewString(),
		Email:         normalizeEmail(input.Email),
		PasswordHash:  hash,
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		PreferredName: strings.TrimSpace(input.PreferredName),
		DOB:           dob,
		Phone:         strings.TrimSpace(input.Phone),
		UnitNumber:    strings.TrimSpace(input.UnitNumber),
		Street:        strings.TrimSpace(input.Street),
		City:          strings.TrimSpace(input.City),
		Province:      strings.ToUpper(strings.TrimSpace(input.Province)),
		PostalCode:    strings.ToUpper(strings.TrimSpace(input.PostalCode)),
		Country:       "CA",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// 重複emailはリポジトリ層の一意制約違反検出に委ねる
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	session, err := s.IssueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("user signed up", slog.String("user_id", user.ID))

	return &LoginResult{User: user, Session: session, Token: token}, nil
}

// Login はemailとパスワードで認証し、セッションとAPIトークンを発行する。
// email未登録とパスワード不一致は同じエラーを返し、登録状況を漏らさない。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, model.NewInvalidCredentialsError()
	}

	now := s.now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// 最終ログイン日時の更新失敗はログイン自体を妨げない
		s.logger.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &now
	}

	session, err := s.IssueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{User: user, Session: session, Token: token}, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// IssueSession はセッションを作成し永続化する。
func (s *Service) IssueSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// normalizeEmail はemailを小文字に正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
