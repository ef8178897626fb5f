package payment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/books2digital/backend/internal/model"
	"github.com/books2digital/backend/internal/repository"
)

// defaultCurrency は通貨未指定時に使用する通貨コード。
const defaultCurrency = "cad"

// StripeAPI はStripeクライアントのインターフェース。
type StripeAPI interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error)
}

// MetricsRecorder は決済関連メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordPaymentIntentCreated()
	RecordPaymentFailure()
}

type nopMetrics struct{}

func (nopMetrics) RecordPaymentIntentCreated() {}
func (nopMetrics) RecordPaymentFailure()       {}

// Service は決済に関するビジネスロジックを提供する。
type Service struct {
	stripe   StripeAPI
	userRepo repository.UserRepository
	metrics  MetricsRecorder
	logger   *slog.Logger
}

// NewService はServiceを生成する。metricsはnilを許容する。
func NewService(stripe StripeAPI, userRepo repository.UserRepository, metrics MetricsRecorder, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		stripe:   stripe,
		userRepo: userRepo,
		metrics:  metrics,
		logger:   logger,
	}
}

// EnsureCustomer はユーザーに紐付くStripe顧客を返す。未作成なら作成する。
// 顧客IDの永続化失敗は作成済み顧客の利用を妨げない。次回も同じIDが
// 再作成されうるが、決済自体は成立する。
func (s *Service) EnsureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	customerID, err := s.stripe.CreateCustomer(ctx, CustomerParams{
		Email:  user.Email,
		Name:   user.FullName(),
		Phone:  user.Phone,
		UserID: user.ID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}

	if err := s.userRepo.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		s.logger.Warn("failed to persist stripe customer ID",
			slog.String("user_id", user.ID),
			slog.String("customer_id", customerID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("stripe customer created",
		slog.String("user_id", user.ID),
		slog.String("customer_id", customerID),
	)

	return customerID, nil
}

// IntentResult はPaymentIntent作成の結果。
type IntentResult struct {
	ClientSecret string
	CustomerID   string
}

// CreateIntent は指定金額のPaymentIntentを作成する。
// 金額はドル単位で受け取り、セントに換算してStripeへ渡す。
// orderDataは注文情報としてPaymentIntentのmetadataに記録される。
func (s *Service) CreateIntent(ctx context.Context, userID string, amount float64, currency string, orderData map[string]string) (*IntentResult, error) {
	if amount <= 0 {
		return nil, model.NewInvalidAmountError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	customerID, err := s.EnsureCustomer(ctx, user)
	if err != nil {
		s.metrics.RecordPaymentFailure()
		s.logger.Error("failed to ensure stripe customer",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDependencyFailureError("Payment service unavailable. Please try again.")
	}

	cur := strings.ToLower(strings.TrimSpace(currency))
	if cur == "" {
		cur = defaultCurrency
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, IntentParams{
		AmountCents: int64(math.Round(amount * 100)),
		Currency:    cur,
		CustomerID:  customerID,
		UserID:      userID,
		OrderData:   orderData,
	})
	if err != nil {
		s.metrics.RecordPaymentFailure()
		s.logger.Error("failed to create payment intent",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDependencyFailureError("Payment service unavailable. Please try again.")
	}

	s.metrics.RecordPaymentIntentCreated()
	s.logger.Info("payment intent created",
		slog.String("user_id", userID),
		slog.String("intent_id", intent.ID),
		slog.String("currency", cur),
	)

	return &IntentResult{
		ClientSecret: intent.ClientSecret,
		CustomerID:   customerID,
	}, nil
}
