package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/books2digital/backend/internal/metrics"
	"github.com/books2digital/backend/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サインアップ
	SignupService SignupServiceInterface
	SignupConfig  SignupHandlerConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 決済
	PaymentService PaymentServiceInterface

	// メトリクス公開（nilの場合は/metricsを提供しない）
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging
//	認証ルート: + Session → RateLimit(General)
//	サインアップルート: + RateLimit(Signup, IP単位)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	signupHandler := NewSignupHandler(deps.SignupService, deps.SignupConfig)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	paymentHandler := NewPaymentHandler(deps.PaymentService)

	// --- 認証不要のルート ---

	// サインアップワークフロー（IP単位のレート制限）
	r.Route("/signup", func(r chi.Router) {
		r.With(deps.RateLimiter.SignupMiddleware()).Post("/initiate", signupHandler.Initiate)
		r.With(deps.RateLimiter.SignupMiddleware()).Post("/verify", signupHandler.Verify)
		r.With(deps.RateLimiter.SignupMiddleware()).Post("/resend-code", signupHandler.Resend)
		r.Get("/status/{registrationId}", signupHandler.Status)
	})

	// セッション管理
	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.SignupMiddleware()).Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	if deps.MetricsGatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.MetricsGatherer).ServeHTTP)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/payments", func(r chi.Router) {
			r.Post("/intent", paymentHandler.CreateIntent)
		})
	})

	return r
}
