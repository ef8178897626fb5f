// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// サインアップファネルと決済の各段階をカウントする。
type Collector struct {
	signupInitiated  prometheus.Counter
	signupVerified   prometheus.Counter
	verificationFail *prometheus.CounterVec
	codeResent       prometheus.Counter
	emailSendFail    prometheus.Counter
	paymentIntent    prometheus.Counter
	paymentFail      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signupInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "b2d_signup_initiated_total",
			Help: "仮登録が開始された合計数",
		}),
		signupVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "b2d_signup_verified_total",
			Help: "メール認証が完了して本登録に至った合計数",
		}),
		verificationFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "b2d_verification_fail_total",
			Help: "認証コード検証失敗の理由別合計数",
		}, []string{"reason"}),
		codeResent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "b2d_code_resent_total",
			Help: "認証コードが再送された合計数",
		}),
		emailSendFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "b2d_email_send_fail_total",
			Help: "認証メール送信失敗の合計数",
		}),
		paymentIntent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "b2d_payment_intent_total",
			Help: "作成されたPaymentIntentの合計数",
		}),
		paymentFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "b2d_payment_fail_total",
			Help: "決済API呼び出し失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.signupInitiated,
		c.signupVerified,
		c.verificationFail,
		c.codeResent,
		c.emailSendFail,
		c.paymentIntent,
		c.paymentFail,
	)

	return c
}

// RecordSignupInitiated は仮登録の開始を記録する。
func (c *Collector) RecordSignupInitiated() {
	c.signupInitiated.Inc()
}

// RecordSignupVerified は本登録の完了を記録する。
func (c *Collector) RecordSignupVerified() {
	c.signupVerified.Inc()
}

// RecordVerificationFailure は認証コード検証の失敗を理由付きで記録する。
func (c *Collector) RecordVerificationFailure(reason string) {
	c.verificationFail.WithLabelValues(reason).Inc()
}

// RecordCodeResent は認証コードの再送を記録する。
func (c *Collector) RecordCodeResent() {
	c.codeResent.Inc()
}

// RecordEmailSendFailure は認証メール送信の失敗を記録する。
func (c *Collector) RecordEmailSendFailure() {
	c.emailSendFail.Inc()
}

// RecordPaymentIntentCreated はPaymentIntentの作成を記録する。
func (c *Collector) RecordPaymentIntentCreated() {
	c.paymentIntent.Inc()
}

// RecordPaymentFailure は決済API呼び出しの失敗を記録する。
func (c *Collector) RecordPaymentFailure() {
	c.paymentFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
