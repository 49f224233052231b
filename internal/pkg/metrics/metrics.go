package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus 指标集合。
var (
	// HTTPRequestDuration 按方法/路径/状态统计请求耗时。
	HTTPRequestDuration *prometheus.HistogramVec
	// SignupTotal 注册请求计数（按结果：ok / validation / conflict / delivery_failed）。
	SignupTotal *prometheus.CounterVec
	// CodeIssuedTotal 已派生并投递的确认码总数。
	CodeIssuedTotal prometheus.Counter
	// CodeRejectedTotal 确认码校验失败总数。
	CodeRejectedTotal prometheus.Counter
	// TokenIssuedTotal 成功签发的 JWT 总数。
	TokenIssuedTotal prometheus.Counter
	// RateLimitRejectedTotal 被限流拒绝的请求总数。
	RateLimitRejectedTotal prometheus.Counter
)

var initOnce sync.Once

// InitMetrics 注册所有 Prometheus 指标。
//
// 幂等：重复调用只注册一次，测试中可随意调用。
func InitMetrics() {
	initOnce.Do(func() {
		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yamdb",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		SignupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yamdb",
			Name:      "signup_total",
			Help:      "Sign-up requests by outcome.",
		}, []string{"outcome"})

		CodeIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yamdb",
			Name:      "confirmation_code_issued_total",
			Help:      "Confirmation codes issued and delivered.",
		})

		CodeRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yamdb",
			Name:      "confirmation_code_rejected_total",
			Help:      "Confirmation code validations that failed.",
		})

		TokenIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yamdb",
			Name:      "token_issued_total",
			Help:      "Access tokens minted.",
		})

		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yamdb",
			Name:      "ratelimit_rejected_total",
			Help:      "Requests rejected by the auth rate limiter.",
		})

		prometheus.MustRegister(
			HTTPRequestDuration,
			SignupTotal,
			CodeIssuedTotal,
			CodeRejectedTotal,
			TokenIssuedTotal,
			RateLimitRejectedTotal,
		)
	})
}
