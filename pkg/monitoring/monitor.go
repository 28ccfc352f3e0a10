package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"method", "endpoint"},
	)

	// 每次结构化生成尝试的结果：accepted、rejected、transport_error
	GenerationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_generation_attempts_total",
			Help: "Structured generation attempts by schema and outcome",
		},
		[]string{"schema", "outcome"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_generation_duration_seconds",
			Help:    "Wall time of a structured generation call including retries",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"schema"},
	)

	RefinementTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refinement_turns_total",
			Help: "Refinement turns by target kind and result",
		},
		[]string{"target", "result"},
	)

	QuestionsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questions_generated_total",
			Help: "Questions produced by generation source",
		},
		[]string{"source"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_requests_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)
)

var registerOnce sync.Once

// Init 重复调用只注册一次
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(GenerationAttempts)
		prometheus.MustRegister(GenerationDuration)
		prometheus.MustRegister(RefinementTurns)
		prometheus.MustRegister(QuestionsGenerated)
		prometheus.MustRegister(RateLimited)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
