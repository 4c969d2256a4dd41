package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/address-ledger/internal/config"
	"github.com/richardliu001/address-ledger/internal/metrics"
	"github.com/richardliu001/address-ledger/internal/service"
	"go.uber.org/zap"
)

// NewRouter wires middleware, the ledger API and /metrics. gatherer may be nil
// to leave /metrics out.
func NewRouter(svc *service.LedgerService, rl config.RateLimitConfig, m *metrics.Metrics, gatherer prometheus.Gatherer, info BuildInfo, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware(m))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc, info, log)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}
