package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/middleware"
)

// NewRouter 는 HTTP 라우터를 구성한다.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	cat *catalog.Catalog,
	store ledger.Store,
	stats *metrics.Store,
	routerHandler *RouterHandler,
	usageHandler *UsageHandler,
) *gin.Engine {
	setGinMode(cfg.Logging.Level)

	router := gin.New()

	if cfg.Telemetry.Enabled {
		router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		gin.Recovery(),
		middleware.APIKeyAuth(cfg),
		middleware.RateLimit(cfg),
		newGzipMiddleware(),
	)

	RegisterHealthRoutes(router, cfg, cat, store, stats)
	routerHandler.RegisterRoutes(router)
	usageHandler.RegisterRoutes(router)

	return router
}

func newGzipMiddleware() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithCustomShouldCompressFn(func(c *gin.Context) bool {
		// Health check, 메트릭 폴링은 압축 제외
		switch c.Request.URL.Path {
		case "/health", "/health/ready", "/metrics":
			return false
		}
		return true
	}))
}

func setGinMode(level string) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		gin.SetMode(gin.DebugMode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}
