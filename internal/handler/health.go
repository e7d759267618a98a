package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/health"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/metrics"
)

// BackendQuotaResponse: 백엔드 한도 응답입니다.
type BackendQuotaResponse struct {
	Backend           string `json:"backend"`
	DailyTokenLimit   int64  `json:"daily_token_limit"`
	DailyRequestLimit int64  `json:"daily_request_limit"`
	Priority          int    `json:"priority"`
}

// RegisterHealthRoutes: 상태 확인 라우트를 등록합니다.
func RegisterHealthRoutes(
	router *gin.Engine,
	cfg *config.Config,
	cat *catalog.Catalog,
	store ledger.Store,
	stats *metrics.Store,
) {
	router.GET("/health", func(c *gin.Context) {
		// Liveness: 외부 의존성(Valkey/DB 등) 상태로 인해 다운 판정되지 않도록 shallow로 유지합니다.
		payload := health.Collect(c.Request.Context(), cfg, cat, store, false)
		c.JSON(http.StatusOK, payload)
	})

	router.GET("/health/ready", func(c *gin.Context) {
		payload := health.Collect(c.Request.Context(), cfg, cat, store, true)
		status := http.StatusOK
		if payload.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, payload)
	})

	// Prometheus 메트릭 (장기 히스토리 분석용)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health/backends", func(c *gin.Context) {
		quotas := make([]BackendQuotaResponse, 0, cat.Size())
		for _, entry := range cat.Entries() {
			quotas = append(quotas, BackendQuotaResponse{
				Backend:           entry.Backend.String(),
				DailyTokenLimit:   entry.DailyTokenLimit,
				DailyRequestLimit: entry.DailyRequestLimit,
				Priority:          entry.Priority,
			})
		}

		response := gin.H{"backends": quotas}
		if stats != nil {
			response["stats"] = stats.Snapshot()
		}
		c.JSON(http.StatusOK, response)
	})
}
