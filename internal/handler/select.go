package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/metrics"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/router"
)

// SnapshotResponse: 백엔드 사용량 스냅샷 응답입니다.
type SnapshotResponse struct {
	Backend        string  `json:"backend"`
	Priority       int     `json:"priority"`
	UsageDate      string  `json:"usage_date"`
	TokensUsed     int64   `json:"tokens_used"`
	TokenLimit     int64   `json:"token_limit"`
	RequestsUsed   int64   `json:"requests_used"`
	RequestLimit   int64   `json:"request_limit"`
	RateLimitHits  int64   `json:"rate_limit_hits"`
	ErrorCount     int64   `json:"error_count"`
	UsagePercent   float64 `json:"usage_percent"`
	RateLimited    bool    `json:"rate_limited"`
	ErrorSaturated bool    `json:"error_saturated"`
}

// SelectionResponse: 백엔드 선택 응답입니다.
type SelectionResponse struct {
	Backend      string             `json:"backend"`
	Priority     int                `json:"priority"`
	UsagePercent float64            `json:"usage_percent"`
	Reasoning    string             `json:"reasoning"`
	Fallback     bool               `json:"fallback"`
	Backends     []SnapshotResponse `json:"backends"`
}

// CapacityResponse: 합산 용량 응답입니다.
type CapacityResponse struct {
	UsageDate     string  `json:"usage_date"`
	TokensUsed    int64   `json:"tokens_used"`
	TokenLimit    int64   `json:"token_limit"`
	RequestsUsed  int64   `json:"requests_used"`
	RequestLimit  int64   `json:"request_limit"`
	TokenPercent  float64 `json:"token_percent"`
	BackendCount  int     `json:"backend_count"`
	ExcludedCount int     `json:"excluded_count"`
}

// RouterHandler: 백엔드 선택 API 핸들러입니다.
type RouterHandler struct {
	cfg       *config.Config
	engine    *router.Engine
	snapshots *router.SnapshotService
	stats     *metrics.Store
	logger    *slog.Logger
}

// NewRouterHandler: 선택 핸들러를 생성합니다.
func NewRouterHandler(
	cfg *config.Config,
	engine *router.Engine,
	snapshots *router.SnapshotService,
	stats *metrics.Store,
	logger *slog.Logger,
) *RouterHandler {
	return &RouterHandler{
		cfg:       cfg,
		engine:    engine,
		snapshots: snapshots,
		stats:     stats,
		logger:    logger,
	}
}

// RegisterRoutes: 선택 라우트를 등록합니다.
func (h *RouterHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/router")
	group.GET("/select", h.handleSelect)
	group.GET("/status", h.handleStatus)
	group.GET("/capacity", h.handleCapacity)
}

func (h *RouterHandler) handleSelect(c *gin.Context) {
	ctx, cancel := h.selectContext(c)
	defer cancel()

	startedAt := time.Now()
	selection, err := h.engine.Select(ctx)
	if err != nil {
		if errors.Is(err, router.ErrNoBackendAvailable) && h.stats != nil {
			h.stats.RecordExhaustion(time.Since(startedAt))
		}
		h.logError(err)
		writeError(c, err)
		return
	}
	if h.stats != nil {
		h.stats.RecordSelection(selection.Backend.String(), selection.Fallback, time.Since(startedAt))
	}

	c.JSON(http.StatusOK, buildSelectionResponse(selection))
}

func (h *RouterHandler) handleStatus(c *gin.Context) {
	ctx, cancel := h.selectContext(c)
	defer cancel()

	snapshots, err := h.snapshots.Snapshots(ctx, time.Now())
	if err != nil {
		h.logError(err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"backends": buildSnapshotResponses(snapshots)})
}

func (h *RouterHandler) handleCapacity(c *gin.Context) {
	ctx, cancel := h.selectContext(c)
	defer cancel()

	capacity, err := h.snapshots.CapacityFor(ctx, time.Now())
	if err != nil {
		h.logError(err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, CapacityResponse{
		UsageDate:     capacity.Day.Format("2006-01-02"),
		TokensUsed:    capacity.TokensUsed,
		TokenLimit:    capacity.TokenLimit,
		RequestsUsed:  capacity.RequestsUsed,
		RequestLimit:  capacity.RequestLimit,
		TokenPercent:  capacity.TokenPercent(),
		BackendCount:  capacity.BackendCount,
		ExcludedCount: capacity.ExcludedCount,
	})
}

func (h *RouterHandler) selectContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := 0
	if h.cfg != nil {
		timeout = h.cfg.Router.SelectTimeoutSeconds
	}
	if timeout <= 0 {
		return c.Request.Context(), func() {}
	}
	return context.WithTimeout(c.Request.Context(), time.Duration(timeout)*time.Second)
}

func buildSelectionResponse(selection router.Selection) SelectionResponse {
	return SelectionResponse{
		Backend:      selection.Backend.String(),
		Priority:     selection.Priority,
		UsagePercent: selection.UsagePercent,
		Reasoning:    selection.Reasoning,
		Fallback:     selection.Fallback,
		Backends:     buildSnapshotResponses(selection.Snapshots),
	}
}

func buildSnapshotResponses(snapshots []router.Snapshot) []SnapshotResponse {
	responses := make([]SnapshotResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		responses = append(responses, SnapshotResponse{
			Backend:        snapshot.Backend.String(),
			Priority:       snapshot.Priority,
			UsageDate:      snapshot.Day.Format("2006-01-02"),
			TokensUsed:     snapshot.TokensUsed,
			TokenLimit:     snapshot.TokenLimit,
			RequestsUsed:   snapshot.RequestsUsed,
			RequestLimit:   snapshot.RequestLimit,
			RateLimitHits:  snapshot.RateLimitHits,
			ErrorCount:     snapshot.ErrorCount,
			UsagePercent:   snapshot.UsagePercent,
			RateLimited:    snapshot.RateLimited,
			ErrorSaturated: snapshot.ErrorSaturated,
		})
	}
	return responses
}

func (h *RouterHandler) logError(err error) {
	if err == nil || h.logger == nil {
		return
	}
	h.logger.Warn("router_request_failed", "err", err)
}
