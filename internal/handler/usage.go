package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/httperror"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/metrics"
)

const usageDateLayout = "2006-01-02"

// RecordUsageRequest: 사용량 기록 요청입니다.
type RecordUsageRequest struct {
	Backend  string `json:"backend" binding:"required"`
	Tokens   int64  `json:"tokens" binding:"min=0"`
	Requests int64  `json:"requests" binding:"min=0"`
	Outcome  string `json:"outcome" binding:"required,oneof=success rate_limited error"`
}

// UsageRowResponse: (일자, 백엔드) 사용량 응답입니다.
type UsageRowResponse struct {
	UsageDate     string `json:"usage_date"`
	Backend       string `json:"backend"`
	TokensUsed    int64  `json:"tokens_used"`
	RequestCount  int64  `json:"request_count"`
	RateLimitHits int64  `json:"rate_limit_hits"`
	ErrorCount    int64  `json:"error_count"`
}

// UsageListResponse: 사용량 목록 응답입니다.
type UsageListResponse struct {
	Usages            []UsageRowResponse `json:"usages"`
	TotalTokensUsed   int64              `json:"total_tokens_used"`
	TotalRequestCount int64              `json:"total_request_count"`
}

// UsageHandler: 사용량 API 핸들러입니다.
type UsageHandler struct {
	cfg      *config.Config
	store    ledger.Store
	recorder *ledger.Recorder
	stats    *metrics.Store
	logger   *slog.Logger
}

// NewUsageHandler: 사용량 핸들러를 생성합니다.
func NewUsageHandler(
	cfg *config.Config,
	store ledger.Store,
	recorder *ledger.Recorder,
	stats *metrics.Store,
	logger *slog.Logger,
) *UsageHandler {
	return &UsageHandler{
		cfg:      cfg,
		store:    store,
		recorder: recorder,
		stats:    stats,
		logger:   logger,
	}
}

// RegisterRoutes: 사용량 라우트를 등록합니다.
func (h *UsageHandler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/usage")
	group.POST("/record", h.handleRecord)
	group.GET("/daily", h.handleDaily)
	group.GET("/history", h.handleHistory)
}

func (h *UsageHandler) handleRecord(c *gin.Context) {
	var req RecordUsageRequest
	if !bindJSON(c, &req) {
		return
	}

	backend, err := catalog.Parse(req.Backend)
	if err != nil {
		writeError(c, err)
		return
	}

	outcome := ledger.Outcome(req.Outcome)
	if err := h.recorder.Record(c.Request.Context(), backend, req.Tokens, req.Requests, outcome); err != nil {
		if h.stats != nil {
			h.stats.RecordUsageWriteFailure()
		}
		h.logError(err)
		writeError(c, err)
		return
	}
	if h.stats != nil {
		h.stats.RecordUsageWrite(backend.String(), req.Outcome)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "recorded",
		"backend":    backend.String(),
		"usage_date": ledger.Today().Format(usageDateLayout),
	})
}

func (h *UsageHandler) handleDaily(c *gin.Context) {
	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(usageDateLayout, raw)
		if err != nil {
			writeError(c, httperror.NewInvalidInput("date must be formatted as YYYY-MM-DD"))
			return
		}
		day = parsed
	}

	records, err := h.store.ReadDay(c.Request.Context(), day)
	if err != nil {
		h.logError(err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, buildUsageListResponse(records))
}

func (h *UsageHandler) handleHistory(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -6)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(usageDateLayout, raw)
		if err != nil {
			writeError(c, httperror.NewInvalidInput("from must be formatted as YYYY-MM-DD"))
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(usageDateLayout, raw)
		if err != nil {
			writeError(c, httperror.NewInvalidInput("to must be formatted as YYYY-MM-DD"))
			return
		}
		to = parsed
	}

	fromDay := ledger.DayKey(from)
	toDay := ledger.DayKey(to)
	if toDay.Before(fromDay) {
		writeError(c, httperror.NewInvalidInput("to must not precede from"))
		return
	}
	if maxDays := h.historyMaxDays(); maxDays > 0 {
		spanDays := int(toDay.Sub(fromDay).Hours()/24) + 1
		if spanDays > maxDays {
			writeError(c, httperror.NewInvalidInput("requested range exceeds history window"))
			return
		}
	}

	records, err := h.store.ReadRange(c.Request.Context(), fromDay, toDay)
	if err != nil {
		h.logError(err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, buildUsageListResponse(records))
}

func (h *UsageHandler) historyMaxDays() int {
	if h.cfg == nil {
		return 0
	}
	return h.cfg.Router.HistoryMaxDays
}

func buildUsageListResponse(records []ledger.Record) UsageListResponse {
	response := UsageListResponse{
		Usages: make([]UsageRowResponse, 0, len(records)),
	}
	for _, record := range records {
		response.Usages = append(response.Usages, UsageRowResponse{
			UsageDate:     record.Day.Format(usageDateLayout),
			Backend:       record.Backend.String(),
			TokensUsed:    record.TokensUsed,
			RequestCount:  record.RequestCount,
			RateLimitHits: record.RateLimitHits,
			ErrorCount:    record.ErrorCount,
		})
		response.TotalTokensUsed += record.TokensUsed
		response.TotalRequestCount += record.RequestCount
	}
	return response
}

func (h *UsageHandler) logError(err error) {
	if err == nil || h.logger == nil {
		return
	}
	h.logger.Warn("usage_request_failed", "err", err)
}
