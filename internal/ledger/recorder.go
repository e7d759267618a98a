package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
)

// batchWriter 는 (일자, 백엔드)별 원시 증분을 적용하는 내부 쓰기 경로다.
// 배치 플러셔가 outcome 단위가 아닌 합산된 카운터를 내려보낼 때 사용한다.
type batchWriter interface {
	recordDelta(
		ctx context.Context,
		day time.Time,
		backend catalog.Backend,
		tokens int64,
		requests int64,
		rateLimitHits int64,
		errorCount int64,
	) error
}

var (
	_ batchWriter = (*Repository)(nil)
	_ batchWriter = (*ValkeyStore)(nil)
)

// Recorder 는 호출 결과를 원장에 기록하거나 배치로 적재한다.
type Recorder struct {
	store   Store
	batcher *batcher
	logger  *slog.Logger
}

// NewRecorder 는 설정에 따라 배치 사용 여부를 결정해 Recorder를 생성한다.
// 배치를 켜면 쓰기 실패가 호출자에게 전파되지 않고 재시도 큐에 남는다.
func NewRecorder(cfg *config.Config, store Store, logger *slog.Logger) *Recorder {
	recorder := &Recorder{
		store:  store,
		logger: logger,
	}

	if cfg != nil && cfg.Database.UsageBatchEnabled {
		if writer, ok := store.(batchWriter); ok {
			recorder.batcher = newBatcher(cfg, writer, logger)
			recorder.batcher.start()
			if logger != nil {
				logger.Info(
					"ledger_batch_enabled",
					"flush_interval_seconds", cfg.Database.UsageBatchFlushIntervalSeconds,
					"flush_timeout_seconds", cfg.Database.UsageBatchFlushTimeoutSeconds,
					"max_pending_requests", cfg.Database.UsageBatchMaxPendingRequests,
					"max_backoff_seconds", cfg.Database.UsageBatchMaxBackoffSeconds,
					"error_log_max_interval_seconds", cfg.Database.UsageBatchErrorLogMaxIntervalSeconds,
				)
			}
		} else if logger != nil {
			logger.Warn("ledger_batch_unsupported_store")
		}
	}

	return recorder
}

// Record 는 완료된 호출 1회분의 사용량을 기록한다.
// 배치 모드에서는 즉시 반환하며 실제 쓰기는 플러시 주기에 수행된다.
func (r *Recorder) Record(
	ctx context.Context,
	backend catalog.Backend,
	tokens int64,
	requests int64,
	outcome Outcome,
) error {
	if r == nil || r.store == nil {
		return nil
	}

	if r.batcher != nil {
		rateLimitHits, errorCount, err := outcomeCounters(tokens, requests, outcome)
		if err != nil {
			return err
		}
		r.batcher.add(backend, tokens, requests, rateLimitHits, errorCount)
		return nil
	}

	if err := r.store.Record(ctx, backend, tokens, requests, outcome); err != nil {
		if r.logger != nil {
			r.logger.Warn("ledger_write_failed", "backend", backend, "err", err)
		}
		return err
	}
	return nil
}

// Close 는 배치 플러셔를 중지하고 잔여분을 플러시한다.
func (r *Recorder) Close() {
	if r == nil || r.batcher == nil {
		return
	}
	r.batcher.stop()
}
