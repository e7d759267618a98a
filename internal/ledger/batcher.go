package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
)

// deltaKey 배치 누적 단위
type deltaKey struct {
	day     time.Time
	backend catalog.Backend
}

// usageDelta (일자, 백엔드)별 사용량 델타
type usageDelta struct {
	tokens        int64
	requests      int64
	rateLimitHits int64
	errorCount    int64
}

const defaultFlushTimeout = 5 * time.Second

// batcher 는 사용량 증분을 모아 배치로 원장에 플러시한다.
type batcher struct {
	writer                   batchWriter
	logger                   *slog.Logger
	flushInterval            time.Duration
	flushTimeout             time.Duration
	maxPendingRequests       int
	maxBackoff               time.Duration
	errorLogMaxInterval      time.Duration
	mu                       sync.Mutex
	pending                  map[deltaKey]*usageDelta
	pendingRequestsTotal     int
	wakeup                   chan struct{}
	stopCh                   chan struct{}
	doneCh                   chan struct{}
	consecutiveFlushFailures int
	nextFlushAllowedAt       time.Time
	lastErrorLoggedAt        time.Time
	flushSuccessTotal        int
	flushFailureTotal        int
	flushRequeuedTotal       int
	flushDroppedTotal        int
}

// newBatcher 새로운 배치 플러셔 생성
func newBatcher(cfg *config.Config, writer batchWriter, logger *slog.Logger) *batcher {
	interval := time.Duration(cfg.Database.UsageBatchFlushIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	maxBackoff := time.Duration(cfg.Database.UsageBatchMaxBackoffSeconds) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = interval
	}
	maxPending := cfg.Database.UsageBatchMaxPendingRequests
	if maxPending <= 0 {
		maxPending = 1
	}
	flushTimeout := defaultFlushTimeout
	if cfg.Database.UsageBatchFlushTimeoutSeconds > 0 {
		flushTimeout = time.Duration(cfg.Database.UsageBatchFlushTimeoutSeconds) * time.Second
	}
	if flushTimeout <= 0 {
		flushTimeout = interval
	}
	return &batcher{
		writer:              writer,
		logger:              logger,
		flushInterval:       interval,
		flushTimeout:        flushTimeout,
		maxPendingRequests:  maxPending,
		maxBackoff:          maxBackoff,
		errorLogMaxInterval: time.Duration(cfg.Database.UsageBatchErrorLogMaxIntervalSeconds) * time.Second,
		pending:             make(map[deltaKey]*usageDelta),
		wakeup:              make(chan struct{}, 1),
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
}

func (b *batcher) start() {
	go b.loop()
}

func (b *batcher) stop() {
	close(b.stopCh)
	<-b.doneCh
}

func (b *batcher) add(backend catalog.Backend, tokens int64, requests int64, rateLimitHits int64, errorCount int64) {
	key := deltaKey{day: Today(), backend: backend}
	b.mu.Lock()
	delta := b.pending[key]
	if delta == nil {
		delta = &usageDelta{}
		b.pending[key] = delta
	}
	delta.tokens += tokens
	delta.requests += requests
	delta.rateLimitHits += rateLimitHits
	delta.errorCount += errorCount
	b.pendingRequestsTotal += int(requests)
	shouldFlush := b.pendingRequestsTotal >= b.maxPendingRequests
	b.mu.Unlock()

	if shouldFlush {
		b.signal()
	}
}

func (b *batcher) loop() {
	ticker := time.NewTicker(b.flushInterval)
	defer func() {
		ticker.Stop()
		close(b.doneCh)
	}()

	for {
		select {
		case <-ticker.C:
			b.flush(false)
		case <-b.wakeup:
			b.flush(false)
		case <-b.stopCh:
			b.flush(true)
			return
		}
	}
}

func (b *batcher) signal() {
	select {
	case b.wakeup <- struct{}{}:
	default:
	}
}

func (b *batcher) flush(isShutdown bool) {
	if b.shouldSkipFlush(isShutdown) {
		return
	}

	snapshot := b.takeSnapshot()
	if len(snapshot) == 0 {
		return
	}

	hadFailure, firstErr := b.applySnapshot(snapshot, isShutdown)
	if hadFailure {
		b.registerFailure(firstErr)
		return
	}

	b.resetFailures()
}

func (b *batcher) shouldSkipFlush(isShutdown bool) bool {
	if isShutdown {
		return false
	}
	if b.nextFlushAllowedAt.IsZero() {
		return false
	}
	return time.Now().Before(b.nextFlushAllowedAt)
}

func (b *batcher) takeSnapshot() map[deltaKey]usageDelta {
	snapshot := make(map[deltaKey]usageDelta)
	b.mu.Lock()
	for key, delta := range b.pending {
		snapshot[key] = *delta
	}
	b.pending = make(map[deltaKey]*usageDelta)
	b.pendingRequestsTotal = 0
	b.mu.Unlock()
	return snapshot
}

func (b *batcher) applySnapshot(snapshot map[deltaKey]usageDelta, isShutdown bool) (bool, error) {
	hadFailure := false
	var firstErr error
	for key, delta := range snapshot {
		ctx := context.Background()
		cancel := func() {}
		if b.flushTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, b.flushTimeout)
		}
		err := b.writer.recordDelta(
			ctx,
			key.day,
			key.backend,
			delta.tokens,
			delta.requests,
			delta.rateLimitHits,
			delta.errorCount,
		)
		cancel()
		if err != nil {
			hadFailure = true
			if firstErr == nil {
				firstErr = err
			}
			b.flushFailureTotal++
			if isShutdown {
				b.flushDroppedTotal++
				continue
			}
			b.requeue(key, delta)
			b.flushRequeuedTotal++
			continue
		}
		b.flushSuccessTotal++
	}
	return hadFailure, firstErr
}

func (b *batcher) requeue(key deltaKey, delta usageDelta) {
	b.mu.Lock()
	existing := b.pending[key]
	if existing == nil {
		existing = &usageDelta{}
		b.pending[key] = existing
	}
	existing.tokens += delta.tokens
	existing.requests += delta.requests
	existing.rateLimitHits += delta.rateLimitHits
	existing.errorCount += delta.errorCount
	b.pendingRequestsTotal += int(delta.requests)
	b.mu.Unlock()
}

func (b *batcher) registerFailure(firstErr error) {
	b.consecutiveFlushFailures++
	backoff := b.computeBackoff()
	b.nextFlushAllowedAt = time.Now().Add(backoff)

	if b.shouldLogFailure() {
		b.lastErrorLoggedAt = time.Now()
		if b.logger != nil {
			b.logger.Warn(
				"ledger_batch_flush_failed",
				"failures", b.consecutiveFlushFailures,
				"backoff", backoff,
				"pending_requests", b.pendingRequestsTotal,
				"err", firstErr,
			)
		}
	}
}

func (b *batcher) computeBackoff() time.Duration {
	backoff := b.flushInterval * time.Duration(1<<max(0, b.consecutiveFlushFailures-1))
	if backoff > b.maxBackoff {
		backoff = b.maxBackoff
	}
	if backoff <= 0 {
		backoff = b.flushInterval
	}
	return backoff
}

func (b *batcher) resetFailures() {
	b.consecutiveFlushFailures = 0
	b.nextFlushAllowedAt = time.Time{}
}

func (b *batcher) shouldLogFailure() bool {
	if b.consecutiveFlushFailures <= 0 {
		return false
	}
	if isPowerOfTwo(b.consecutiveFlushFailures) {
		return true
	}
	if b.errorLogMaxInterval <= 0 {
		return false
	}
	return time.Since(b.lastErrorLoggedAt) >= b.errorLogMaxInterval
}

// isPowerOfTwo 2의 거듭제곱인지 확인
func isPowerOfTwo(value int) bool {
	return value > 0 && (value&(value-1)) == 0
}
