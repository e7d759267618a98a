package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
)

type fakeDeltaWriter struct {
	mu     sync.Mutex
	deltas map[deltaKey]usageDelta
	err    error
}

func newFakeDeltaWriter() *fakeDeltaWriter {
	return &fakeDeltaWriter{deltas: make(map[deltaKey]usageDelta)}
}

func (f *fakeDeltaWriter) recordDelta(
	_ context.Context,
	day time.Time,
	backend catalog.Backend,
	tokens int64,
	requests int64,
	rateLimitHits int64,
	errorCount int64,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	key := deltaKey{day: day, backend: backend}
	delta := f.deltas[key]
	delta.tokens += tokens
	delta.requests += requests
	delta.rateLimitHits += rateLimitHits
	delta.errorCount += errorCount
	f.deltas[key] = delta
	return nil
}

func TestBatcherFlushAggregatesDeltas(t *testing.T) {
	writer := newFakeDeltaWriter()
	b := &batcher{
		writer:       writer,
		flushTimeout: time.Second,
		pending:      make(map[deltaKey]*usageDelta),
		wakeup:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	b.maxPendingRequests = 100

	b.add(catalog.BackendFlash, 100, 1, 0, 0)
	b.add(catalog.BackendFlash, 200, 1, 1, 0)
	b.add(catalog.BackendPro, 50, 1, 0, 1)

	b.flush(false)

	key := deltaKey{day: Today(), backend: catalog.BackendFlash}
	writer.mu.Lock()
	flash := writer.deltas[key]
	pro := writer.deltas[deltaKey{day: Today(), backend: catalog.BackendPro}]
	writer.mu.Unlock()

	if flash.tokens != 300 || flash.requests != 2 || flash.rateLimitHits != 1 {
		t.Fatalf("unexpected flash delta: %+v", flash)
	}
	if pro.tokens != 50 || pro.errorCount != 1 {
		t.Fatalf("unexpected pro delta: %+v", pro)
	}
	if b.flushSuccessTotal != 2 {
		t.Fatalf("unexpected success count: %d", b.flushSuccessTotal)
	}
}

func TestBatcherRequeuesOnFlushFailure(t *testing.T) {
	writer := newFakeDeltaWriter()
	writer.err = errors.New("db down")
	b := &batcher{
		writer:        writer,
		flushInterval: time.Second,
		flushTimeout:  time.Second,
		maxBackoff:    4 * time.Second,
		pending:       make(map[deltaKey]*usageDelta),
		wakeup:        make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	b.maxPendingRequests = 100

	b.add(catalog.BackendFlash, 100, 2, 0, 0)
	b.flush(false)

	if b.consecutiveFlushFailures != 1 {
		t.Fatalf("expected failure registered, got %d", b.consecutiveFlushFailures)
	}
	if b.flushRequeuedTotal != 1 {
		t.Fatalf("expected requeue, got %d", b.flushRequeuedTotal)
	}

	b.mu.Lock()
	pending := b.pendingRequestsTotal
	b.mu.Unlock()
	if pending != 2 {
		t.Fatalf("expected pending restored, got %d", pending)
	}

	// 실패 직후에는 백오프 윈도우 안이라 플러시를 건너뛴다
	b.flush(false)
	if b.flushFailureTotal != 1 {
		t.Fatalf("expected flush skipped during backoff, got %d failures", b.flushFailureTotal)
	}

	// 복구 후 셧다운 플러시는 백오프를 무시하고 잔여분을 내보낸다
	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()
	b.flush(true)

	writer.mu.Lock()
	flash := writer.deltas[deltaKey{day: Today(), backend: catalog.BackendFlash}]
	writer.mu.Unlock()
	if flash.tokens != 100 || flash.requests != 2 {
		t.Fatalf("expected requeued delta flushed: %+v", flash)
	}
}

func TestBatcherBackoff(t *testing.T) {
	b := &batcher{flushInterval: time.Second, maxBackoff: 4 * time.Second}

	b.consecutiveFlushFailures = 1
	if backoff := b.computeBackoff(); backoff != time.Second {
		t.Fatalf("unexpected backoff: %v", backoff)
	}

	b.consecutiveFlushFailures = 2
	if backoff := b.computeBackoff(); backoff != 2*time.Second {
		t.Fatalf("unexpected backoff: %v", backoff)
	}

	b.consecutiveFlushFailures = 3
	if backoff := b.computeBackoff(); backoff != 4*time.Second {
		t.Fatalf("unexpected backoff: %v", backoff)
	}

	b.consecutiveFlushFailures = 4
	if backoff := b.computeBackoff(); backoff != 4*time.Second {
		t.Fatalf("unexpected backoff cap: %v", backoff)
	}
}

func TestBatcherShouldLogFailure(t *testing.T) {
	b := &batcher{errorLogMaxInterval: time.Hour}
	b.consecutiveFlushFailures = 1
	if !b.shouldLogFailure() {
		t.Fatalf("expected log on first failure")
	}

	b.consecutiveFlushFailures = 3
	b.lastErrorLoggedAt = time.Now()
	if b.shouldLogFailure() {
		t.Fatalf("did not expect log for non power-of-two")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	if !isPowerOfTwo(1) || !isPowerOfTwo(2) || !isPowerOfTwo(4) {
		t.Fatalf("expected power of two")
	}
	if isPowerOfTwo(3) || isPowerOfTwo(0) {
		t.Fatalf("unexpected power of two")
	}
}
