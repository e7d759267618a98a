package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	selectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_selections_total",
		Help: "Backend selections by backend and phase.",
	}, []string{"backend", "phase"})

	exhaustionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_exhaustions_total",
		Help: "Selection attempts where no backend was available.",
	})

	usageRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_usage_records_total",
		Help: "Usage records applied to the ledger by backend and outcome.",
	}, []string{"backend", "outcome"})

	recordFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_record_failures_total",
		Help: "Usage records that could not be durably applied.",
	})
)

// Store 는 라우터 동작 통계를 저장한다.
type Store struct {
	totalSelections     int64
	totalFallbacks      int64
	totalExhaustions    int64
	totalRecords        int64
	totalRecordFailures int64
	totalDurationMs     int64
}

// NewStore 는 통계 저장소를 생성한다.
func NewStore() *Store {
	return &Store{}
}

// RecordSelection 은 선택 결과 통계를 기록한다.
func (s *Store) RecordSelection(backend string, fallback bool, duration time.Duration) {
	atomic.AddInt64(&s.totalSelections, 1)
	atomic.AddInt64(&s.totalDurationMs, duration.Milliseconds())
	phase := "priority"
	if fallback {
		phase = "fallback"
		atomic.AddInt64(&s.totalFallbacks, 1)
	}
	selectionsTotal.WithLabelValues(backend, phase).Inc()
}

// RecordExhaustion 은 전 백엔드 소진 통계를 기록한다.
func (s *Store) RecordExhaustion(duration time.Duration) {
	atomic.AddInt64(&s.totalExhaustions, 1)
	atomic.AddInt64(&s.totalDurationMs, duration.Milliseconds())
	exhaustionsTotal.Inc()
}

// RecordUsageWrite 는 원장 기록 통계를 기록한다.
func (s *Store) RecordUsageWrite(backend string, outcome string) {
	atomic.AddInt64(&s.totalRecords, 1)
	usageRecordsTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordUsageWriteFailure 는 원장 기록 실패 통계를 기록한다.
func (s *Store) RecordUsageWriteFailure() {
	atomic.AddInt64(&s.totalRecordFailures, 1)
	recordFailuresTotal.Inc()
}

// Snapshot 는 통계 스냅샷을 반환한다.
func (s *Store) Snapshot() map[string]float64 {
	totalSelections := atomic.LoadInt64(&s.totalSelections)
	totalFallbacks := atomic.LoadInt64(&s.totalFallbacks)
	totalExhaustions := atomic.LoadInt64(&s.totalExhaustions)
	totalRecords := atomic.LoadInt64(&s.totalRecords)
	totalRecordFailures := atomic.LoadInt64(&s.totalRecordFailures)
	durationMs := atomic.LoadInt64(&s.totalDurationMs)

	attempts := totalSelections + totalExhaustions
	avgDuration := 0.0
	if attempts > 0 {
		avgDuration = float64(durationMs) / float64(attempts)
	}

	return map[string]float64{
		"total_selections":      float64(totalSelections),
		"total_fallbacks":       float64(totalFallbacks),
		"total_exhaustions":     float64(totalExhaustions),
		"total_usage_records":   float64(totalRecords),
		"total_record_failures": float64(totalRecordFailures),
		"total_duration_ms":     float64(durationMs),
		"avg_duration_ms":       avgDuration,
	}
}
