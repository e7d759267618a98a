package router

import (
	"context"
	"errors"
	"time"

	"github.com/park285/llm-kakao-bots/model-router-go/internal/catalog"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/config"
	"github.com/park285/llm-kakao-bots/model-router-go/internal/ledger"
)

// Snapshot 은 특정 일자의 백엔드 하나에 대한 사용량 평가 결과다.
type Snapshot struct {
	Backend        catalog.Backend
	Priority       int
	Day            time.Time
	TokensUsed     int64
	TokenLimit     int64
	RequestsUsed   int64
	RequestLimit   int64
	RateLimitHits  int64
	ErrorCount     int64
	UsagePercent   float64
	RateLimited    bool
	ErrorSaturated bool
}

// Available 은 선택 후보로 쓸 수 있는 상태인지 확인한다.
func (s Snapshot) Available() bool {
	return !s.RateLimited && !s.ErrorSaturated
}

// SnapshotService 는 원장과 카탈로그를 결합해 백엔드별 스냅샷을 만든다.
// 호출 간 캐시는 두지 않는다. 원장이 단일 진실 공급원이다.
type SnapshotService struct {
	cat                *catalog.Catalog
	store              ledger.Store
	rateLimitThreshold int64
	errorThreshold     int64
}

// NewSnapshotService 는 스냅샷 서비스를 생성한다.
func NewSnapshotService(cfg *config.Config, cat *catalog.Catalog, store ledger.Store) (*SnapshotService, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cat == nil {
		return nil, errors.New("catalog is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}

	return &SnapshotService{
		cat:                cat,
		store:              store,
		rateLimitThreshold: cfg.Router.RateLimitThreshold,
		errorThreshold:     cfg.Router.ErrorThreshold,
	}, nil
}

// Snapshots 는 지정 일자의 전 백엔드 스냅샷을 우선순위 순으로 반환한다.
// 트래픽이 없었던 백엔드는 0 값 레코드로 평가된다.
func (s *SnapshotService) Snapshots(ctx context.Context, day time.Time) ([]Snapshot, error) {
	dayKey := ledger.DayKey(day)

	records, err := s.store.ReadDay(ctx, dayKey)
	if err != nil {
		return nil, err
	}

	byBackend := make(map[catalog.Backend]ledger.Record, len(records))
	for _, record := range records {
		byBackend[record.Backend] = record
	}

	entries := s.cat.Entries()
	snapshots := make([]Snapshot, 0, len(entries))
	for _, quota := range entries {
		record, ok := byBackend[quota.Backend]
		if !ok {
			record = ledger.Record{Day: dayKey, Backend: quota.Backend}
		}
		snapshots = append(snapshots, s.evaluate(quota, record, dayKey))
	}
	return snapshots, nil
}

func (s *SnapshotService) evaluate(quota catalog.BackendQuota, record ledger.Record, day time.Time) Snapshot {
	return Snapshot{
		Backend:        quota.Backend,
		Priority:       quota.Priority,
		Day:            day,
		TokensUsed:     record.TokensUsed,
		TokenLimit:     quota.DailyTokenLimit,
		RequestsUsed:   record.RequestCount,
		RequestLimit:   quota.DailyRequestLimit,
		RateLimitHits:  record.RateLimitHits,
		ErrorCount:     record.ErrorCount,
		UsagePercent:   usagePercent(record, quota),
		RateLimited:    record.RateLimitHits >= s.rateLimitThreshold,
		ErrorSaturated: record.ErrorCount > s.errorThreshold,
	}
}

// usagePercent 는 토큰/요청 두 축 중 더 소진된 쪽의 비율을 반환한다.
// 한도가 0인 축은 무제한으로 취급한다. 사후 기록이라 100을 넘을 수 있다.
func usagePercent(record ledger.Record, quota catalog.BackendQuota) float64 {
	percent := 0.0
	if quota.DailyTokenLimit > 0 {
		percent = float64(record.TokensUsed) / float64(quota.DailyTokenLimit) * 100
	}
	if quota.DailyRequestLimit > 0 {
		requestPercent := float64(record.RequestCount) / float64(quota.DailyRequestLimit) * 100
		if requestPercent > percent {
			percent = requestPercent
		}
	}
	return percent
}
