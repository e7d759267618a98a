package router

import (
	"context"
	"time"
)

// Capacity 는 전 백엔드 합산 용량 현황이다.
type Capacity struct {
	Day           time.Time
	TokensUsed    int64
	TokenLimit    int64
	RequestsUsed  int64
	RequestLimit  int64
	BackendCount  int
	ExcludedCount int
}

// TokenPercent 합산 토큰 사용률
func (c Capacity) TokenPercent() float64 {
	if c.TokenLimit <= 0 {
		return 0
	}
	return float64(c.TokensUsed) / float64(c.TokenLimit) * 100
}

// Aggregate 는 스냅샷 목록을 합산한다. 포화/제한 상태 백엔드도 합계에는
// 포함되며 ExcludedCount 로만 따로 센다.
func Aggregate(snapshots []Snapshot) Capacity {
	capacity := Capacity{BackendCount: len(snapshots)}
	for _, snapshot := range snapshots {
		if capacity.Day.IsZero() {
			capacity.Day = snapshot.Day
		}
		capacity.TokensUsed += snapshot.TokensUsed
		capacity.TokenLimit += snapshot.TokenLimit
		capacity.RequestsUsed += snapshot.RequestsUsed
		capacity.RequestLimit += snapshot.RequestLimit
		if !snapshot.Available() {
			capacity.ExcludedCount++
		}
	}
	return capacity
}

// CapacityFor 는 지정 시각이 속한 일자의 합산 용량을 계산한다.
func (s *SnapshotService) CapacityFor(ctx context.Context, at time.Time) (Capacity, error) {
	snapshots, err := s.Snapshots(ctx, at)
	if err != nil {
		return Capacity{}, err
	}
	return Aggregate(snapshots), nil
}
